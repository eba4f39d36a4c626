package bus

import "context"

// Dispatcher routes one event to its recipients: straight to the connections
// this process owns, and over the bus for identities whose connections live in
// other processes. The gateway provides the implementation; components that
// produce events depend only on this.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}
