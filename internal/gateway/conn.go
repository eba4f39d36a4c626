package gateway

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"relay/internal/identity"
)

const sendQueueSize = 64

var errDroppedSend = errors.New("connection send dropped")

// conn is one live websocket connection bound to an authenticated identity.
// It is owned exclusively by this process and destroyed on disconnect.
type conn struct {
	id         string
	identity   *identity.Identity
	credential string
	ws         *websocket.Conn
	limiter    *rate.Limiter

	send      chan Response
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	joined     map[string]struct{}
	activeRoom string
}

func newConn(ws *websocket.Conn, ident *identity.Identity, credential string, frameRate int) *conn {
	return &conn{
		id:         uuid.NewString(),
		identity:   ident,
		credential: credential,
		ws:         ws,
		limiter:    rate.NewLimiter(rate.Limit(frameRate), frameRate),
		send:       make(chan Response, sendQueueSize),
		done:       make(chan struct{}),
		joined:     make(map[string]struct{}),
	}
}

func (c *conn) ID() string         { return c.id }
func (c *conn) IdentityID() string { return c.identity.ID }

func (c *conn) Joined(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joined[roomID]
	return ok
}

func (c *conn) Join(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[roomID] = struct{}{}
}

func (c *conn) Leave(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joined, roomID)
	if c.activeRoom == roomID {
		c.activeRoom = ""
	}
}

func (c *conn) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]string, 0, len(c.joined))
	for roomID := range c.joined {
		list = append(list, roomID)
	}
	return list
}

func (c *conn) ActiveRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRoom
}

func (c *conn) SetActiveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeRoom = roomID
}

// Send enqueues without blocking. A closed or saturated connection drops the
// payload: the live push is at-most-once, durable state is the real delivery
// guarantee.
func (c *conn) Send(v interface{}) error {
	response, ok := v.(Response)
	if !ok {
		return errDroppedSend
	}
	select {
	case <-c.done:
		return errDroppedSend
	default:
	}
	select {
	case c.send <- response:
		return nil
	default:
		return errDroppedSend
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writeLoop is the single writer on the websocket, so enqueue order is wire
// order.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case response := <-c.send:
			if err := c.ws.WriteJSON(response); err != nil {
				c.close()
				return
			}
		}
	}
}
