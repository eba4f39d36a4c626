// Package presence derives online/offline transitions from connection
// registrations and reconciles them across the fleet. No state is stored
// beyond a shared connection count per identity: an identity is online iff
// some process somewhere holds a live connection for it.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"relay/internal/bus"
	"relay/internal/registry"
)

// Update is the payload counterparts receive when an identity's presence
// changes. LastSeen is nil while the identity is online.
type Update struct {
	IdentityID string     `json:"identity_id"`
	IsOnline   bool       `json:"is_online"`
	LastSeen   *time.Time `json:"last_seen"`
}

// Tracker is the shared counting scheme. Each process increments when an
// identity gains its first local connection and decrements when it loses its
// last one, so the count is the number of processes currently hosting the
// identity.
type Tracker interface {
	Connected(ctx context.Context, identityID string) error
	Disconnected(ctx context.Context, identityID string, at time.Time) error
	IsOnline(ctx context.Context, identityID string) (bool, error)
	LastSeen(ctx context.Context, identityID string) (*time.Time, error)
}

// CounterpartSource lists the identities that should hear about a presence
// change: private-room partners and group co-members.
type CounterpartSource interface {
	CounterpartsOf(ctx context.Context, identityID string) ([]string, error)
}

type Coordinator struct {
	registry     *registry.Registry
	tracker      Tracker
	counterparts CounterpartSource
	dispatcher   bus.Dispatcher
	logger       *slog.Logger
}

func NewCoordinator(reg *registry.Registry, tracker Tracker, counterparts CounterpartSource, dispatcher bus.Dispatcher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		registry:     reg,
		tracker:      tracker,
		counterparts: counterparts,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// HandleFirstConnection runs after the registry reported wasFirst for this
// process. It bumps the shared count and notifies online counterparts.
// Notification is best-effort: a counterpart whose connection vanished between
// lookup and send is skipped, not retried.
func (c *Coordinator) HandleFirstConnection(ctx context.Context, identityID string) {
	if err := c.tracker.Connected(ctx, identityID); err != nil {
		c.logger.Warn("presence count increment failed", "identity", identityID, "error", err)
	}
	c.notifyCounterparts(ctx, Update{IdentityID: identityID, IsOnline: true})
}

// HandleLastDisconnection runs after the registry reported wasLast for this
// process. The identity may still be online through another process; only
// when the shared count drops to zero do counterparts see it go offline.
func (c *Coordinator) HandleLastDisconnection(ctx context.Context, identityID string) {
	now := time.Now().UTC()
	if err := c.tracker.Disconnected(ctx, identityID, now); err != nil {
		c.logger.Warn("presence count decrement failed", "identity", identityID, "error", err)
	}

	online, err := c.tracker.IsOnline(ctx, identityID)
	if err != nil {
		c.logger.Warn("presence lookup failed", "identity", identityID, "error", err)
		online = false
	}
	if online {
		return
	}
	c.notifyCounterparts(ctx, Update{IdentityID: identityID, IsOnline: false, LastSeen: &now})
}

// IsOnline reports fleet-wide presence: the local registry short-circuits the
// common case, the shared count covers connections held by other processes.
func (c *Coordinator) IsOnline(ctx context.Context, identityID string) bool {
	if c.registry.IsOnlineLocal(identityID) {
		return true
	}
	online, err := c.tracker.IsOnline(ctx, identityID)
	if err != nil {
		c.logger.Warn("presence lookup failed", "identity", identityID, "error", err)
		return false
	}
	return online
}

func (c *Coordinator) LastSeen(ctx context.Context, identityID string) *time.Time {
	seen, err := c.tracker.LastSeen(ctx, identityID)
	if err != nil {
		c.logger.Warn("last seen lookup failed", "identity", identityID, "error", err)
		return nil
	}
	return seen
}

func (c *Coordinator) notifyCounterparts(ctx context.Context, update Update) {
	recipients, err := c.counterparts.CounterpartsOf(ctx, update.IdentityID)
	if err != nil {
		c.logger.Warn("counterpart lookup failed", "identity", update.IdentityID, "error", err)
		return
	}
	if len(recipients) == 0 {
		return
	}

	payload, err := json.Marshal(update)
	if err != nil {
		c.logger.Warn("presence payload marshal failed", "identity", update.IdentityID, "error", err)
		return
	}

	err = c.dispatcher.Dispatch(ctx, bus.Event{
		Kind:       bus.KindPresence,
		Recipients: recipients,
		Payload:    payload,
	})
	if err != nil {
		// Presence delivery is best-effort; the transition itself stands.
		c.logger.Warn("presence broadcast failed", "identity", update.IdentityID, "error", err)
	}
}
