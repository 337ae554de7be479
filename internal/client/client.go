// Package client is the device-facing SDK: instead of a caller hand-rolling
// CRDT edits and dispatcher calls, it exposes plain verbs — AddItem,
// RemoveItem, Sync — that hide the wire protocol, local persistence, and
// proxy fail-over behind a clean Go API, the same shape the teacher's HTTP
// client wrapped net/http behind Put/Get/Delete.
package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"shoplist/internal/crdt"
	"shoplist/internal/dispatcher"
	"shoplist/internal/store"
)

// Client is one device's view of one or more shopping lists. actorID must
// be stable across restarts for the same device so concurrent-edit
// convergence works (spec §9's fix for the original actor-id bug: the
// actor must never be the list's own uuid).
type Client struct {
	actorID string
	storage *store.Storage
	comm    *dispatcher.Communicator
}

// New opens local storage at dataDir and builds a communicator over the
// given proxy addresses.
func New(dataDir, actorID string, proxies []string, log zerolog.Logger) (*Client, error) {
	s, err := store.New(dataDir, actorID)
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}
	return &Client{
		actorID: actorID,
		storage: s,
		comm:    dispatcher.NewCommunicator(s, proxies, log),
	}, nil
}

// Close releases local storage.
func (c *Client) Close() error {
	return c.storage.Close()
}

// NewList creates an empty list with a fresh uuid and pushes it.
func (c *Client) NewList(ctx context.Context, name string) (*crdt.ShoppingList, error) {
	list := crdt.New(newListID())
	list.Name = name
	merged, err := c.comm.SendFullList(ctx, list)
	if err != nil {
		return list, err
	}
	return merged, nil
}

// AddItem adds or bumps an item on listID and pushes the result.
func (c *Client) AddItem(ctx context.Context, listID, itemName string, needed, acquired int64) (*crdt.ShoppingList, error) {
	return c.mutate(ctx, listID, func(l *crdt.ShoppingList) {
		l.AddItem(c.actorID, itemName, needed, acquired)
	})
}

// RemoveItem tombstones an item on listID and pushes the result.
func (c *Client) RemoveItem(ctx context.Context, listID, itemName string) (*crdt.ShoppingList, error) {
	return c.mutate(ctx, listID, func(l *crdt.ShoppingList) {
		l.RemoveItem(itemName)
	})
}

// UpdateNeeded applies a signed delta to an item's needed quantity.
func (c *Client) UpdateNeeded(ctx context.Context, listID, itemName string, delta int64) (*crdt.ShoppingList, error) {
	return c.mutate(ctx, listID, func(l *crdt.ShoppingList) {
		l.UpdateNeeded(c.actorID, itemName, delta)
	})
}

// UpdateAcquired applies a signed delta to an item's acquired quantity.
func (c *Client) UpdateAcquired(ctx context.Context, listID, itemName string, delta int64) (*crdt.ShoppingList, error) {
	return c.mutate(ctx, listID, func(l *crdt.ShoppingList) {
		l.UpdateAcquired(c.actorID, itemName, delta)
	})
}

// mutate loads the local copy of listID (starting empty if never seen),
// applies edit, then pushes the edited list through the communicator so the
// client observes the server-merged result before returning (spec §5's
// ordering guarantee: "the client observes the merged CRDT ... before local
// not_sent is cleared" — SendFullList itself persists that outcome).
func (c *Client) mutate(ctx context.Context, listID string, edit func(*crdt.ShoppingList)) (*crdt.ShoppingList, error) {
	list := crdt.New(listID)
	if rec, ok, err := c.storage.Get(listID); err != nil {
		return nil, fmt.Errorf("load local list: %w", err)
	} else if ok {
		list = rec.List
	}
	edit(list)
	return c.comm.SendFullList(ctx, list)
}

// Sync fetches the authoritative merged state for listID from the cluster.
func (c *Client) Sync(ctx context.Context, listID string) (*crdt.ShoppingList, error) {
	return c.comm.RequestFullList(ctx, listID)
}

// RunBackground starts the heartbeat loop that retries queued not-sent
// writes (spec §4.4.6). Blocks until ctx is cancelled; run it in a goroutine.
func (c *Client) RunBackground(ctx context.Context) {
	c.comm.RunHeartbeat(ctx)
}

// ViewItems returns the visible items on the local copy of listID.
func (c *Client) ViewItems(listID string) (map[string]crdt.VisibleItem, error) {
	rec, ok, err := c.storage.Get(listID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]crdt.VisibleItem{}, nil
	}
	return rec.List.GetVisibleItems(), nil
}

func newListID() string {
	return crdt.NewTag()
}
