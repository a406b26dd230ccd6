// Package livecache maintains the per-card projection of global state
// derived from the confirmed-sale and pending-reservation streams. The
// projection is single-writer: all mutation happens through the two
// Apply methods, and the merge is order-independent across the streams
// because a sold entry is never downgraded by reservation events.
package livecache

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/store"
)

// Entry is the cached view of one card, including a snapshot of the
// owning document's display fields and, while reserved, a back-reference
// to the owning reservation.
type Entry struct {
	Status        model.Status `json:"status"`
	ReservationID string       `json:"reservationId,omitempty"`
	Name          string       `json:"name,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Reference     string       `json:"reference,omitempty"`
	ProofURL      string       `json:"proofURL,omitempty"`
	TotalAmount   int          `json:"totalAmount,omitempty"`
}

// Cache holds the live per-card status for cards 1..total. Reads are
// safe from any goroutine; writes go through ApplySales and
// ApplyReservations only.
type Cache struct {
	total int

	mu      sync.RWMutex
	entries map[int]Entry

	hookMu sync.Mutex
	hooks  []func()
}

// New returns an empty cache for a card range of the given size.
func New(total int) *Cache {
	return &Cache{total: total, entries: make(map[int]Entry)}
}

// Wire subscribes the cache to both source collections and returns a
// cancel function that detaches it again.
func (c *Cache) Wire(s store.Store) func() {
	cancelSales := s.Subscribe(store.CollectionSales, c.ApplySales)
	cancelPending := s.Subscribe(store.CollectionPending, c.ApplyReservations)
	return func() {
		cancelSales()
		cancelPending()
	}
}

// ApplySales folds a batch of confirmed-sale change events into the
// projection. A sale add/modify marks every covered card sold; a sale
// removal releases its cards outright.
func (c *Cache) ApplySales(changes []store.Change) {
	c.mu.Lock()
	for _, ch := range changes {
		var sale model.ConfirmedSale
		if err := json.Unmarshal(ch.Doc.Data, &sale); err != nil {
			log.Printf("livecache: bad sale document %s: %v", ch.Doc.ID, err)
			continue
		}
		for _, card := range sale.Cards {
			if ch.Kind == store.Removed {
				delete(c.entries, card)
				continue
			}
			c.entries[card] = Entry{
				Status:      model.StatusSold,
				Name:        sale.Name,
				Phone:       sale.Phone,
				Reference:   sale.Reference,
				ProofURL:    sale.ProofURL,
				TotalAmount: sale.TotalAmount,
			}
		}
	}
	c.mu.Unlock()
	c.fireHooks()
}

// ApplyReservations folds a batch of pending-reservation change events
// into the projection. Sold always wins: a reservation event neither
// overwrites nor deletes an entry that is already sold. This is what
// makes the final state independent of the order the two streams
// happen to arrive in.
func (c *Cache) ApplyReservations(changes []store.Change) {
	c.mu.Lock()
	for _, ch := range changes {
		var res model.PendingReservation
		if err := json.Unmarshal(ch.Doc.Data, &res); err != nil {
			log.Printf("livecache: bad reservation document %s: %v", ch.Doc.ID, err)
			continue
		}
		for _, card := range res.Cards {
			cur, exists := c.entries[card]
			if exists && cur.Status == model.StatusSold {
				continue
			}
			if ch.Kind == store.Removed {
				// Only the owning reservation releases the card; a raced
				// duplicate going away must not free someone else's claim.
				if exists && cur.ReservationID == ch.Doc.ID {
					delete(c.entries, card)
				}
				continue
			}
			// First claim wins. A duplicate reservation listing an
			// already-reserved card never takes the entry over, so
			// confirming the earlier reservation stays possible.
			if exists && cur.ReservationID != ch.Doc.ID {
				continue
			}
			c.entries[card] = Entry{
				Status:        model.StatusReserved,
				ReservationID: ch.Doc.ID,
				Name:          res.Name,
				Phone:         res.Phone,
				Reference:     res.Reference,
				ProofURL:      res.ProofURL,
				TotalAmount:   res.TotalAmount,
			}
		}
	}
	c.mu.Unlock()
	c.fireHooks()
}

// Status returns the shared status of one card.
func (c *Cache) Status(card int) model.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[card]; ok {
		return e.Status
	}
	return model.StatusAvailable
}

// Entry returns the cached entry for a card and whether one exists.
func (c *Cache) Entry(card int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[card]
	return e, ok
}

// SoldCount counts cards currently marked sold.
func (c *Cache) SoldCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if e.Status == model.StatusSold {
			n++
		}
	}
	return n
}

// AvailableCount is the banner figure: total cards minus sold ones.
// Reserved cards still count as available here, matching how the shop
// advertises remaining stock.
func (c *Cache) AvailableCount() int {
	return c.total - c.SoldCount()
}

// Total returns the size of the card range.
func (c *Cache) Total() int {
	return c.total
}

// Snapshot copies the current projection for read-only consumers.
func (c *Cache) Snapshot() map[int]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]Entry, len(c.entries))
	for card, e := range c.entries {
		out[card] = e
	}
	return out
}

// OnUpdate registers a hook fired after every applied batch. Hooks run
// on the caller's goroutine and must not block.
func (c *Cache) OnUpdate(fn func()) {
	c.hookMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hookMu.Unlock()
}

func (c *Cache) fireHooks() {
	c.hookMu.Lock()
	hooks := make([]func(), len(c.hooks))
	copy(hooks, c.hooks)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
