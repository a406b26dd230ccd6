// Package session owns one visitor's pre-submission working set: the
// cards they intend to buy and the countdown anchor started when they
// proceed to payment. State is persisted per session key so a page
// reload resumes, never restarts, the payment window.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/omegabingo/card-reservation/internal/livecache"
	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/store"
)

var (
	// ErrCardUnavailable is returned by Toggle when the card is sold or
	// reserved by someone else.
	ErrCardUnavailable = errors.New("card is not available")
	// ErrCardOutOfRange is returned for card numbers outside [1, total].
	ErrCardOutOfRange = errors.New("card number out of range")
	// ErrEmptySelection is returned when an operation needs at least one
	// selected card.
	ErrEmptySelection = errors.New("no cards selected")
	// ErrSessionExpired is returned when the payment countdown ran out;
	// the selection has been cleared.
	ErrSessionExpired = errors.New("payment window expired")
	// ErrAllConflicted is returned by Submit when revalidation evicted
	// every selected card.
	ErrAllConflicted = errors.New("all selected cards are no longer available")
)

// ValidationError reports a rejected submission field before any
// network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// State is the persisted selection session. StartedAt is nil until the
// visitor first proceeds to payment.
type State struct {
	Cards     []int      `json:"cards"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Deadline returns the payment deadline, or the zero time when the
// countdown has not started.
func (s State) Deadline(window time.Duration) time.Time {
	if s.StartedAt == nil {
		return time.Time{}
	}
	return s.StartedAt.Add(window)
}

// SubmitResult reports what a submission actually covered.
type SubmitResult struct {
	ReservationID string
	Cards         []int
	Evicted       []int
	TotalAmount   int
}

// Manager runs every selection-session operation against the live
// cache and persists state in the KV store after each mutation.
type Manager struct {
	kv        KV
	cache     *livecache.Cache
	docs      store.Store
	window    time.Duration
	cardPrice int
	now       func() time.Time
}

// NewManager wires a session manager. window is the payment countdown
// (300 seconds in production), cardPrice the unit price used for
// totals.
func NewManager(kv KV, cache *livecache.Cache, docs store.Store, window time.Duration, cardPrice int) *Manager {
	return &Manager{
		kv:        kv,
		cache:     cache,
		docs:      docs,
		window:    window,
		cardPrice: cardPrice,
		now:       time.Now,
	}
}

// Window returns the countdown duration.
func (m *Manager) Window() time.Duration { return m.window }

// CardPrice returns the unit price.
func (m *Manager) CardPrice() int { return m.cardPrice }

// Load reads the session for a key, expiring it first if the countdown
// has run out. The boolean reports whether expiry just happened.
func (m *Manager) Load(ctx context.Context, key string) (State, bool, error) {
	st, err := m.read(ctx, key)
	if err != nil {
		return State{}, false, err
	}
	if st.StartedAt != nil && m.now().After(st.Deadline(m.window)) {
		if err := m.kv.Delete(ctx, key); err != nil {
			return State{}, false, err
		}
		return State{}, true, nil
	}
	return st, false, nil
}

// Toggle adds or removes one card from the selection. Removing is
// always allowed; adding requires the card to be available in the live
// cache right now.
func (m *Manager) Toggle(ctx context.Context, key string, card int) (State, error) {
	if !model.CardInRange(card, m.cache.Total()) {
		return State{}, ErrCardOutOfRange
	}
	st, _, err := m.Load(ctx, key)
	if err != nil {
		return State{}, err
	}
	for i, c := range st.Cards {
		if c == card {
			st.Cards = append(st.Cards[:i], st.Cards[i+1:]...)
			return st, m.save(ctx, key, st)
		}
	}
	if m.cache.Status(card) != model.StatusAvailable {
		return st, ErrCardUnavailable
	}
	st.Cards = append(st.Cards, card)
	return st, m.save(ctx, key, st)
}

// StartCountdown records the payment deadline anchor the first time the
// visitor proceeds to payment. It is idempotent: a reload resumes the
// running window instead of granting a fresh one.
func (m *Manager) StartCountdown(ctx context.Context, key string) (State, time.Time, error) {
	st, expired, err := m.Load(ctx, key)
	if err != nil {
		return State{}, time.Time{}, err
	}
	if expired {
		return State{}, time.Time{}, ErrSessionExpired
	}
	if len(st.Cards) == 0 {
		return State{}, time.Time{}, ErrEmptySelection
	}
	if st.StartedAt == nil {
		t := m.now().UTC()
		st.StartedAt = &t
		if err := m.save(ctx, key, st); err != nil {
			return State{}, time.Time{}, err
		}
	}
	return st, st.Deadline(m.window), nil
}

// Revalidate partitions the selection into cards still available (kept)
// and cards meanwhile sold or reserved elsewhere (evicted), persists
// the kept set and reports both.
func (m *Manager) Revalidate(ctx context.Context, key string) (kept, evicted []int, err error) {
	st, expired, err := m.Load(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if expired {
		return nil, nil, ErrSessionExpired
	}
	kept, evicted = m.partition(st.Cards)
	if len(evicted) > 0 {
		st.Cards = kept
		if err := m.save(ctx, key, st); err != nil {
			return nil, nil, err
		}
	}
	return kept, evicted, nil
}

// Submit validates the contact fields, revalidates the selection one
// last time and writes a single pending reservation covering exactly
// the kept set. On a successful write the local session is cleared
// immediately; the caches catch up from the store's change stream.
func (m *Manager) Submit(ctx context.Context, key string, contact model.Contact, proofURL string) (SubmitResult, error) {
	contact, err := normalizeContact(contact)
	if err != nil {
		return SubmitResult{}, err
	}
	if strings.TrimSpace(proofURL) == "" {
		return SubmitResult{}, &ValidationError{Field: "proof", Reason: "payment proof is required"}
	}

	st, expired, err := m.Load(ctx, key)
	if err != nil {
		return SubmitResult{}, err
	}
	if expired {
		return SubmitResult{}, ErrSessionExpired
	}
	if len(st.Cards) == 0 {
		return SubmitResult{}, ErrEmptySelection
	}

	kept, evicted := m.partition(st.Cards)
	if len(kept) == 0 {
		// Nothing left to claim; drop the stale selection entirely.
		if err := m.kv.Delete(ctx, key); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Evicted: evicted}, ErrAllConflicted
	}

	doc := model.PendingReservation{
		Cards:       kept,
		Name:        contact.Name,
		Phone:       contact.Phone,
		Reference:   contact.Reference,
		ProofURL:    proofURL,
		TotalAmount: len(kept) * m.cardPrice,
		Timestamp:   m.now().UTC(),
		Status:      model.PendingStatus,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return SubmitResult{}, err
	}
	id, err := m.docs.Add(ctx, store.CollectionPending, data)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := m.kv.Delete(ctx, key); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		ReservationID: id,
		Cards:         kept,
		Evicted:       evicted,
		TotalAmount:   doc.TotalAmount,
	}, nil
}

// Clear drops the session outright (visitor cancelled).
func (m *Manager) Clear(ctx context.Context, key string) error {
	return m.kv.Delete(ctx, key)
}

// partition splits cards into still-available vs sold/reserved.
func (m *Manager) partition(cards []int) (kept, evicted []int) {
	for _, card := range cards {
		if m.cache.Status(card) == model.StatusAvailable {
			kept = append(kept, card)
		} else {
			evicted = append(evicted, card)
		}
	}
	return kept, evicted
}

func (m *Manager) read(ctx context.Context, key string) (State, error) {
	raw, err := m.kv.Get(ctx, key)
	if err != nil {
		return State{}, err
	}
	if raw == nil {
		return State{}, nil
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// A corrupt session is unrecoverable; start fresh.
		return State{}, nil
	}
	return st, nil
}

func (m *Manager) save(ctx context.Context, key string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return m.kv.Set(ctx, key, raw)
}

// normalizeContact trims and checks the visitor-supplied fields,
// stripping non-digits from the phone number.
func normalizeContact(c model.Contact) (model.Contact, error) {
	c.Name = strings.TrimSpace(c.Name)
	if len(c.Name) < 3 {
		return c, &ValidationError{Field: "name", Reason: "full name is required"}
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, c.Phone)
	if len(digits) < 10 {
		return c, &ValidationError{Field: "phone", Reason: "phone number must have at least 10 digits"}
	}
	c.Phone = digits
	c.Reference = strings.TrimSpace(c.Reference)
	if len(c.Reference) < 4 {
		return c, &ValidationError{Field: "reference", Reason: "last 4 digits of the payment reference are required"}
	}
	return c, nil
}
