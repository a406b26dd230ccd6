package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and single-node dev mode.
// All collections live in maps guarded by one mutex; subscribers are
// notified after the lock is released so a callback may re-enter the
// store.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	subs        map[string]map[int]func([]Change)
	nextSubID   int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		subs:        make(map[string]map[int]func([]Change)),
	}
}

func (m *Memory) coll(name string) map[string]Document {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]Document)
		m.collections[name] = c
	}
	return c
}

// Subscribe registers fn and immediately replays the collection's
// current documents as one Added batch.
func (m *Memory) Subscribe(collection string, fn func([]Change)) func() {
	m.mu.Lock()
	subs, ok := m.subs[collection]
	if !ok {
		subs = make(map[int]func([]Change))
		m.subs[collection] = subs
	}
	id := m.nextSubID
	m.nextSubID++
	subs[id] = fn

	initial := make([]Change, 0, len(m.coll(collection)))
	for _, doc := range m.coll(collection) {
		initial = append(initial, Change{Kind: Added, Doc: doc})
	}
	m.mu.Unlock()

	if len(initial) > 0 {
		fn(initial)
	}
	return func() {
		m.mu.Lock()
		delete(m.subs[collection], id)
		m.mu.Unlock()
	}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.coll(collection)[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *Memory) List(_ context.Context, collection string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make([]Document, 0, len(m.coll(collection)))
	for _, doc := range m.coll(collection) {
		docs = append(docs, doc)
	}
	return docs, nil
}

// QueryField matches documents whose top-level field equals value when
// rendered as a string. This mirrors the narrow equality filter the
// protocol needs for phone lookups.
func (m *Memory) QueryField(_ context.Context, collection, field, value string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.coll(collection) {
		var fields map[string]any
		if err := json.Unmarshal(doc.Data, &fields); err != nil {
			continue
		}
		if v, ok := fields[field]; ok && fmt.Sprint(v) == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *Memory) Add(_ context.Context, collection string, data []byte) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	doc := Document{ID: id, Data: data}
	m.coll(collection)[id] = doc
	fns := m.subscribers(collection)
	m.mu.Unlock()

	notify(fns, []Change{{Kind: Added, Doc: doc}})
	return id, nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	doc, ok := m.coll(collection)[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.coll(collection), id)
	fns := m.subscribers(collection)
	m.mu.Unlock()

	notify(fns, []Change{{Kind: Removed, Doc: doc}})
	return nil
}

// RunBatch applies every operation or none. Since the store is guarded
// by a single mutex, the whole batch is applied before any subscriber
// observes it; per collection, its changes are delivered as one batch.
func (m *Memory) RunBatch(_ context.Context, ops []BatchOp) error {
	m.mu.Lock()
	perColl := make(map[string][]Change)
	for _, op := range ops {
		switch op.Kind {
		case BatchInsert:
			id := op.ID
			if id == "" {
				id = uuid.NewString()
			}
			_, existed := m.coll(op.Collection)[id]
			doc := Document{ID: id, Data: op.Data}
			m.coll(op.Collection)[id] = doc
			kind := Added
			if existed {
				kind = Modified
			}
			perColl[op.Collection] = append(perColl[op.Collection], Change{Kind: kind, Doc: doc})
		case BatchDelete:
			doc, ok := m.coll(op.Collection)[op.ID]
			if !ok {
				continue // raced delete, nothing to undo
			}
			delete(m.coll(op.Collection), op.ID)
			perColl[op.Collection] = append(perColl[op.Collection], Change{Kind: Removed, Doc: doc})
		default:
			m.mu.Unlock()
			return fmt.Errorf("unknown batch op kind %d", op.Kind)
		}
	}
	type delivery struct {
		fns     []func([]Change)
		changes []Change
	}
	deliveries := make([]delivery, 0, len(perColl))
	for coll, changes := range perColl {
		deliveries = append(deliveries, delivery{fns: m.subscribers(coll), changes: changes})
	}
	m.mu.Unlock()

	for _, d := range deliveries {
		notify(d.fns, d.changes)
	}
	return nil
}

// subscribers snapshots the callbacks for a collection; caller holds the lock.
func (m *Memory) subscribers(collection string) []func([]Change) {
	subs := m.subs[collection]
	fns := make([]func([]Change), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func([]Change), changes []Change) {
	if len(changes) == 0 {
		return
	}
	for _, fn := range fns {
		fn(changes)
	}
}
