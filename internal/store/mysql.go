package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MySQL persists documents as JSON rows in a single table keyed by
// (collection, id). Change events for local writes are fanned out to
// in-process subscribers immediately after commit; when a Broker is
// attached, the same events are also published so other instances see
// them. Events arriving from the broker are injected through Inject.
//
// This gives the replicated, eventually-consistent semantics the
// protocol is designed for: writes are durable in MySQL, while the
// projections on every instance converge as events propagate, in no
// guaranteed order across collections.
type MySQL struct {
	db     *sql.DB
	broker *Broker

	mu        sync.Mutex
	subs      map[string]map[int]func([]Change)
	nextSubID int
}

// NewMySQL creates the documents table if needed and returns the store.
// broker may be nil for single-instance deployments.
func NewMySQL(db *sql.DB, broker *Broker) (*MySQL, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS documents (
		collection VARCHAR(64)  NOT NULL,
		id         CHAR(36)     NOT NULL,
		doc        JSON         NOT NULL,
		created_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &MySQL{
		db:     db,
		broker: broker,
		subs:   make(map[string]map[int]func([]Change)),
	}, nil
}

// Subscribe replays the collection's current rows as Added changes and
// then delivers live deltas, both local and broker-forwarded.
//
// The subscriber is registered before the snapshot query and buffers
// deltas arriving in between, so a write committed during the query is
// never lost. A delta the snapshot already covers may therefore be
// delivered twice; consumers apply changes idempotently.
func (s *MySQL) Subscribe(collection string, fn func([]Change)) func() {
	buf := newReplayBuffer(fn)

	s.mu.Lock()
	subs, ok := s.subs[collection]
	if !ok {
		subs = make(map[int]func([]Change))
		s.subs[collection] = subs
	}
	id := s.nextSubID
	s.nextSubID++
	subs[id] = buf.deliver
	s.mu.Unlock()

	initial, err := s.List(context.Background(), collection)
	if err != nil {
		initial = nil
	}
	if len(initial) > 0 {
		changes := make([]Change, 0, len(initial))
		for _, doc := range initial {
			changes = append(changes, Change{Kind: Added, Doc: doc})
		}
		fn(changes)
	}
	buf.finish()

	return func() {
		s.mu.Lock()
		delete(s.subs[collection], id)
		s.mu.Unlock()
	}
}

func (s *MySQL) Get(ctx context.Context, collection, id string) (Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: data}, nil
}

func (s *MySQL) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc FROM documents WHERE collection=? ORDER BY created_at`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// QueryField filters on a top-level JSON field by string equality.
func (s *MySQL) QueryField(ctx context.Context, collection, field, value string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc FROM documents
		 WHERE collection=? AND JSON_UNQUOTE(JSON_EXTRACT(doc, CONCAT('$.', ?))) = ?`,
		collection, field, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *MySQL) Add(ctx context.Context, collection string, data []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES (?,?,?)`, collection, id, data)
	if err != nil {
		return "", err
	}
	s.emit(collection, []Change{{Kind: Added, Doc: Document{ID: id, Data: data}}})
	return id, nil
}

func (s *MySQL) Delete(ctx context.Context, collection, id string) error {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection=? AND id=?`, collection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.emit(collection, []Change{{Kind: Removed, Doc: doc}})
	return nil
}

// RunBatch executes every operation inside one SQL transaction so the
// insert-sale-and-delete-pending pair can never half-apply.
func (s *MySQL) RunBatch(ctx context.Context, ops []BatchOp) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	perColl := make(map[string][]Change)
	for _, op := range ops {
		switch op.Kind {
		case BatchInsert:
			id := op.ID
			if id == "" {
				id = uuid.NewString()
			}
			var exists int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM documents WHERE collection=? AND id=?`,
				op.Collection, id).Scan(&exists)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO documents (collection, id, doc) VALUES (?,?,?)
				 ON DUPLICATE KEY UPDATE doc=VALUES(doc)`,
				op.Collection, id, op.Data); err != nil {
				return err
			}
			kind := Added
			if exists > 0 {
				kind = Modified
			}
			perColl[op.Collection] = append(perColl[op.Collection],
				Change{Kind: kind, Doc: Document{ID: id, Data: op.Data}})
		case BatchDelete:
			var data []byte
			err := tx.QueryRowContext(ctx,
				`SELECT doc FROM documents WHERE collection=? AND id=?`,
				op.Collection, op.ID).Scan(&data)
			if err == sql.ErrNoRows {
				continue // raced delete inside a batch is a no-op
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection=? AND id=?`,
				op.Collection, op.ID); err != nil {
				return err
			}
			perColl[op.Collection] = append(perColl[op.Collection],
				Change{Kind: Removed, Doc: Document{ID: op.ID, Data: data}})
		default:
			return fmt.Errorf("unknown batch op kind %d", op.Kind)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	for coll, changes := range perColl {
		s.emit(coll, changes)
	}
	return nil
}

// Inject delivers changes that originated on another instance to local
// subscribers. The broker consume loop is the only caller.
func (s *MySQL) Inject(collection string, changes []Change) {
	s.deliver(collection, changes)
}

// emit fans a local write out to in-process subscribers and, when a
// broker is attached, to every other instance.
func (s *MySQL) emit(collection string, changes []Change) {
	s.deliver(collection, changes)
	if s.broker != nil {
		s.broker.Publish(collection, changes)
	}
}

func (s *MySQL) deliver(collection string, changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	subs := s.subs[collection]
	fns := make([]func([]Change), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(changes)
	}
}
