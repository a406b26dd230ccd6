package store

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// changesExchange is the fanout exchange every instance publishes its
// committed change events to.
const changesExchange = "cards.changes"

// Broker fans change events out across service instances through a
// RabbitMQ fanout exchange so each instance's projections converge on
// the same state. Messages carry the origin instance id; an instance
// skips its own messages because local writes were already delivered.
type Broker struct {
	url        string
	instanceID string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

type wireChange struct {
	Kind ChangeKind      `json:"kind"`
	ID   string          `json:"id"`
	Doc  json.RawMessage `json:"doc"`
}

type changeEnvelope struct {
	Origin     string       `json:"origin"`
	Collection string       `json:"collection"`
	Changes    []wireChange `json:"changes"`
}

// NewBroker dials the broker and declares the fanout exchange. The
// connection is re-established lazily on publish failures and by the
// forwarding loop.
func NewBroker(url string) (*Broker, error) {
	b := &Broker{url: url, instanceID: uuid.NewString()}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(changesExchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	b.mu.Lock()
	b.conn, b.ch = conn, ch
	b.mu.Unlock()
	return nil
}

// Publish sends one collection's change batch to the exchange. Failures
// are logged and swallowed: a missed fan-out message degrades other
// instances to eventual catch-up on restart, it never blocks the write
// that already committed.
func (b *Broker) Publish(collection string, changes []Change) {
	env := changeEnvelope{
		Origin:     b.instanceID,
		Collection: collection,
		Changes:    make([]wireChange, 0, len(changes)),
	}
	for _, c := range changes {
		env.Changes = append(env.Changes, wireChange{Kind: c.Kind, ID: c.Doc.ID, Doc: c.Doc.Data})
	}
	body, err := json.Marshal(env)
	if err != nil {
		log.Printf("broker: marshal changes failed: %v", err)
		return
	}

	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		log.Printf("broker: not connected, dropping %d change(s) for %s", len(changes), collection)
		return
	}
	err = ch.Publish(changesExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
	if err != nil {
		log.Printf("broker: publish failed: %v", err)
		if recErr := b.connect(); recErr != nil {
			log.Printf("broker: reconnect failed: %v", recErr)
		}
	}
}

// StartForwarding consumes the exchange on an exclusive queue and
// injects remote-origin changes into the target store. It runs a
// reconnect loop with backoff and never returns; run it in its own
// goroutine.
func (b *Broker) StartForwarding(target *MySQL) {
	backoff := time.Second
	for {
		if err := b.consumeLoop(target); err != nil {
			log.Printf("broker: consume loop ended: %v; reconnecting in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			if err := b.connect(); err != nil {
				log.Printf("broker: reconnect failed: %v", err)
			}
			continue
		}
		backoff = time.Second
	}
}

func (b *Broker) consumeLoop(target *MySQL) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("no channel")
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil) // server-named, exclusive
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", changesExchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		var env changeEnvelope
		if err := json.Unmarshal(d.Body, &env); err != nil {
			log.Printf("broker: bad change envelope: %v", err)
			continue
		}
		if env.Origin == b.instanceID {
			continue // our own write, already delivered locally
		}
		changes := make([]Change, 0, len(env.Changes))
		for _, wc := range env.Changes {
			changes = append(changes, Change{Kind: wc.Kind, Doc: Document{ID: wc.ID, Data: wc.Doc}})
		}
		target.Inject(env.Collection, changes)
	}
	return fmt.Errorf("deliveries channel closed")
}

// Close shuts down the AMQP connection.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
}
