// Package mailbox is the in-process transport: buffered per-address channels
// for envelope delivery, plus the service directory agents search to find
// counterparties.
package mailbox

import (
	"fmt"
	"sync"

	"github.com/talgya/tradeworld/internal/protocol"
)

// DefaultQueueSize is the per-address envelope buffer.
const DefaultQueueSize = 256

// Mailbox routes envelopes between registered addresses. Delivery preserves
// per-sender order; a full queue is a send error rather than a silent drop.
type Mailbox struct {
	mu     sync.RWMutex
	queues map[string]chan *protocol.Envelope

	services map[string]*protocol.Description
	order    []string // registration order, for deterministic search results
}

// New creates an empty mailbox.
func New() *Mailbox {
	return &Mailbox{
		queues:   make(map[string]chan *protocol.Envelope),
		services: make(map[string]*protocol.Description),
	}
}

// Register creates the inbox for an address and returns its receive side.
// Registering an address twice replaces the old inbox.
func (m *Mailbox) Register(addr string) <-chan *protocol.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := make(chan *protocol.Envelope, DefaultQueueSize)
	m.queues[addr] = q
	return q
}

// Send delivers an envelope to its destination's inbox. The message crosses
// in wire form: the recipient gets a decoded copy, never memory shared with
// the sender.
func (m *Mailbox) Send(env *protocol.Envelope) error {
	m.mu.RLock()
	q, ok := m.queues[env.To]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no inbox registered for %s", env.To)
	}
	data, err := env.Message.Encode()
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", env.To, err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		return fmt.Errorf("decode message for %s: %w", env.To, err)
	}
	select {
	case q <- &protocol.Envelope{ID: env.ID, To: env.To, Sender: env.Sender, Message: msg}:
		return nil
	default:
		return fmt.Errorf("inbox for %s is full", env.To)
	}
}

// Drain returns every envelope currently queued for an address without
// blocking.
func (m *Mailbox) Drain(addr string) []*protocol.Envelope {
	m.mu.RLock()
	q, ok := m.queues[addr]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	var envs []*protocol.Envelope
	for {
		select {
		case env := <-q:
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

// RegisterService publishes or replaces an address's service description.
func (m *Mailbox) RegisterService(addr string, d *protocol.Description) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.services[addr]; !seen {
		m.order = append(m.order, addr)
	}
	m.services[addr] = d
}

// UnregisterService withdraws an address's service description. A later
// re-registration joins the back of the search order.
func (m *Mailbox) UnregisterService(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.services[addr]; !seen {
		return
	}
	delete(m.services, addr)
	for i, a := range m.order {
		if a == addr {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Search returns the addresses whose registered description matches the
// query, excluding the searcher itself, in registration order.
func (m *Mailbox) Search(q *protocol.Query, exclude string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []string
	for _, addr := range m.order {
		if addr == exclude {
			continue
		}
		if d, ok := m.services[addr]; ok && q.Matches(d) {
			matches = append(matches, addr)
		}
	}
	return matches
}
