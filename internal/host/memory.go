// Package host provides an in-process transactional host.
//
// Each transaction works on a private snapshot of state, ledger and
// journal; the snapshot replaces the live copy only when the transaction
// function returns nil. Transactions are serialized.
package host

import (
	"context"
	"sync"
	"time"

	"option_go/internal/domain"
	"option_go/internal/token"
)

// Memory is an in-memory domain.Host.
type Memory struct {
	mu      sync.Mutex
	state   map[domain.InstanceID]map[string]string
	ledger  *token.MemoryLedger
	journal []domain.JournalEntry
}

// NewMemory creates a host over ledger. A nil ledger starts empty.
func NewMemory(ledger *token.MemoryLedger) *Memory {
	if ledger == nil {
		ledger = token.NewMemoryLedger()
	}
	return &Memory{
		state:  make(map[domain.InstanceID]map[string]string),
		ledger: ledger,
	}
}

var _ domain.Host = (*Memory)(nil)

// Ledger returns the live ledger. Mutating it outside a transaction is
// intended for test setup only.
func (m *Memory) Ledger() *token.MemoryLedger {
	return m.ledger
}

// Journal returns a copy of the committed journal.
func (m *Memory) Journal() []domain.JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.JournalEntry, len(m.journal))
	copy(out, m.journal)
	return out
}

// Transact runs fn against a snapshot and commits it if fn succeeds.
func (m *Memory) Transact(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		state:   make(map[domain.InstanceID]map[string]string, len(m.state)),
		ledger:  m.ledger.Clone(),
		nextSeq: uint64(len(m.journal)) + 1,
	}
	for id, kv := range m.state {
		c := make(map[string]string, len(kv))
		for k, v := range kv {
			c[k] = v
		}
		tx.state[id] = c
	}

	if err := fn(tx); err != nil {
		return err
	}

	m.state = tx.state
	m.ledger.Restore(tx.ledger)
	m.journal = append(m.journal, tx.journal...)
	return nil
}

type memTx struct {
	state   map[domain.InstanceID]map[string]string
	ledger  *token.MemoryLedger
	journal []domain.JournalEntry
	nextSeq uint64
}

func (t *memTx) State(id domain.InstanceID) domain.KV {
	return &memKV{tx: t, id: id}
}

func (t *memTx) Ledger() domain.Ledger {
	return t.ledger
}

func (t *memTx) Journal(_ context.Context, entry *domain.JournalEntry) error {
	entry.Seq = t.nextSeq
	entry.CreatedAt = time.Now()
	t.nextSeq++
	t.journal = append(t.journal, *entry)
	return nil
}

type memKV struct {
	tx *memTx
	id domain.InstanceID
}

func (kv *memKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := kv.tx.state[kv.id][key]
	return v, ok, nil
}

func (kv *memKV) Set(_ context.Context, key, value string) error {
	m, ok := kv.tx.state[kv.id]
	if !ok {
		m = make(map[string]string)
		kv.tx.state[kv.id] = m
	}
	m[key] = value
	return nil
}
