package repo

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wager"
)

// Memory implementa wager.Store em memória (STORE_DRIVER=memory e testes).
// Segue as mesmas regras do Postgres: integridade de game_id e transições só a partir de pending.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	wagers map[int64]*wager.Wager
	ledger map[wager.LedgerKey]*wager.LedgerEntry
	games  map[int64]struct{}
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		wagers: make(map[int64]*wager.Wager),
		ledger: make(map[wager.LedgerKey]*wager.LedgerEntry),
		games:  make(map[int64]struct{}),
		now:    time.Now,
	}
}

var _ wager.Store = (*Memory)(nil)

// SetClock troca o relógio usado em CreatedAt/UpdatedAt
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// AddGame registra um jogo conhecido para a checagem de integridade
func (m *Memory) AddGame(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.games[id] = struct{}{}
	}
}

func (m *Memory) Create(ctx context.Context, w *wager.Wager) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &wager.PersistenceError{Op: "create", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range w.Legs {
		if l.Game.ID == nil {
			continue
		}
		if _, ok := m.games[*l.Game.ID]; !ok {
			return 0, &wager.IntegrityError{Entity: "game", Ref: strconv.FormatInt(*l.Game.ID, 10)}
		}
	}

	m.nextID++
	cp := cloneWager(w)
	cp.ID = m.nextID
	cp.Status = wager.StatusPending
	now := m.now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	m.wagers[cp.ID] = cp
	return cp.ID, nil
}

func (m *Memory) Get(ctx context.Context, id int64) (*wager.Wager, error) {
	if err := ctx.Err(); err != nil {
		return nil, &wager.PersistenceError{Op: "get", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wagers[id]
	if !ok {
		return nil, wager.ErrNotFound
	}
	return cloneWager(w), nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id int64, status wager.Status, description string, value decimal.Decimal) error {
	return m.ApplyResult(ctx, id, wager.Result{Status: status, Description: description, Value: value})
}

func (m *Memory) UpsertLedger(ctx context.Context, key wager.LedgerKey, delta decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return &wager.PersistenceError{Op: "upsert ledger", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(key, delta)
	return nil
}

func (m *Memory) upsertLocked(key wager.LedgerKey, delta decimal.Decimal) {
	e, ok := m.ledger[key]
	if !ok {
		e = &wager.LedgerEntry{LedgerKey: key}
		m.ledger[key] = e
	}
	e.Delta = e.Delta.Add(delta)
	e.Graded++
	e.UpdatedAt = m.now()
}

func (m *Memory) ApplyResult(ctx context.Context, id int64, r wager.Result) error {
	if err := ctx.Err(); err != nil {
		return &wager.PersistenceError{Op: "apply result", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wagers[id]
	if !ok {
		return wager.ErrNotFound
	}
	if w.Status != wager.StatusPending {
		return wager.ErrNotPending
	}
	w.Status = r.Status
	w.ResultDescription = r.Description
	w.ResultValue = r.Value
	w.UpdatedAt = m.now()
	for i := range w.Legs {
		if o, ok := r.LegOutcomes[w.Legs[i].Position]; ok {
			w.Legs[i].Outcome = o
		}
	}
	if r.Ledger != nil {
		m.upsertLocked(*r.Ledger, r.Value)
	}
	return nil
}

func (m *Memory) Ledger(ctx context.Context, key wager.LedgerKey) (wager.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return wager.LedgerEntry{}, &wager.PersistenceError{Op: "ledger", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.ledger[key]; ok {
		return *e, nil
	}
	return wager.LedgerEntry{LedgerKey: key}, nil
}

func (m *Memory) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]wager.Wager, error) {
	if err := ctx.Err(); err != nil {
		return nil, &wager.PersistenceError{Op: "list pending", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []wager.Wager
	for _, w := range m.wagers {
		if w.Status == wager.StatusPending && w.CreatedAt.Before(createdBefore) {
			out = append(out, *cloneWager(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneWager(w *wager.Wager) *wager.Wager {
	cp := *w
	cp.Legs = make([]wager.Leg, len(w.Legs))
	copy(cp.Legs, w.Legs)
	return &cp
}
