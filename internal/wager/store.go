package wager

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerKey identifica uma linha de ledger: (owner, group, ano, mês)
type LedgerKey struct {
	OwnerID string
	GroupID string
	Year    int
	Month   int
}

// PeriodOf devolve a chave de ledger do período em que a aposta foi criada (UTC)
func PeriodOf(w *Wager) LedgerKey {
	t := w.CreatedAt.UTC()
	return LedgerKey{OwnerID: w.OwnerID, GroupID: w.GroupID, Year: t.Year(), Month: int(t.Month())}
}

// LedgerEntry acumula o delta de unidades de um capper no período
type LedgerEntry struct {
	LedgerKey
	Delta     decimal.Decimal
	Graded    int
	UpdatedAt time.Time
}

// Result é o resultado a gravar numa aposta pendente.
// Ledger nil significa que o ledger não deve ser tocado (cancelamento).
type Result struct {
	Status      Status
	Description string
	Value       decimal.Decimal
	Ledger      *LedgerKey
	LegOutcomes map[int]string // posição -> outcome; nil não toca nas pernas
}

// Store é a fronteira de persistência das apostas e do ledger.
// Update* e ApplyResult só transicionam apostas pending e devolvem ErrNotPending caso contrário.
type Store interface {
	Create(ctx context.Context, w *Wager) (int64, error)
	Get(ctx context.Context, id int64) (*Wager, error)
	UpdateStatus(ctx context.Context, id int64, status Status, description string, value decimal.Decimal) error
	UpsertLedger(ctx context.Context, key LedgerKey, delta decimal.Decimal) error
	// ApplyResult grava status e ledger atomicamente
	ApplyResult(ctx context.Context, id int64, r Result) error
	Ledger(ctx context.Context, key LedgerKey) (LedgerEntry, error)
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]Wager, error)
}
