package wager

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind é o tipo da aposta. Conjunto fechado: novos tipos exigem tratar todos os switch.
type Kind int

const (
	KindStraight Kind = iota + 1
	KindParlay
)

func (k Kind) String() string {
	switch k {
	case KindStraight:
		return "straight"
	case KindParlay:
		return "parlay"
	}
	return "unknown"
}

// ParseKind converte "straight" | "parlay" para Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "straight":
		return KindStraight, nil
	case "parlay":
		return KindParlay, nil
	}
	return 0, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown wager kind %q", s)}
}

// Status da aposta no ciclo pending -> {won, lost, push, cancelled}
type Status string

const (
	StatusPending   Status = "pending"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
	StatusPush      Status = "push"
	StatusCancelled Status = "cancelled"
)

// Terminal indica status imutável
func (s Status) Terminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusPush, StatusCancelled:
		return true
	}
	return false
}

// Graded indica status que passa pelo ledger (cancelled não conta)
func (s Status) Graded() bool {
	return s == StatusWon || s == StatusLost || s == StatusPush
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(s))
	switch st {
	case StatusPending, StatusWon, StatusLost, StatusPush, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown wager status %q", s)
}

// Wager é a aposta persistida
type Wager struct {
	ID                int64
	OwnerID           string
	GroupID           string
	Kind              Kind
	Legs              []Leg
	Units             decimal.Decimal
	Odds              int  // odd combinada (americana)
	OddsOverridden    bool // odd total informada pelo capper em vez da calculada
	Status            Status
	ResultDescription string
	ResultValue       decimal.Decimal
	Destination       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checa as invariantes estruturais antes de persistir
func (w *Wager) Validate() error {
	if w.OwnerID == "" {
		return &ValidationError{Field: "owner", Reason: "owner id required"}
	}
	if !w.Units.IsPositive() {
		return &ValidationError{Field: "units", Reason: "units must be positive"}
	}
	switch w.Kind {
	case KindStraight:
		if len(w.Legs) != 1 {
			return &ValidationError{Field: "legs", Reason: "straight wager takes exactly one leg"}
		}
	case KindParlay:
		if len(w.Legs) < 2 {
			return &ValidationError{Field: "legs", Reason: "parlay needs at least two legs"}
		}
	default:
		return &ValidationError{Field: "kind", Reason: "unknown wager kind"}
	}

	seen := make(map[string]struct{}, len(w.Legs))
	for i := range w.Legs {
		if err := w.Legs[i].Validate(); err != nil {
			return err
		}
		k := w.Legs[i].OutcomeKey()
		if _, dup := seen[k]; dup {
			return &ValidationError{Field: "legs", Reason: "duplicate leg on the same outcome"}
		}
		seen[k] = struct{}{}
	}
	return nil
}

// LegOdds devolve as odds de cada perna na ordem
func (w *Wager) LegOdds() []int {
	out := make([]int, len(w.Legs))
	for i, l := range w.Legs {
		out[i] = l.Odds
	}
	return out
}
