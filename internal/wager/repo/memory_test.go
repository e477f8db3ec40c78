package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wager"
)

func straight(gameID *int64) *wager.Wager {
	l := wager.Leg{
		Position:  0,
		League:    "nba",
		LineType:  "moneyline",
		Odds:      -110,
		Selection: wager.SideSelection{Side: wager.SideHome},
	}
	if gameID != nil {
		l.Game.ID = gameID
	} else {
		l.Game.Manual = &wager.ManualGame{Home: "Lakers", Away: "Celtics"}
	}
	return &wager.Wager{OwnerID: "u1", GroupID: "g1", Kind: wager.KindStraight, Legs: []wager.Leg{l}, Units: decimal.NewFromInt(1), Odds: -110}
}

func TestMemory_CreateIntegrity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.AddGame(10)

	missing := int64(99)
	if _, err := m.Create(ctx, straight(&missing)); !errors.Is(err, wager.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}

	known := int64(10)
	id, err := m.Create(ctx, straight(&known))
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	// entrada manual (game id nulo) é aceita sem checagem
	if _, err := m.Create(ctx, straight(nil)); err != nil {
		t.Fatalf("manual entry rejected: %v", err)
	}
}

func TestMemory_ApplyResultOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetClock(func() time.Time { return time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC) })

	id, _ := m.Create(ctx, straight(nil))
	w, _ := m.Get(ctx, id)
	key := wager.PeriodOf(w)

	r := wager.Result{Status: wager.StatusWon, Description: "won", Value: decimal.RequireFromString("0.9091"), Ledger: &key}
	if err := m.ApplyResult(ctx, id, r); err != nil {
		t.Fatal(err)
	}
	if err := m.ApplyResult(ctx, id, r); !errors.Is(err, wager.ErrNotPending) {
		t.Fatalf("second apply: expected ErrNotPending, got %v", err)
	}
	if err := m.UpdateStatus(ctx, id, wager.StatusCancelled, "", decimal.Zero); !errors.Is(err, wager.ErrNotPending) {
		t.Fatalf("cancel after grade: expected ErrNotPending, got %v", err)
	}

	e, _ := m.Ledger(ctx, key)
	if e.Graded != 1 || e.Delta.String() != "0.9091" {
		t.Errorf("ledger = %+v", e)
	}
	if key.Year != 2026 || key.Month != 5 {
		t.Errorf("period = %+v", key)
	}

	if err := m.ApplyResult(ctx, 404, r); !errors.Is(err, wager.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, _ := m.Create(ctx, straight(nil))
	w, _ := m.Get(ctx, id)
	w.Legs[0].Odds = 500
	again, _ := m.Get(ctx, id)
	if again.Legs[0].Odds != -110 {
		t.Fatal("Get must not expose internal state")
	}
}

func TestMemory_ListPending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	m.SetClock(func() time.Time { return now })

	a, _ := m.Create(ctx, straight(nil))
	now = base.Add(time.Hour)
	b, _ := m.Create(ctx, straight(nil))
	_ = m.UpdateStatus(ctx, a, wager.StatusCancelled, "void", decimal.Zero)

	out, err := m.ListPending(ctx, base.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != b {
		t.Fatalf("pending = %+v", out)
	}
}
