package settlement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/odds"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

// Outcome é o sinal de resultado de uma perna vindo do sync de dados esportivos
type Outcome string

const (
	LegWon  Outcome = "leg_won"
	LegLost Outcome = "leg_lost"
	LegPush Outcome = "leg_push"
)

func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case LegWon, LegLost, LegPush:
		return o, nil
	}
	return "", &wager.ValidationError{Field: "outcome", Reason: fmt.Sprintf("unknown leg outcome %q", s)}
}

// LegSignal liga um resultado à perna pela posição
type LegSignal struct {
	Position int     `json:"position"`
	Outcome  Outcome `json:"outcome"`
}

// Grade é o resultado calculado de uma aposta
type Grade struct {
	Status      wager.Status
	Value       decimal.Decimal // delta do ledger: lucro, -stake ou zero
	Payout      odds.Payout     // só para won
	Description string
	Legs        map[int]Outcome // outcome por posição, gravado junto com o status
}

// Evaluate calcula o grade da aposta a partir dos sinais, sem efeitos colaterais.
// Exige exatamente um sinal por perna.
func Evaluate(w *wager.Wager, signals []LegSignal) (Grade, error) {
	byPos, err := indexSignals(w, signals)
	if err != nil {
		return Grade{}, err
	}

	var won, lost, push int
	var live []int // odds das pernas que não deram push
	for _, l := range w.Legs {
		switch byPos[l.Position] {
		case LegWon:
			won++
			live = append(live, l.Odds)
		case LegLost:
			lost++
		case LegPush:
			push++
		}
	}

	switch {
	case lost > 0:
		return Grade{
			Status:      wager.StatusLost,
			Value:       w.Units.Neg(),
			Description: describe(w, won, lost, push),
			Legs:        byPos,
		}, nil
	case won == 0:
		return Grade{
			Status:      wager.StatusPush,
			Value:       decimal.Zero,
			Description: describe(w, won, lost, push),
			Legs:        byPos,
		}, nil
	}

	payout, err := winPayout(w, live, push > 0)
	if err != nil {
		return Grade{}, err
	}
	payout = payout.Rounded()
	return Grade{
		Status:      wager.StatusWon,
		Value:       payout.Profit,
		Payout:      payout,
		Description: describe(w, won, lost, push),
		Legs:        byPos,
	}, nil
}

// winPayout: sem push a odd gravada vale (inclusive override); com push, só as pernas vencedoras entram
func winPayout(w *wager.Wager, live []int, pushed bool) (odds.Payout, error) {
	switch w.Kind {
	case wager.KindStraight:
		return odds.PayoutFor(w.Units, w.Legs[0].Odds)
	case wager.KindParlay:
		if !pushed && w.OddsOverridden {
			return odds.PayoutFor(w.Units, w.Odds)
		}
		c, err := odds.CombineParlay(live)
		if err != nil {
			return odds.Payout{}, err
		}
		return odds.PayoutForMultiplier(w.Units, c.Multiplier), nil
	}
	return odds.Payout{}, fmt.Errorf("wager %d: unknown kind", w.ID)
}

func indexSignals(w *wager.Wager, signals []LegSignal) (map[int]Outcome, error) {
	if len(signals) != len(w.Legs) {
		return nil, &wager.ValidationError{Field: "signals", Reason: fmt.Sprintf("want %d leg signals, got %d", len(w.Legs), len(signals))}
	}
	legs := make(map[int]struct{}, len(w.Legs))
	for _, l := range w.Legs {
		legs[l.Position] = struct{}{}
	}
	out := make(map[int]Outcome, len(signals))
	for _, s := range signals {
		if _, ok := legs[s.Position]; !ok {
			return nil, &wager.ValidationError{Field: "signals", Reason: fmt.Sprintf("no leg at position %d", s.Position)}
		}
		if _, dup := out[s.Position]; dup {
			return nil, &wager.ValidationError{Field: "signals", Reason: fmt.Sprintf("duplicate signal for leg %d", s.Position)}
		}
		o, err := ParseOutcome(string(s.Outcome))
		if err != nil {
			return nil, err
		}
		out[s.Position] = o
	}
	return out, nil
}

// legOutcomes converte para o formato persistido em wager.Result
func (g Grade) legOutcomes() map[int]string {
	out := make(map[int]string, len(g.Legs))
	for pos, o := range g.Legs {
		out[pos] = string(o)
	}
	return out
}

func describe(w *wager.Wager, won, lost, push int) string {
	if w.Kind == wager.KindStraight {
		return fmt.Sprintf("straight %s", w.Legs[0].Description)
	}
	return fmt.Sprintf("parlay %d legs: %d won, %d lost, %d push", len(w.Legs), won, lost, push)
}
