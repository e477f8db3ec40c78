package workflow

import (
	"context"
	"strconv"
	"strings"

	"github.com/radieske/sports-wager-engine/internal/catalog"
	"github.com/radieske/sports-wager-engine/internal/odds"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

// enter move a sessão para step e monta o prompt com as opções válidas daquele passo
func (e *Engine) enter(ctx context.Context, sess *session, step Step) {
	sess.step = step
	p := &Prompt{
		Step: step,
		Kind: sess.kind.String(),
		Legs: append([]wager.Leg(nil), sess.legs...),
	}

	switch step {
	case StepSelectCategory:
		for _, c := range e.cat.Categories() {
			p.Options = append(p.Options, Option{Value: c.Key, Label: c.Label})
		}
	case StepSelectLeague:
		cat, _ := e.cat.Category(sess.draft.category)
		for _, l := range cat.Leagues {
			p.Options = append(p.Options, Option{Value: l.Key, Label: l.Label})
		}
	case StepSelectLineType:
		for _, lt := range e.cat.LineTypes() {
			p.Options = append(p.Options, Option{Value: lt.Key, Label: lt.Label})
		}
	case StepSelectGame:
		gctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		games := e.cat.Games(gctx, sess.draft.league, e.Now())
		cancel()
		sess.draft.offered = make(map[int64]catalog.Game, len(games))
		for _, g := range games {
			sess.draft.offered[g.ID] = g
			p.Options = append(p.Options, Option{Value: strconv.FormatInt(g.ID, 10), Label: g.AwayTeam + " @ " + g.HomeTeam})
		}
		p.Options = append(p.Options, Option{Value: OptionManual, Label: "Enter teams manually"})
		p.Fields = []string{FieldHomeTeam, FieldAwayTeam}
		if len(games) == 0 {
			p.Notice = "no games listed, enter the teams manually"
		}
	case StepSelectSide:
		for _, s := range sidesFor(sess.draft.lineType) {
			p.Options = append(p.Options, Option{Value: s, Label: s})
		}
	case StepEnterLegDetails:
		switch sess.draft.lineType.Selection {
		case catalog.SelectionPlayerProp:
			p.Fields = []string{FieldPlayer, FieldPropType, FieldLine, FieldOdds}
			keys := make([]string, 0, len(e.cat.PropTypes()))
			for _, pt := range e.cat.PropTypes() {
				keys = append(keys, pt.Key)
			}
			p.Notice = "prop types: " + strings.Join(keys, ", ")
		default:
			p.Fields = []string{FieldOdds, FieldLine}
		}
	case StepAddAnotherLeg:
		if len(sess.legs) < e.cfg.MaxLegs {
			p.Options = append(p.Options, Option{Value: OptionAddLeg, Label: "Add another leg"})
		}
		p.Options = append(p.Options, Option{Value: OptionFinish, Label: "Finalize"})
	case StepEnterTotalOdds:
		p.Options = []Option{{Value: OptionAccept, Label: "Use calculated odds"}}
		p.Fields = []string{FieldOdds}
		p.Preview = &Preview{Odds: sess.combined.American, Multiplier: sess.combined.Multiplier}
	case StepSelectStake:
		for _, s := range e.cat.Stakes() {
			p.Options = append(p.Options, Option{Value: s.String(), Label: s.String() + "u"})
		}
	case StepSelectDestination:
		for _, d := range e.cat.Destinations(sess.key.context) {
			p.Options = append(p.Options, Option{Value: d, Label: d})
		}
	case StepConfirm:
		p.Options = []Option{{Value: OptionConfirm, Label: "Confirm"}, {Value: OptionCancel, Label: "Cancel"}}
		if american, m, overridden, err := sess.finalOdds(); err == nil {
			payout := odds.PayoutForMultiplier(sess.units, m).Rounded()
			p.Preview = &Preview{
				Odds:       american,
				Multiplier: m,
				Overridden: overridden,
				Units:      sess.units,
				Payout:     payout.Total,
				Profit:     payout.Profit,
			}
		}
	}
	sess.prompt = p
}

// sidesFor devolve os dois lados da linha de jogo, ou over/under para props
func sidesFor(lt catalog.LineType) []string {
	switch lt.Selection {
	case catalog.SelectionSide:
		return lt.Sides
	case catalog.SelectionPlayerProp:
		return []string{string(wager.SideOver), string(wager.SideUnder)}
	}
	return nil
}
