package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/catalog"
	"github.com/radieske/sports-wager-engine/internal/odds"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

func (e *Engine) dispatch(ctx context.Context, sess *session, ev Event) (Result, error) {
	switch sess.step {
	case StepSelectCategory:
		return e.onCategory(ctx, sess, ev)
	case StepSelectLeague:
		return e.onLeague(ctx, sess, ev)
	case StepSelectLineType:
		return e.onLineType(ctx, sess, ev)
	case StepSelectGame:
		return e.onGame(ctx, sess, ev)
	case StepSelectSide:
		return e.onSide(ctx, sess, ev)
	case StepEnterLegDetails:
		return e.onLegDetails(ctx, sess, ev)
	case StepAddAnotherLeg:
		return e.onAddAnother(ctx, sess, ev)
	case StepEnterTotalOdds:
		return e.onTotalOdds(ctx, sess, ev)
	case StepSelectStake:
		return e.onStake(ctx, sess, ev)
	case StepSelectDestination:
		return e.onDestination(ctx, sess, ev)
	case StepConfirm:
		return e.onConfirm(ctx, sess, ev)
	}
	return e.invalid(sess, &wager.ValidationError{Field: "step", Reason: "unknown step " + sess.step.String()})
}

// selection exige um Select entre as opções do prompt corrente
func selection(sess *session, ev Event) (string, error) {
	sel, ok := ev.(Select)
	if !ok {
		return "", &wager.ValidationError{Field: "input", Reason: "this step expects a selection"}
	}
	opt := strings.TrimSpace(sel.Option)
	if !sess.prompt.accepts(opt) {
		return "", &wager.ValidationError{Field: "option", Reason: fmt.Sprintf("%q is not a valid option for %s", sel.Option, sess.step)}
	}
	return opt, nil
}

func (e *Engine) advance(ctx context.Context, sess *session, step Step) (Result, error) {
	e.enter(ctx, sess, step)
	return Result{Outcome: OutcomeRePrompt, Prompt: sess.prompt}, nil
}

func (e *Engine) onCategory(ctx context.Context, sess *session, ev Event) (Result, error) {
	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	sess.draft = draft{category: opt}
	return e.advance(ctx, sess, StepSelectLeague)
}

func (e *Engine) onLeague(ctx context.Context, sess *session, ev Event) (Result, error) {
	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	sess.draft.league = opt
	return e.advance(ctx, sess, StepSelectLineType)
}

func (e *Engine) onLineType(ctx context.Context, sess *session, ev Event) (Result, error) {
	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	lt, _ := e.cat.LineType(opt)
	sess.draft.lineType = lt
	return e.advance(ctx, sess, StepSelectGame)
}

// onGame aceita um jogo listado, a opção manual (re-prompt pedindo os times) ou o formulário com os times
func (e *Engine) onGame(ctx context.Context, sess *session, ev Event) (Result, error) {
	if sub, ok := ev.(Submit); ok {
		home := strings.TrimSpace(sub.Fields[FieldHomeTeam])
		away := strings.TrimSpace(sub.Fields[FieldAwayTeam])
		if home == "" || away == "" {
			return e.invalid(sess, &wager.ValidationError{Field: "game", Reason: "manual entry needs both team labels"})
		}
		sess.draft.game = &wager.GameRef{Manual: &wager.ManualGame{Home: home, Away: away}}
		sess.draft.label = away + " @ " + home
		return e.advance(ctx, sess, StepSelectSide)
	}

	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	if opt == OptionManual {
		sess.prompt = sess.prompt.withNotice("enter the home and away team labels")
		return Result{Outcome: OutcomeRePrompt, Prompt: sess.prompt}, nil
	}
	id, err := strconv.ParseInt(opt, 10, 64)
	g, listed := sess.draft.offered[id]
	if err != nil || !listed {
		return e.invalid(sess, &wager.ValidationError{Field: "game", Reason: "unknown game " + opt})
	}
	sess.draft.game = &wager.GameRef{ID: &g.ID}
	sess.draft.label = g.AwayTeam + " @ " + g.HomeTeam
	return e.advance(ctx, sess, StepSelectSide)
}

func (e *Engine) onSide(ctx context.Context, sess *session, ev Event) (Result, error) {
	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	side, err := wager.ParseSide(opt)
	if err != nil {
		return e.invalid(sess, err)
	}
	sess.draft.side = side
	return e.advance(ctx, sess, StepEnterLegDetails)
}

func (e *Engine) onLegDetails(ctx context.Context, sess *session, ev Event) (Result, error) {
	sub, ok := ev.(Submit)
	if !ok {
		return e.invalid(sess, &wager.ValidationError{Field: "input", Reason: "this step expects a form"})
	}
	leg, err := e.buildLeg(sess, sub.Fields)
	if err != nil {
		return e.invalid(sess, err)
	}
	key := leg.OutcomeKey()
	for i := range sess.legs {
		if sess.legs[i].OutcomeKey() == key {
			return e.invalid(sess, &wager.ValidationError{Field: "legs", Reason: "duplicate leg on the same outcome"})
		}
	}
	sess.legs = append(sess.legs, leg)
	sess.draft = draft{}

	switch sess.kind {
	case wager.KindStraight:
		return e.advance(ctx, sess, StepSelectStake)
	case wager.KindParlay:
		return e.advance(ctx, sess, StepAddAnotherLeg)
	}
	return e.invalid(sess, &wager.ValidationError{Field: "kind", Reason: "unknown wager kind"})
}

func (e *Engine) buildLeg(sess *session, fields map[string]string) (wager.Leg, error) {
	d := sess.draft
	if d.game == nil {
		return wager.Leg{}, &wager.ValidationError{Field: "game", Reason: "game required"}
	}
	american, err := parseOdds(fields[FieldOdds])
	if err != nil {
		return wager.Leg{}, err
	}
	leg := wager.Leg{
		Position: len(sess.legs) + 1,
		Game:     *d.game,
		League:   d.league,
		LineType: d.lineType.Key,
		Odds:     american,
	}

	switch d.lineType.Selection {
	case catalog.SelectionSide:
		leg.Selection = wager.SideSelection{Side: d.side}
		leg.Description = strings.TrimSpace(fmt.Sprintf("%s - %s %s %s", d.label, d.lineType.Label, d.side, strings.TrimSpace(fields[FieldLine])))
	case catalog.SelectionPlayerProp:
		player := strings.TrimSpace(fields[FieldPlayer])
		if player == "" {
			return wager.Leg{}, &wager.ValidationError{Field: FieldPlayer, Reason: "player required"}
		}
		pt, ok := e.cat.PropType(strings.TrimSpace(fields[FieldPropType]))
		if !ok {
			return wager.Leg{}, &wager.ValidationError{Field: FieldPropType, Reason: fmt.Sprintf("unknown prop type %q", fields[FieldPropType])}
		}
		line, err := strconv.ParseFloat(strings.TrimSpace(fields[FieldLine]), 64)
		if err != nil {
			return wager.Leg{}, &wager.ValidationError{Field: FieldLine, Reason: "line must be numeric"}
		}
		if !(line >= pt.Min && line <= pt.Max) {
			return wager.Leg{}, &wager.ValidationError{Field: FieldLine, Reason: fmt.Sprintf("line %g outside [%g,%g] for %s", line, pt.Min, pt.Max, pt.Key)}
		}
		leg.Selection = wager.PropSelection{Player: player, PropType: pt.Key, Line: line, Direction: d.side}
		leg.Description = fmt.Sprintf("%s - %s %s %g %s", d.label, player, d.side, line, pt.Label)
	default:
		return wager.Leg{}, &wager.ValidationError{Field: "line_type", Reason: "line type has no selection kind"}
	}

	if err := leg.Validate(); err != nil {
		return wager.Leg{}, err
	}
	return leg, nil
}

func parseOdds(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &wager.ValidationError{Field: FieldOdds, Reason: "odds must be an integer"}
	}
	if err := odds.ValidateAmerican(n); err != nil {
		return 0, &wager.ValidationError{Field: FieldOdds, Reason: err.Error()}
	}
	return n, nil
}

func (e *Engine) onAddAnother(ctx context.Context, sess *session, ev Event) (Result, error) {
	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	if opt == OptionAddLeg {
		sess.override = 0
		return e.advance(ctx, sess, StepSelectCategory)
	}
	if len(sess.legs) < 2 {
		return e.invalid(sess, &wager.ValidationError{Field: "legs", Reason: "parlay needs at least two legs, add another leg"})
	}
	c, err := odds.CombineParlay(legOdds(sess.legs))
	if err != nil {
		return e.invalid(sess, &wager.ValidationError{Field: "odds", Reason: err.Error()})
	}
	sess.combined = c
	return e.advance(ctx, sess, StepEnterTotalOdds)
}

func (e *Engine) onTotalOdds(ctx context.Context, sess *session, ev Event) (Result, error) {
	if sub, ok := ev.(Submit); ok {
		american, err := parseOdds(sub.Fields[FieldOdds])
		if err != nil {
			return e.invalid(sess, err)
		}
		sess.override = american
		return e.advance(ctx, sess, StepSelectStake)
	}
	if _, err := selection(sess, ev); err != nil {
		return e.invalid(sess, err)
	}
	sess.override = 0
	return e.advance(ctx, sess, StepSelectStake)
}

func (e *Engine) onStake(ctx context.Context, sess *session, ev Event) (Result, error) {
	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	units, err := decimal.NewFromString(opt)
	if err != nil {
		return e.invalid(sess, &wager.ValidationError{Field: "units", Reason: "invalid stake"})
	}
	sess.units = units
	return e.advance(ctx, sess, StepSelectDestination)
}

func (e *Engine) onDestination(ctx context.Context, sess *session, ev Event) (Result, error) {
	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	sess.dest = opt
	return e.advance(ctx, sess, StepConfirm)
}

func (e *Engine) onConfirm(ctx context.Context, sess *session, ev Event) (Result, error) {
	opt, err := selection(sess, ev)
	if err != nil {
		return e.invalid(sess, err)
	}
	if opt == OptionCancel {
		e.sessions.remove(sess, time.Time{})
		e.sessionsChanged()
		return Result{Outcome: OutcomeCancelled}, nil
	}

	american, _, overridden, err := sess.finalOdds()
	if err != nil {
		return e.invalid(sess, &wager.ValidationError{Field: "odds", Reason: err.Error()})
	}
	w := &wager.Wager{
		OwnerID:        sess.key.owner,
		GroupID:        sess.key.context,
		Kind:           sess.kind,
		Legs:           append([]wager.Leg(nil), sess.legs...),
		Units:          sess.units,
		Odds:           american,
		OddsOverridden: overridden,
		Status:         wager.StatusPending,
		Destination:    sess.dest,
	}
	if err := w.Validate(); err != nil {
		return e.invalid(sess, err)
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	id, err := e.store.Create(cctx, w)
	cancel()
	if err != nil {
		reason := storeReason(err)
		if reason == ReasonPersistence {
			var pe *wager.PersistenceError
			if !errors.As(err, &pe) {
				err = &wager.PersistenceError{Op: "create", Err: err}
			}
		}
		e.log.Warn("wager create failed, session kept",
			zap.String("owner", sess.key.owner),
			zap.String("context", sess.key.context),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return e.rejectWith(sess.prompt.withNotice(err.Error()), reason, err)
	}

	w.ID = id
	w.CreatedAt = e.Now()
	w.UpdatedAt = w.CreatedAt
	e.sessions.remove(sess, time.Time{})
	e.sessionsChanged()
	if e.Hooks.OnCreated != nil {
		e.Hooks.OnCreated(w.Kind)
	}
	e.log.Info("wager created",
		zap.Int64("wagerId", id),
		zap.String("owner", w.OwnerID),
		zap.String("group", w.GroupID),
		zap.Stringer("kind", w.Kind),
		zap.Int("odds", w.Odds),
		zap.String("units", w.Units.String()),
	)

	if e.pub != nil {
		pctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		if err := e.pub.PublishCreated(pctx, w); err != nil {
			e.log.Warn("publish wager created failed", zap.Int64("wagerId", id), zap.Error(err))
		}
		cancel()
	}
	return Result{Outcome: OutcomeCreated, WagerID: id}, nil
}

// finalOdds devolve a odd da aposta e o multiplicador usado na prévia
func (sess *session) finalOdds() (american int, multiplier float64, overridden bool, err error) {
	switch sess.kind {
	case wager.KindStraight:
		if len(sess.legs) != 1 {
			return 0, 0, false, fmt.Errorf("straight wager takes exactly one leg")
		}
		m, err := odds.ToDecimalMultiplier(sess.legs[0].Odds)
		return sess.legs[0].Odds, m, false, err
	case wager.KindParlay:
		if sess.override != 0 {
			m, err := odds.ToDecimalMultiplier(sess.override)
			return sess.override, m, true, err
		}
		return sess.combined.American, sess.combined.Multiplier, false, nil
	}
	return 0, 0, false, fmt.Errorf("unknown wager kind")
}

func legOdds(legs []wager.Leg) []int {
	out := make([]int, len(legs))
	for i, l := range legs {
		out[i] = l.Odds
	}
	return out
}
