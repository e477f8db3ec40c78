package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radieske/sports-wager-engine/internal/catalog"
	"github.com/radieske/sports-wager-engine/internal/ratelimit"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixedGames struct {
	games []catalog.Game
	err   error
}

func (f fixedGames) ListGames(_ context.Context, league string, _ time.Time) ([]catalog.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []catalog.Game
	for _, g := range f.games {
		if g.League == league {
			out = append(out, g)
		}
	}
	return out, nil
}

// flakyStore falha Create enquanto fail != nil
type flakyStore struct {
	*repo.Memory
	mu   sync.Mutex
	fail error
}

func (f *flakyStore) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *flakyStore) Create(ctx context.Context, w *wager.Wager) (int64, error) {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.Memory.Create(ctx, w)
}

type testEnv struct {
	eng   *Engine
	store *flakyStore
	clock *fakeClock
}

const (
	owner = "capper-1"
	group = "g1"
)

func newEnv(t *testing.T, games catalog.GameSource, rateMax int) *testEnv {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)}

	mem := repo.NewMemory()
	mem.SetClock(clock.Now)
	mem.AddGame(7, 8, 21)
	store := &flakyStore{Memory: mem}

	lim := ratelimit.New(ratelimit.NewStore(), map[string]ratelimit.Rule{
		ratelimit.ClassWagerConstruction: {Max: rateMax, Window: time.Minute},
	}, nil)
	lim.Now = clock.Now

	cat := catalog.New(catalog.DefaultConfig(), games, nil)
	eng := New(Config{IdleTimeout: 10 * time.Minute}, NewSessions(), lim, cat, store, nil, nil)
	eng.Now = clock.Now
	return &testEnv{eng: eng, store: store, clock: clock}
}

func defaultGames() fixedGames {
	return fixedGames{games: []catalog.Game{
		{ID: 7, League: "nfl", HomeTeam: "Chiefs", AwayTeam: "Bills"},
		{ID: 8, League: "nfl", HomeTeam: "Eagles", AwayTeam: "Cowboys"},
		{ID: 21, League: "nba", HomeTeam: "Celtics", AwayTeam: "Lakers"},
	}}
}

func (env *testEnv) send(t *testing.T, ev Event) Result {
	t.Helper()
	res, err := env.eng.HandleInput(context.Background(), owner, group, ev)
	if err != nil {
		t.Fatalf("input %#v: %v", ev, err)
	}
	return res
}

func (env *testEnv) sideLeg(t *testing.T, category, league, lineType, game, side, odds string) Result {
	t.Helper()
	env.send(t, Select{Option: category})
	env.send(t, Select{Option: league})
	env.send(t, Select{Option: lineType})
	env.send(t, Select{Option: game})
	env.send(t, Select{Option: side})
	return env.send(t, Submit{Fields: map[string]string{FieldOdds: odds}})
}

func TestStraightFlow_CreatesPendingWager(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)

	res := env.send(t, Start{Kind: wager.KindStraight})
	if res.Prompt.Step != StepSelectCategory || len(res.Prompt.Options) != 4 {
		t.Fatalf("start prompt = %+v", res.Prompt)
	}
	res = env.sideLeg(t, "football", "nfl", "moneyline", "7", "home", "-110")
	if res.Prompt.Step != StepSelectStake {
		t.Fatalf("straight should skip to stake, got %s", res.Prompt.Step)
	}
	env.send(t, Select{Option: "1"})
	res = env.send(t, Select{Option: group})
	if res.Prompt.Step != StepConfirm || res.Prompt.Preview == nil || res.Prompt.Preview.Odds != -110 {
		t.Fatalf("confirm prompt = %+v", res.Prompt)
	}
	if got := res.Prompt.Preview.Payout.String(); got != "1.9091" {
		t.Errorf("preview payout = %s, want 1.9091", got)
	}

	res = env.send(t, Select{Option: OptionConfirm})
	if res.Outcome != OutcomeCreated || res.WagerID == 0 {
		t.Fatalf("confirm = %+v", res)
	}
	w, err := env.store.Get(context.Background(), res.WagerID)
	if err != nil {
		t.Fatal(err)
	}
	if w.Status != wager.StatusPending || w.Kind != wager.KindStraight || w.Odds != -110 || len(w.Legs) != 1 {
		t.Errorf("stored wager = %+v", w)
	}
	if w.Legs[0].Game.ID == nil || *w.Legs[0].Game.ID != 7 {
		t.Errorf("leg game = %+v", w.Legs[0].Game)
	}
	if env.eng.sessions.Len() != 0 {
		t.Error("session should be destroyed after create")
	}

	_, err = env.eng.HandleInput(context.Background(), owner, group, Select{Option: "football"})
	if !errors.Is(err, wager.ErrSessionNotFound) {
		t.Errorf("input after create: err = %v, want SessionNotFound", err)
	}
}

func TestParlay_FinalizeRequiresTwoLegs(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)
	env.send(t, Start{Kind: wager.KindParlay})

	res := env.sideLeg(t, "football", "nfl", "moneyline", "7", "home", "+150")
	if res.Prompt.Step != StepAddAnotherLeg {
		t.Fatalf("after first leg step = %s", res.Prompt.Step)
	}

	res, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: OptionFinish})
	if !errors.Is(err, wager.ErrValidation) {
		t.Fatalf("finalize with one leg: err = %v", err)
	}
	if res.Outcome != OutcomeRePrompt || res.Prompt.Step != StepAddAnotherLeg {
		t.Fatalf("finalize with one leg should re-prompt, got %+v", res)
	}

	res = env.send(t, Select{Option: OptionAddLeg})
	if res.Prompt.Step != StepSelectCategory || len(res.Prompt.Legs) != 1 {
		t.Fatalf("add leg should keep legs, got %+v", res.Prompt)
	}
	env.sideLeg(t, "basketball", "nba", "spread", "21", "away", "-120")

	res = env.send(t, Select{Option: OptionFinish})
	if res.Prompt.Step != StepEnterTotalOdds || res.Prompt.Preview.Odds != 358 {
		t.Fatalf("total odds prompt = %+v", res.Prompt)
	}
	env.send(t, Select{Option: OptionAccept})
	env.send(t, Select{Option: "2"})
	res = env.send(t, Select{Option: group})
	if got := res.Prompt.Preview.Payout.String(); got != "9.1667" {
		t.Errorf("payout = %s, want 9.1667", got)
	}
	if got := res.Prompt.Preview.Profit.String(); got != "7.1667" {
		t.Errorf("profit = %s, want 7.1667", got)
	}

	res = env.send(t, Select{Option: OptionConfirm})
	w, err := env.store.Get(context.Background(), res.WagerID)
	if err != nil {
		t.Fatal(err)
	}
	if w.Kind != wager.KindParlay || len(w.Legs) != 2 || w.Odds != 358 || w.OddsOverridden {
		t.Errorf("stored parlay = %+v", w)
	}
	if w.Legs[1].Position != 2 {
		t.Errorf("second leg position = %d", w.Legs[1].Position)
	}
}

func TestParlay_OverrideTotalOdds(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)
	env.send(t, Start{Kind: wager.KindParlay})
	env.sideLeg(t, "football", "nfl", "moneyline", "7", "home", "+150")
	env.send(t, Select{Option: OptionAddLeg})
	env.sideLeg(t, "football", "nfl", "total", "8", "over", "-110")
	env.send(t, Select{Option: OptionFinish})

	_, err := env.eng.HandleInput(context.Background(), owner, group, Submit{Fields: map[string]string{FieldOdds: "50"}})
	if !errors.Is(err, wager.ErrValidation) {
		t.Fatalf("override +50: err = %v", err)
	}
	res := env.send(t, Submit{Fields: map[string]string{FieldOdds: "+400"}})
	if res.Prompt.Step != StepSelectStake {
		t.Fatalf("step = %s", res.Prompt.Step)
	}
	env.send(t, Select{Option: "1"})
	env.send(t, Select{Option: group})
	res = env.send(t, Select{Option: OptionConfirm})

	w, _ := env.store.Get(context.Background(), res.WagerID)
	if w.Odds != 400 || !w.OddsOverridden {
		t.Errorf("odds = %d overridden=%v", w.Odds, w.OddsOverridden)
	}
}

func TestInvalidInput_RePromptsSameStep(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)
	env.send(t, Start{})

	tests := []struct {
		name string
		ev   Event
	}{
		{"unknown category", Select{Option: "cricket"}},
		{"form on select step", Submit{Fields: map[string]string{"x": "y"}}},
		{"empty option", Select{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.eng.HandleInput(context.Background(), owner, group, tt.ev)
			var ve *wager.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if res.Outcome != OutcomeRePrompt || res.Prompt.Step != StepSelectCategory || res.Prompt.Notice == "" {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestLegDetails_Validation(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)
	env.send(t, Start{Kind: wager.KindParlay})
	env.send(t, Select{Option: "basketball"})
	env.send(t, Select{Option: "nba"})
	env.send(t, Select{Option: "player_prop"})
	env.send(t, Select{Option: "21"})
	res := env.send(t, Select{Option: "over"})
	if res.Prompt.Step != StepEnterLegDetails || len(res.Prompt.Fields) != 4 {
		t.Fatalf("prop details prompt = %+v", res.Prompt)
	}

	tests := []struct {
		name   string
		fields map[string]string
		field  string
	}{
		{"odds inside (-100,100)", map[string]string{FieldPlayer: "Tatum", FieldPropType: "rebounds", FieldLine: "10.5", FieldOdds: "-99"}, FieldOdds},
		{"zero odds", map[string]string{FieldPlayer: "Tatum", FieldPropType: "rebounds", FieldLine: "10.5", FieldOdds: "0"}, FieldOdds},
		{"line above prop max", map[string]string{FieldPlayer: "Tatum", FieldPropType: "rebounds", FieldLine: "31", FieldOdds: "-115"}, FieldLine},
		{"line not numeric", map[string]string{FieldPlayer: "Tatum", FieldPropType: "rebounds", FieldLine: "ten", FieldOdds: "-115"}, FieldLine},
		{"NaN line", map[string]string{FieldPlayer: "Tatum", FieldPropType: "rebounds", FieldLine: "NaN", FieldOdds: "-115"}, FieldLine},
		{"unknown prop type", map[string]string{FieldPlayer: "Tatum", FieldPropType: "steals", FieldLine: "1.5", FieldOdds: "-115"}, FieldPropType},
		{"missing player", map[string]string{FieldPropType: "rebounds", FieldLine: "10.5", FieldOdds: "-115"}, FieldPlayer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.eng.HandleInput(context.Background(), owner, group, Submit{Fields: tt.fields})
			var ve *wager.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("err = %v, want ValidationError on %s", err, tt.field)
			}
			if res.Prompt.Step != StepEnterLegDetails {
				t.Errorf("step = %s", res.Prompt.Step)
			}
		})
	}

	res = env.send(t, Submit{Fields: map[string]string{FieldPlayer: "Tatum", FieldPropType: "rebounds", FieldLine: "10.5", FieldOdds: "-115"}})
	if res.Prompt.Step != StepAddAnotherLeg || len(res.Prompt.Legs) != 1 {
		t.Fatalf("after prop leg = %+v", res.Prompt)
	}
	sel, ok := res.Prompt.Legs[0].Selection.(wager.PropSelection)
	if !ok || sel.Line != 10.5 || sel.Direction != wager.SideOver {
		t.Errorf("prop selection = %#v", res.Prompt.Legs[0].Selection)
	}
}

func TestParlay_DuplicateLegRejected(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)
	env.send(t, Start{Kind: wager.KindParlay})
	env.sideLeg(t, "football", "nfl", "moneyline", "7", "home", "+150")
	env.send(t, Select{Option: OptionAddLeg})
	env.send(t, Select{Option: "football"})
	env.send(t, Select{Option: "nfl"})
	env.send(t, Select{Option: "moneyline"})
	env.send(t, Select{Option: "7"})
	env.send(t, Select{Option: "home"})

	_, err := env.eng.HandleInput(context.Background(), owner, group, Submit{Fields: map[string]string{FieldOdds: "+140"}})
	if !errors.Is(err, wager.ErrValidation) {
		t.Fatalf("duplicate leg: err = %v", err)
	}
}

func TestManualGame_CatalogOutage(t *testing.T) {
	env := newEnv(t, fixedGames{err: errors.New("db down")}, 100)
	env.send(t, Start{})
	env.send(t, Select{Option: "hockey"})
	env.send(t, Select{Option: "nhl"})
	res := env.send(t, Select{Option: "moneyline"})
	if res.Prompt.Step != StepSelectGame || len(res.Prompt.Options) != 1 || res.Prompt.Options[0].Value != OptionManual {
		t.Fatalf("game prompt during outage = %+v", res.Prompt)
	}

	res = env.send(t, Select{Option: OptionManual})
	if res.Prompt.Step != StepSelectGame {
		t.Fatalf("manual option should stay on game step, got %s", res.Prompt.Step)
	}
	if _, err := env.eng.HandleInput(context.Background(), owner, group, Submit{Fields: map[string]string{FieldHomeTeam: "Bruins"}}); !errors.Is(err, wager.ErrValidation) {
		t.Fatalf("one team label: err = %v", err)
	}
	env.send(t, Submit{Fields: map[string]string{FieldHomeTeam: "Bruins", FieldAwayTeam: "Rangers"}})
	env.send(t, Select{Option: "away"})
	env.send(t, Submit{Fields: map[string]string{FieldOdds: "+125"}})
	env.send(t, Select{Option: "0.5"})
	env.send(t, Select{Option: group})
	res = env.send(t, Select{Option: OptionConfirm})

	w, err := env.store.Get(context.Background(), res.WagerID)
	if err != nil {
		t.Fatal(err)
	}
	g := w.Legs[0].Game
	if g.ID != nil || g.Manual == nil || g.Manual.Home != "Bruins" || g.Manual.Away != "Rangers" {
		t.Errorf("manual game = %+v", g)
	}
}

func TestRateLimited_NoStateChange(t *testing.T) {
	env := newEnv(t, defaultGames(), 3)
	env.send(t, Start{})
	env.send(t, Select{Option: "football"})
	env.send(t, Select{Option: "nfl"})

	res, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: "moneyline"})
	var rl *wager.RateLimitedError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 {
		t.Fatalf("err = %v, want RateLimitedError with retry", err)
	}
	if res.Outcome != OutcomeRejected || res.RetryAfter <= 0 || res.Prompt.Step != StepSelectLineType {
		t.Fatalf("result = %+v", res)
	}

	env.clock.Advance(time.Minute)
	res = env.send(t, Select{Option: "moneyline"})
	if res.Prompt.Step != StepSelectGame {
		t.Errorf("after cooldown step = %s", res.Prompt.Step)
	}
}

func TestCancel_ExemptFromRateLimit(t *testing.T) {
	env := newEnv(t, defaultGames(), 1)
	env.send(t, Start{})
	if _, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: "football"}); !errors.Is(err, wager.ErrRateLimited) {
		t.Fatalf("err = %v", err)
	}
	res := env.send(t, Cancel{})
	if res.Outcome != OutcomeCancelled {
		t.Fatalf("cancel = %+v", res)
	}
	if env.eng.sessions.Len() != 0 {
		t.Error("session should be gone")
	}
	if pending, _ := env.store.ListPending(context.Background(), env.clock.Now().Add(time.Hour), 0); len(pending) != 0 {
		t.Errorf("cancel persisted %d wagers", len(pending))
	}
	_, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: "football"})
	if !errors.Is(err, wager.ErrSessionNotFound) {
		t.Errorf("after cancel err = %v", err)
	}
}

func TestIdleSession_Expires(t *testing.T) {
	t.Run("checked on input", func(t *testing.T) {
		env := newEnv(t, defaultGames(), 100)
		env.send(t, Start{Kind: wager.KindStraight})
		env.sideLeg(t, "football", "nfl", "moneyline", "7", "home", "-110")
		env.send(t, Select{Option: "1"})
		env.send(t, Select{Option: group})

		env.clock.Advance(11 * time.Minute)
		res, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: OptionConfirm})
		if !errors.Is(err, wager.ErrSessionExpired) || res.Outcome != OutcomeRejected {
			t.Fatalf("confirm after idle: res=%+v err=%v", res, err)
		}
		if pending, _ := env.store.ListPending(context.Background(), env.clock.Now().Add(time.Hour), 0); len(pending) != 0 {
			t.Errorf("expired session created %d wagers", len(pending))
		}
		_, err = env.eng.HandleInput(context.Background(), owner, group, Cancel{})
		if !errors.Is(err, wager.ErrSessionExpired) {
			t.Errorf("cancel after expiry err = %v", err)
		}
	})

	t.Run("evicted by sweep", func(t *testing.T) {
		env := newEnv(t, defaultGames(), 100)
		env.send(t, Start{})
		env.clock.Advance(5 * time.Minute)
		env.send(t, Select{Option: "football"})
		env.clock.Advance(6 * time.Minute)
		if n := env.eng.Sweep(); n != 0 {
			t.Fatalf("advanced session swept early: %d", n)
		}
		env.clock.Advance(5 * time.Minute)
		if n := env.eng.Sweep(); n != 1 {
			t.Fatalf("sweep evicted %d, want 1", n)
		}
		_, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: "nfl"})
		if !errors.Is(err, wager.ErrSessionExpired) {
			t.Errorf("err = %v, want SessionExpired", err)
		}
	})

	t.Run("never started", func(t *testing.T) {
		env := newEnv(t, defaultGames(), 100)
		_, err := env.eng.HandleInput(context.Background(), "other", group, Select{Option: "nfl"})
		if !errors.Is(err, wager.ErrSessionNotFound) {
			t.Errorf("err = %v, want SessionNotFound", err)
		}
	})
}

func TestStart_ResumeOrReplace(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)
	env.send(t, Start{Kind: wager.KindParlay})
	env.send(t, Select{Option: "football"})

	res := env.send(t, Start{Kind: wager.KindStraight})
	if res.Prompt.Step != StepSelectLeague || res.Prompt.Kind != "parlay" {
		t.Fatalf("start while active should resume, got %+v", res.Prompt)
	}

	res = env.send(t, Start{Kind: wager.KindStraight, Replace: true})
	if res.Prompt.Step != StepSelectCategory || res.Prompt.Kind != "straight" {
		t.Fatalf("replace should start over, got %+v", res.Prompt)
	}
	if env.eng.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", env.eng.sessions.Len())
	}
}

func TestConfirm_PersistenceFailureKeepsSession(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)
	env.send(t, Start{})
	env.sideLeg(t, "football", "nfl", "spread", "8", "away", "-105")
	env.send(t, Select{Option: "3"})
	env.send(t, Select{Option: group})

	env.store.setFail(errors.New("connection refused"))
	res, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: OptionConfirm})
	if !errors.Is(err, wager.ErrPersistence) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if res.Outcome != OutcomeRejected || res.Prompt.Step != StepConfirm {
		t.Fatalf("result = %+v", res)
	}

	env.store.setFail(nil)
	res = env.send(t, Select{Option: OptionConfirm})
	if res.Outcome != OutcomeCreated {
		t.Fatalf("retry = %+v", res)
	}
}

func TestConfirm_UnknownGameIsIntegrityError(t *testing.T) {
	games := defaultGames()
	games.games = append(games.games, catalog.Game{ID: 99, League: "nfl", HomeTeam: "Jets", AwayTeam: "Giants"})
	env := newEnv(t, games, 100)
	env.send(t, Start{})
	env.sideLeg(t, "football", "nfl", "moneyline", "99", "home", "+200")
	env.send(t, Select{Option: "1"})
	env.send(t, Select{Option: group})

	_, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: OptionConfirm})
	if !errors.Is(err, wager.ErrIntegrity) {
		t.Fatalf("err = %v, want IntegrityError", err)
	}
	if env.eng.sessions.Len() != 1 {
		t.Error("session should be kept on integrity error")
	}
}

func TestConcurrentInput_Serialized(t *testing.T) {
	env := newEnv(t, defaultGames(), 1000)
	env.send(t, Start{})

	const n = 32
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.eng.HandleInput(context.Background(), owner, group, Select{Option: "football"})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else if !errors.Is(err, wager.ErrValidation) {
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("%d inputs advanced the session, want exactly 1", ok)
	}
}

func TestHooks(t *testing.T) {
	env := newEnv(t, defaultGames(), 100)
	var (
		transitions int
		rejected    []string
		created     []wager.Kind
		active      = -1
	)
	env.eng.Hooks = Hooks{
		OnTransition:      func(from, to Step) { transitions++ },
		OnRejected:        func(reason string) { rejected = append(rejected, reason) },
		OnCreated:         func(k wager.Kind) { created = append(created, k) },
		OnSessionsChanged: func(n int) { active = n },
	}
	env.send(t, Start{})
	if active != 1 {
		t.Errorf("active after start = %d", active)
	}
	_, _ = env.eng.HandleInput(context.Background(), owner, group, Select{Option: "cricket"})
	env.sideLeg(t, "football", "nfl", "moneyline", "7", "home", "-110")
	env.send(t, Select{Option: "1"})
	env.send(t, Select{Option: group})
	env.send(t, Select{Option: OptionConfirm})

	if transitions != 8 {
		t.Errorf("transitions = %d, want 8", transitions)
	}
	if len(rejected) != 1 || rejected[0] != ReasonValidation {
		t.Errorf("rejected = %v", rejected)
	}
	if len(created) != 1 || created[0] != wager.KindStraight || active != 0 {
		t.Errorf("created = %v active = %d", created, active)
	}
}
