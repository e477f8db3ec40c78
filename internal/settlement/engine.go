package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/wager"
)

// ErrLockHeld: outra instância está avaliando a mesma aposta
var ErrLockHeld = errors.New("grading lock held")

// Locker é o lock distribuído opcional (várias instâncias do worker)
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Publisher avisa que a aposta chegou a um status terminal
type Publisher interface {
	PublishGraded(ctx context.Context, w *wager.Wager) error
}

type Config struct {
	StoreTimeout time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration // tempo máximo esperando o lock distribuído
}

func (c Config) withDefaults() Config {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.LockWait <= 0 {
		c.LockWait = 5 * time.Second
	}
	return c
}

// Hooks para métricas
type Hooks struct {
	OnGraded   func(status wager.Status)
	OnNoop     func()
	OnConflict func()
	OnError    func(stage string)
}

// Engine leva apostas de pending para um status terminal e aplica o ledger uma única vez
type Engine struct {
	cfg    Config
	store  wager.Store
	locks  *keyedMutex
	locker Locker
	pub    Publisher
	log    *zap.Logger

	Hooks Hooks
}

// New monta o engine; locker e pub podem ser nil
func New(cfg Config, store wager.Store, locker Locker, pub Publisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg.withDefaults(),
		store:  store,
		locks:  newKeyedMutex(),
		locker: locker,
		pub:    pub,
		log:    log,
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

// lock garante exclusão mútua por aposta no processo e, se houver locker, entre instâncias
func (e *Engine) lock(ctx context.Context, id int64) (func(), error) {
	unlock := e.locks.Lock(id)
	if e.locker == nil {
		return unlock, nil
	}

	key := "wager:grade:" + strconv.FormatInt(id, 10)
	wctx, cancel := context.WithTimeout(ctx, e.cfg.LockWait)
	defer cancel()
	backoff := 25 * time.Millisecond
	for {
		release, err := e.locker.Acquire(wctx, key, e.cfg.LockTTL)
		if err == nil {
			return func() { release(); unlock() }, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			unlock()
			return nil, &wager.PersistenceError{Op: "grade lock", Err: err}
		}
		select {
		case <-wctx.Done():
			unlock()
			return nil, &wager.PersistenceError{Op: "grade lock", Err: ErrLockHeld}
		case <-time.After(backoff):
		}
		if backoff < 400*time.Millisecond {
			backoff *= 2
		}
	}
}

func (e *Engine) load(ctx context.Context, id int64) (*wager.Wager, error) {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	w, err := e.store.Get(cctx, id)
	if err != nil {
		if errors.Is(err, wager.ErrNotFound) || errors.Is(err, wager.ErrPersistence) {
			return nil, err
		}
		return nil, &wager.PersistenceError{Op: "get", Err: err}
	}
	return w, nil
}

// Grade aplica os sinais à aposta. Reavaliar com o mesmo resultado é no-op;
// resultado diferente devolve GradingConflictError e nada é gravado.
func (e *Engine) Grade(ctx context.Context, id int64, signals []LegSignal) (*wager.Wager, error) {
	unlock, err := e.lock(ctx, id)
	if err != nil {
		e.fail("lock")
		return nil, err
	}
	defer unlock()

	w, err := e.load(ctx, id)
	if err != nil {
		e.fail("load")
		return nil, err
	}
	g, err := Evaluate(w, signals)
	if err != nil {
		e.fail("evaluate")
		return nil, err
	}

	if w.Status.Terminal() {
		return e.regrade(w, g)
	}

	key := wager.PeriodOf(w)
	cctx, cancel := e.withTimeout(ctx)
	err = e.store.ApplyResult(cctx, id, wager.Result{
		Status:      g.Status,
		Description: g.Description,
		Value:       g.Value,
		Ledger:      &key,
		LegOutcomes: g.legOutcomes(),
	})
	cancel()
	if errors.Is(err, wager.ErrNotPending) {
		// gravado por fora do lock entre o load e o apply
		if w, err = e.load(ctx, id); err != nil {
			return nil, err
		}
		return e.regrade(w, g)
	}
	if err != nil {
		e.fail("apply")
		e.log.Warn("apply grade failed", zap.Int64("wagerId", id), zap.Error(err))
		return nil, asPersistence("apply result", err)
	}

	w.Status, w.ResultDescription, w.ResultValue = g.Status, g.Description, g.Value
	for i := range w.Legs {
		w.Legs[i].Outcome = string(g.Legs[w.Legs[i].Position])
	}
	w.UpdatedAt = time.Now()
	e.log.Info("wager graded",
		zap.Int64("wagerId", id),
		zap.String("status", string(g.Status)),
		zap.String("delta", g.Value.String()),
		zap.Int("year", key.Year),
		zap.Int("month", key.Month),
	)
	if e.Hooks.OnGraded != nil {
		e.Hooks.OnGraded(g.Status)
	}
	e.publish(ctx, w)
	return w, nil
}

// regrade trata sinais para uma aposta já terminal. É no-op só se status, valor
// e o outcome gravado de cada perna baterem com os sinais.
func (e *Engine) regrade(w *wager.Wager, g Grade) (*wager.Wager, error) {
	legDiff := diffLegs(w, g)
	if w.Status == g.Status && w.ResultValue.Equal(g.Value) && legDiff == "" {
		e.log.Debug("grade is a no-op", zap.Int64("wagerId", w.ID), zap.String("status", string(w.Status)))
		if e.Hooks.OnNoop != nil {
			e.Hooks.OnNoop()
		}
		return w, nil
	}
	err := &wager.GradingConflictError{WagerID: w.ID, Current: w.Status, Attempted: g.Status}
	switch {
	case legDiff != "":
		err.Detail = legDiff
	case w.Status == g.Status:
		err.Detail = fmt.Sprintf("result %s, attempted %s", w.ResultValue, g.Value)
	}
	e.log.Error("grading conflict, manual reconciliation required",
		zap.Int64("wagerId", w.ID),
		zap.String("current", string(w.Status)),
		zap.String("attempted", string(g.Status)),
		zap.String("currentValue", w.ResultValue.String()),
		zap.String("attemptedValue", g.Value.String()),
		zap.String("detail", err.Detail),
	)
	if e.Hooks.OnConflict != nil {
		e.Hooks.OnConflict()
	}
	return nil, err
}

// diffLegs compara os outcomes gravados com os sinais novos, posição a posição.
// Perna sem outcome gravado (cancelada) não é comparada.
func diffLegs(w *wager.Wager, g Grade) string {
	for _, l := range w.Legs {
		if l.Outcome == "" {
			continue
		}
		if got := string(g.Legs[l.Position]); got != l.Outcome {
			return fmt.Sprintf("leg %d recorded %s, attempted %s", l.Position, l.Outcome, got)
		}
	}
	return ""
}

// Cancel move uma aposta pending para cancelled sem tocar no ledger
func (e *Engine) Cancel(ctx context.Context, id int64, reason string) (*wager.Wager, error) {
	unlock, err := e.lock(ctx, id)
	if err != nil {
		e.fail("lock")
		return nil, err
	}
	defer unlock()

	w, err := e.load(ctx, id)
	if err != nil {
		e.fail("load")
		return nil, err
	}
	if w.Status == wager.StatusCancelled {
		return w, nil
	}
	if w.Status.Terminal() {
		return nil, &wager.GradingConflictError{WagerID: id, Current: w.Status, Attempted: wager.StatusCancelled}
	}

	cctx, cancel := e.withTimeout(ctx)
	err = e.store.ApplyResult(cctx, id, wager.Result{Status: wager.StatusCancelled, Description: reason, Value: decimal.Zero})
	cancel()
	if err != nil {
		e.fail("apply")
		if errors.Is(err, wager.ErrNotPending) {
			return nil, &wager.GradingConflictError{WagerID: id, Current: w.Status, Attempted: wager.StatusCancelled, Detail: "changed concurrently"}
		}
		return nil, asPersistence("cancel", err)
	}
	w.Status, w.ResultDescription, w.ResultValue = wager.StatusCancelled, reason, decimal.Zero
	w.UpdatedAt = time.Now()
	e.log.Info("wager cancelled", zap.Int64("wagerId", id), zap.String("reason", reason))
	if e.Hooks.OnGraded != nil {
		e.Hooks.OnGraded(wager.StatusCancelled)
	}
	e.publish(ctx, w)
	return w, nil
}

// Get lê a aposta
func (e *Engine) Get(ctx context.Context, id int64) (*wager.Wager, error) {
	return e.load(ctx, id)
}

// Pending lista apostas pending antigas, para o sweep externo de apostas presas
func (e *Engine) Pending(ctx context.Context, createdBefore time.Time, limit int) ([]wager.Wager, error) {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	out, err := e.store.ListPending(cctx, createdBefore, limit)
	if err != nil {
		return nil, asPersistence("list pending", err)
	}
	return out, nil
}

// Ledger lê a linha do período
func (e *Engine) Ledger(ctx context.Context, key wager.LedgerKey) (wager.LedgerEntry, error) {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	le, err := e.store.Ledger(cctx, key)
	if err != nil {
		return le, asPersistence("ledger", err)
	}
	return le, nil
}

func (e *Engine) publish(ctx context.Context, w *wager.Wager) {
	if e.pub == nil {
		return
	}
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.pub.PublishGraded(cctx, w); err != nil {
		e.fail("publish")
		e.log.Warn("publish wager graded failed", zap.Int64("wagerId", w.ID), zap.Error(err))
	}
}

func (e *Engine) fail(stage string) {
	if e.Hooks.OnError != nil {
		e.Hooks.OnError(stage)
	}
}

func asPersistence(op string, err error) error {
	if errors.Is(err, wager.ErrPersistence) || errors.Is(err, wager.ErrNotFound) {
		return err
	}
	return &wager.PersistenceError{Op: op, Err: err}
}
