package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/catalog"
	"github.com/radieske/sports-wager-engine/internal/ratelimit"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

// Admitter é o controle de admissão consultado antes de cada transição
type Admitter interface {
	Admit(owner, class string) ratelimit.Decision
}

// Creator persiste a aposta confirmada
type Creator interface {
	Create(ctx context.Context, w *wager.Wager) (int64, error)
}

// Publisher avisa o resto da plataforma sobre a aposta criada
type Publisher interface {
	PublishCreated(ctx context.Context, w *wager.Wager) error
}

type Config struct {
	IdleTimeout  time.Duration // sessão sem avanço por mais que isso expira
	TombstoneTTL time.Duration // por quanto tempo uma sessão expirada responde SessionExpired
	StoreTimeout time.Duration
	MaxLegs      int
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.TombstoneTTL <= 0 {
		c.TombstoneTTL = time.Hour
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.MaxLegs <= 0 {
		c.MaxLegs = 12
	}
	return c
}

// Hooks para métricas; qualquer um pode ser nil
type Hooks struct {
	OnTransition      func(from, to Step)
	OnRejected        func(reason string)
	OnCreated         func(kind wager.Kind)
	OnSessionsChanged func(active int)
}

// motivos de rejeição
const (
	ReasonValidation      = "validation"
	ReasonRateLimited     = "rate_limited"
	ReasonSessionExpired  = "session_expired"
	ReasonSessionNotFound = "session_not_found"
	ReasonPersistence     = "persistence"
	ReasonIntegrity       = "integrity"
)

// Engine é a máquina de estados do fluxo de criação de apostas.
// HandleInput é o único ponto de entrada.
type Engine struct {
	cfg      Config
	sessions *Sessions
	limiter  Admitter
	cat      *catalog.Catalog
	store    Creator
	pub      Publisher
	log      *zap.Logger

	Now   func() time.Time
	Hooks Hooks
}

// New monta o engine. pub pode ser nil.
func New(cfg Config, sessions *Sessions, limiter Admitter, cat *catalog.Catalog, store Creator, pub Publisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		limiter:  limiter,
		cat:      cat,
		store:    store,
		pub:      pub,
		log:      log,
		Now:      time.Now,
	}
}

// HandleInput aplica um evento à sessão (owner, contextID).
// Erros de validação voltam junto com o re-prompt do mesmo passo; nada avança.
func (e *Engine) HandleInput(ctx context.Context, owner, contextID string, ev Event) (Result, error) {
	if owner == "" || contextID == "" {
		return e.rejectWith(nil, ReasonValidation, &wager.ValidationError{Field: "session", Reason: "owner and context required"})
	}
	k := sessionKey{owner: owner, context: contextID}

	switch ev := ev.(type) {
	case Start:
		return e.start(ctx, k, ev)
	case Cancel:
		return e.cancel(k)
	case Select, Submit:
	default:
		return e.rejectWith(nil, ReasonValidation, &wager.ValidationError{Field: "event", Reason: "unsupported event"})
	}

	sess, res, err := e.live(k)
	if sess == nil {
		return res, err
	}
	defer sess.mu.Unlock()

	if d := e.limiter.Admit(owner, ratelimit.ClassWagerConstruction); !d.Allowed {
		return e.rateLimited(sess, d)
	}

	from := sess.step
	res, err = e.dispatch(ctx, sess, ev)
	if !sess.done && sess.step != from {
		sess.touchedAt = e.Now()
		e.transitioned(owner, from, sess.step)
	}
	return res, err
}

// live devolve a sessão travada, ou o resultado de rejeição quando não há sessão utilizável
func (e *Engine) live(k sessionKey) (*session, Result, error) {
	sess := e.sessions.acquire(k)
	if sess == nil {
		res, err := e.missing(k)
		return nil, res, err
	}
	if now := e.Now(); now.Sub(sess.touchedAt) > e.cfg.IdleTimeout {
		e.sessions.remove(sess, now)
		sess.mu.Unlock()
		e.sessionsChanged()
		e.log.Debug("session expired on input", zap.String("owner", k.owner), zap.String("context", k.context))
		return nil, e.reject(nil, ReasonSessionExpired), wager.ErrSessionExpired
	}
	return sess, Result{}, nil
}

func (e *Engine) missing(k sessionKey) (Result, error) {
	if e.sessions.expired(k) {
		return e.reject(nil, ReasonSessionExpired), wager.ErrSessionExpired
	}
	return e.reject(nil, ReasonSessionNotFound), wager.ErrSessionNotFound
}

func (e *Engine) start(ctx context.Context, k sessionKey, ev Start) (Result, error) {
	kind := ev.Kind
	if kind == 0 {
		kind = wager.KindStraight
	}
	if kind != wager.KindStraight && kind != wager.KindParlay {
		return e.rejectWith(nil, ReasonValidation, &wager.ValidationError{Field: "kind", Reason: "unknown wager kind"})
	}
	if d := e.limiter.Admit(k.owner, ratelimit.ClassWagerConstruction); !d.Allowed {
		return e.rateLimited(nil, d)
	}

	for {
		if cur := e.sessions.acquire(k); cur != nil {
			now := e.Now()
			if !ev.Replace && now.Sub(cur.touchedAt) <= e.cfg.IdleTimeout {
				p := cur.prompt.withNotice("resumed")
				cur.mu.Unlock()
				return Result{Outcome: OutcomeRePrompt, Prompt: p}, nil
			}
			e.sessions.remove(cur, time.Time{})
			cur.mu.Unlock()
			e.log.Info("session replaced",
				zap.String("owner", k.owner),
				zap.String("context", k.context),
				zap.Stringer("step", cur.step),
			)
		}

		now := e.Now()
		sess := &session{key: k, kind: kind, createdAt: now, touchedAt: now}
		sess.mu.Lock()
		if !e.sessions.insert(sess) {
			// outra goroutine criou primeiro; tenta retomar a dela
			sess.mu.Unlock()
			continue
		}
		e.enter(ctx, sess, StepSelectCategory)
		p := sess.prompt
		sess.mu.Unlock()

		e.sessionsChanged()
		e.log.Debug("session started", zap.String("owner", k.owner), zap.String("context", k.context), zap.Stringer("kind", kind))
		return Result{Outcome: OutcomeRePrompt, Prompt: p}, nil
	}
}

// cancel encerra a sessão na hora. Não passa pelo rate limit.
func (e *Engine) cancel(k sessionKey) (Result, error) {
	sess, res, err := e.live(k)
	if sess == nil {
		return res, err
	}
	e.sessions.remove(sess, time.Time{})
	sess.mu.Unlock()
	e.sessionsChanged()
	return Result{Outcome: OutcomeCancelled}, nil
}

// Sweep expira sessões ociosas. Devolve quantas foram removidas.
func (e *Engine) Sweep() int {
	n := e.sessions.sweep(e.Now(), e.cfg.IdleTimeout, e.cfg.TombstoneTTL)
	if n > 0 {
		e.sessionsChanged()
		e.log.Debug("idle sessions swept", zap.Int("evicted", n))
	}
	return n
}

// Run executa Sweep periodicamente até o contexto ser cancelado
func (e *Engine) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Sweep()
		}
	}
}

func (e *Engine) rateLimited(sess *session, d ratelimit.Decision) (Result, error) {
	var p *Prompt
	if sess != nil {
		p = sess.prompt
	}
	res := e.reject(p, ReasonRateLimited)
	res.RetryAfter = d.RetryAfter
	return res, &wager.RateLimitedError{Class: ratelimit.ClassWagerConstruction, RetryAfter: d.RetryAfter}
}

// invalid re-exibe o passo atual com a mensagem de erro
func (e *Engine) invalid(sess *session, err error) (Result, error) {
	e.rejected(ReasonValidation)
	return Result{Outcome: OutcomeRePrompt, Prompt: sess.prompt.withNotice(err.Error()), Reason: ReasonValidation}, err
}

func (e *Engine) reject(p *Prompt, reason string) Result {
	e.rejected(reason)
	return Result{Outcome: OutcomeRejected, Prompt: p, Reason: reason}
}

func (e *Engine) rejectWith(p *Prompt, reason string, err error) (Result, error) {
	return e.reject(p, reason), err
}

func storeReason(err error) string {
	if errors.Is(err, wager.ErrIntegrity) {
		return ReasonIntegrity
	}
	if errors.Is(err, wager.ErrValidation) {
		return ReasonValidation
	}
	return ReasonPersistence
}

func (e *Engine) transitioned(owner string, from, to Step) {
	e.log.Debug("workflow transition", zap.String("owner", owner), zap.Stringer("from", from), zap.Stringer("to", to))
	if e.Hooks.OnTransition != nil {
		e.Hooks.OnTransition(from, to)
	}
}

func (e *Engine) rejected(reason string) {
	if e.Hooks.OnRejected != nil {
		e.Hooks.OnRejected(reason)
	}
}

func (e *Engine) sessionsChanged() {
	if e.Hooks.OnSessionsChanged != nil {
		e.Hooks.OnSessionsChanged(e.sessions.Len())
	}
}
