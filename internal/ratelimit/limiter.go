package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ClassWagerConstruction é a classe usada a cada transição do fluxo de criação de apostas
const ClassWagerConstruction = "wager_construction"

// Rule limita uma classe de ação a Max ações por Window
type Rule struct {
	Max    int
	Window time.Duration
}

// Decision é a resposta de Admit
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type windowKey struct {
	owner string
	class string
}

type window struct {
	mu       sync.Mutex
	hits     []time.Time // ordenado, mais antigo primeiro
	lastSeen time.Time
	span     time.Duration
	dead     bool // removida pelo sweep; quem segurava o ponteiro deve buscar outra
}

// Store guarda as janelas deslizantes e contadores de negação.
// Criado pelo processo e injetado no Limiter; nada aqui é global.
type Store struct {
	mu      sync.RWMutex
	windows map[windowKey]*window

	statsMu sync.Mutex
	denials map[windowKey]int64 // só chaves com janela viva
	retired map[string]int64    // negações de janelas já removidas, por classe
}

func NewStore() *Store {
	return &Store{
		windows: make(map[windowKey]*window),
		denials: make(map[windowKey]int64),
		retired: make(map[string]int64),
	}
}

func (s *Store) window(k windowKey, span time.Duration) *window {
	s.mu.RLock()
	w, ok := s.windows[k]
	s.mu.RUnlock()
	if ok {
		return w
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[k]; ok {
		return w
	}
	w = &window{span: span}
	s.windows[k] = w
	return w
}

func (s *Store) recordDenial(k windowKey) {
	s.statsMu.Lock()
	s.denials[k]++
	s.statsMu.Unlock()
}

// Len devolve a quantidade de janelas vivas
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// Limiter aplica controle de admissão por (owner, classe).
// Classes sem regra configurada são sempre admitidas (fail-open).
type Limiter struct {
	store *Store
	rules map[string]Rule
	log   *zap.Logger

	Now      func() time.Time
	OnDenied func(class string) // métricas
}

func New(store *Store, rules map[string]Rule, log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	r := make(map[string]Rule, len(rules))
	for class, rule := range rules {
		r[class] = rule
	}
	return &Limiter{store: store, rules: r, log: log, Now: time.Now}
}

// Admit registra a ação se houver espaço na janela; caso contrário devolve o tempo de espera
func (l *Limiter) Admit(owner, class string) Decision {
	rule, ok := l.rules[class]
	if !ok || rule.Max <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true}
	}
	k := windowKey{owner: owner, class: class}

	for {
		w := l.store.window(k, rule.Window)
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		now := l.Now()
		w.lastSeen = now
		w.prune(now)

		if len(w.hits) < rule.Max {
			w.hits = append(w.hits, now)
			w.mu.Unlock()
			return Decision{Allowed: true}
		}
		retry := rule.Window - now.Sub(w.hits[0])
		w.mu.Unlock()

		if retry <= 0 {
			retry = time.Millisecond
		}
		l.store.recordDenial(k)
		if l.OnDenied != nil {
			l.OnDenied(class)
		}
		l.log.Debug("rate limited",
			zap.String("owner", owner),
			zap.String("class", class),
			zap.Duration("retryAfter", retry),
		)
		return Decision{Allowed: false, RetryAfter: retry}
	}
}

// prune descarta timestamps fora de (now-span, now]
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

// Sweep remove janelas ociosas há mais que a própria duração. Devolve quantas foram removidas.
// Os contadores por owner dessas janelas migram para o agregado por classe.
func (l *Limiter) Sweep() int {
	now := l.Now()
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	removed := 0
	for k, w := range l.store.windows {
		w.mu.Lock()
		if now.Sub(w.lastSeen) > w.span {
			w.dead = true
			delete(l.store.windows, k)
			removed++
		}
		w.mu.Unlock()
	}

	// store.mu antes de statsMu; recordDenial nunca segura store.mu
	l.store.statsMu.Lock()
	for k, n := range l.store.denials {
		if _, live := l.store.windows[k]; !live {
			l.store.retired[k.class] += n
			delete(l.store.denials, k)
		}
	}
	l.store.statsMu.Unlock()
	return removed
}

// Run executa Sweep periodicamente até o contexto ser cancelado
func (l *Limiter) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				l.log.Debug("rate limit windows swept", zap.Int("removed", n))
			}
		}
	}
}

// OwnerStats resume as negações de um owner
type OwnerStats struct {
	Owner       string           `json:"owner"`
	Denials     map[string]int64 `json:"denials"`
	Total       int64            `json:"total"`
	MostLimited string           `json:"mostLimited,omitempty"`
}

// GlobalStats resume as negações de todos os owners
type GlobalStats struct {
	Denials       map[string]int64 `json:"denials"`
	Total         int64            `json:"total"`
	MostLimited   string           `json:"mostLimited,omitempty"`
	TopOwners     []OwnerStats     `json:"topOwners,omitempty"`
	ActiveWindows int              `json:"activeWindows"`
}

// OwnerStats lê os contadores; a leitura pode estar levemente atrasada em relação a Admit.
// Owners ociosos há mais que a janela já foram varridos e voltam zerados.
func (l *Limiter) OwnerStats(owner string) OwnerStats {
	out := OwnerStats{Owner: owner, Denials: map[string]int64{}}
	l.store.statsMu.Lock()
	for k, n := range l.store.denials {
		if k.owner == owner {
			out.Denials[k.class] += n
			out.Total += n
		}
	}
	l.store.statsMu.Unlock()
	out.MostLimited = mostLimited(out.Denials)
	return out
}

// GlobalStats agrega por classe (incluindo janelas varridas) e devolve os owners ativos mais limitados
func (l *Limiter) GlobalStats(top int) GlobalStats {
	out := GlobalStats{Denials: map[string]int64{}}
	byOwner := map[string]*OwnerStats{}

	l.store.statsMu.Lock()
	for class, n := range l.store.retired {
		out.Denials[class] += n
		out.Total += n
	}
	for k, n := range l.store.denials {
		out.Denials[k.class] += n
		out.Total += n
		os, ok := byOwner[k.owner]
		if !ok {
			os = &OwnerStats{Owner: k.owner, Denials: map[string]int64{}}
			byOwner[k.owner] = os
		}
		os.Denials[k.class] += n
		os.Total += n
	}
	l.store.statsMu.Unlock()

	out.MostLimited = mostLimited(out.Denials)
	out.ActiveWindows = l.store.Len()

	owners := make([]OwnerStats, 0, len(byOwner))
	for _, os := range byOwner {
		os.MostLimited = mostLimited(os.Denials)
		owners = append(owners, *os)
	}
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].Total != owners[j].Total {
			return owners[i].Total > owners[j].Total
		}
		return owners[i].Owner < owners[j].Owner
	})
	if top > 0 && len(owners) > top {
		owners = owners[:top]
	}
	out.TopOwners = owners
	return out
}

func mostLimited(m map[string]int64) string {
	best, bestN := "", int64(0)
	for class, n := range m {
		if n > bestN || (n == bestN && class < best) {
			best, bestN = class, n
		}
	}
	return best
}
