package workflow

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/catalog"
	"github.com/radieske/sports-wager-engine/internal/odds"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

type sessionKey struct {
	owner   string
	context string
}

// draft é a perna em construção
type draft struct {
	category string
	league   string
	lineType catalog.LineType
	game     *wager.GameRef
	label    string // "Away @ Home"
	side     wager.Side
	offered  map[int64]catalog.Game
}

// session é o estado efêmero do fluxo de um (owner, contexto). Nunca é persistida.
// Toda leitura/escrita acontece com mu travado.
type session struct {
	mu   sync.Mutex
	key  sessionKey
	done bool // removida; quem esperava o lock deve buscar de novo

	step   Step
	prompt *Prompt
	kind   wager.Kind
	legs   []wager.Leg
	draft  draft

	combined odds.Combined
	override int // 0 = sem override da odd total
	units    decimal.Decimal
	dest     string

	createdAt time.Time
	touchedAt time.Time
}

// Sessions guarda as sessões ativas e os tombstones das expiradas.
// Criado pelo processo e injetado no Engine; cada teste usa o seu.
//
// Ordem de lock: session.mu antes de Sessions.mu.
type Sessions struct {
	mu         sync.Mutex
	active     map[sessionKey]*session
	tombstones map[sessionKey]time.Time
}

func NewSessions() *Sessions {
	return &Sessions{
		active:     make(map[sessionKey]*session),
		tombstones: make(map[sessionKey]time.Time),
	}
}

// Len devolve o número de sessões ativas
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// acquire devolve a sessão ativa com mu travado, ou nil
func (s *Sessions) acquire(k sessionKey) *session {
	for {
		s.mu.Lock()
		sess := s.active[k]
		s.mu.Unlock()
		if sess == nil {
			return nil
		}
		sess.mu.Lock()
		if !sess.done {
			return sess
		}
		sess.mu.Unlock()
	}
}

// insert registra sess (já travada pelo chamador) se não houver outra ativa para a chave
func (s *Sessions) insert(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[sess.key]; ok {
		return false
	}
	s.active[sess.key] = sess
	delete(s.tombstones, sess.key)
	return true
}

// remove marca sess como encerrada e a tira do mapa. Chamador segura sess.mu.
// expiredAt != zero deixa um tombstone para responder SessionExpired depois.
func (s *Sessions) remove(sess *session, expiredAt time.Time) {
	sess.done = true
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[sess.key] == sess {
		delete(s.active, sess.key)
	}
	if !expiredAt.IsZero() {
		s.tombstones[sess.key] = expiredAt
	}
}

// expired indica se a chave teve uma sessão expirada recentemente
func (s *Sessions) expired(k sessionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tombstones[k]
	return ok
}

func (s *Sessions) snapshot() []*session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session, 0, len(s.active))
	for _, sess := range s.active {
		out = append(out, sess)
	}
	return out
}

// sweep expira sessões ociosas e descarta tombstones mais velhos que tombTTL
func (s *Sessions) sweep(now time.Time, idle, tombTTL time.Duration) int {
	evicted := 0
	for _, sess := range s.snapshot() {
		sess.mu.Lock()
		if !sess.done && now.Sub(sess.touchedAt) > idle {
			s.remove(sess, now)
			evicted++
		}
		sess.mu.Unlock()
	}

	s.mu.Lock()
	for k, at := range s.tombstones {
		if now.Sub(at) > tombTTL {
			delete(s.tombstones, k)
		}
	}
	s.mu.Unlock()
	return evicted
}
