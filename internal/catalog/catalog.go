package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Game é um jogo buscado pelo sync de dados esportivos
type Game struct {
	ID       int64     `json:"id"`
	League   string    `json:"league"`
	HomeTeam string    `json:"homeTeam"`
	AwayTeam string    `json:"awayTeam"`
	StartsAt time.Time `json:"startsAt"`
}

// GameSource lista jogos de uma liga a partir de um instante
type GameSource interface {
	ListGames(ctx context.Context, league string, from time.Time) ([]Game, error)
}

// Catalog responde as opções de cada passo do fluxo
type Catalog struct {
	cfg   Config
	games GameSource
	log   *zap.Logger
}

// New cria o catálogo. games pode ser nil: então só a entrada manual de jogo fica disponível.
func New(cfg Config, games GameSource, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{cfg: cfg, games: games, log: log}
}

func (c *Catalog) Categories() []Category { return c.cfg.Categories }

func (c *Catalog) Category(key string) (Category, bool) {
	for _, cat := range c.cfg.Categories {
		if cat.Key == key {
			return cat, true
		}
	}
	return Category{}, false
}

func (c *Catalog) League(category, key string) (League, bool) {
	cat, ok := c.Category(category)
	if !ok {
		return League{}, false
	}
	for _, l := range cat.Leagues {
		if l.Key == key {
			return l, true
		}
	}
	return League{}, false
}

func (c *Catalog) LineTypes() []LineType { return c.cfg.LineTypes }

func (c *Catalog) LineType(key string) (LineType, bool) {
	for _, lt := range c.cfg.LineTypes {
		if lt.Key == key {
			return lt, true
		}
	}
	return LineType{}, false
}

func (c *Catalog) PropTypes() []PropType { return c.cfg.PropTypes }

func (c *Catalog) PropType(key string) (PropType, bool) {
	for _, p := range c.cfg.PropTypes {
		if p.Key == key {
			return p, true
		}
	}
	return PropType{}, false
}

// Stakes devolve as denominações fixas de unidades
func (c *Catalog) Stakes() []decimal.Decimal { return c.cfg.StakeUnits }

func (c *Catalog) UnitBounds() (min, max decimal.Decimal) { return c.cfg.MinUnits, c.cfg.MaxUnits }

// Destinations devolve os canais configurados do grupo; sem configuração, o próprio contexto
func (c *Catalog) Destinations(groupID string) []string {
	if d := c.cfg.Destinations[groupID]; len(d) > 0 {
		return d
	}
	return []string{groupID}
}

// Games lista os jogos da liga. Falha da fonte degrada para lista vazia (entrada manual).
func (c *Catalog) Games(ctx context.Context, league string, from time.Time) []Game {
	if c.games == nil {
		return nil
	}
	g, err := c.games.ListGames(ctx, league, from)
	if err != nil {
		c.log.Warn("list games failed, manual entry only", zap.String("league", league), zap.Error(err))
		return nil
	}
	return g
}
