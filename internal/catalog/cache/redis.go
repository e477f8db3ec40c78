package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/catalog"
)

// Games é um read-through cache Redis na frente de uma GameSource
type Games struct {
	R      *redis.Client
	Source catalog.GameSource
	TTL    time.Duration
	Log    *zap.Logger
}

func NewGames(r *redis.Client, src catalog.GameSource, ttl time.Duration, log *zap.Logger) *Games {
	if log == nil {
		log = zap.NewNop()
	}
	return &Games{R: r, Source: src, TTL: ttl, Log: log}
}

// a lista depende só da liga e do dia; jogos já iniciados são filtrados na leitura
func keyLeague(league string, from time.Time) string {
	return "games:league:" + league + ":" + from.UTC().Format("2006-01-02")
}

func (c *Games) ListGames(ctx context.Context, league string, from time.Time) ([]catalog.Game, error) {
	key := keyLeague(league, from)

	b, err := c.R.Get(ctx, key).Bytes()
	if err == nil {
		var cached []catalog.Game
		if jerr := json.Unmarshal(b, &cached); jerr == nil {
			return upcoming(cached, from), nil
		}
	} else if err != redis.Nil {
		// cache fora do ar não bloqueia: segue para a fonte
		c.Log.Warn("games cache get failed", zap.String("key", key), zap.Error(err))
	}

	dayStart := from.UTC().Truncate(24 * time.Hour)
	games, err := c.Source.ListGames(ctx, league, dayStart)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(games); err == nil {
		if err := c.R.Set(ctx, key, b, c.TTL).Err(); err != nil {
			c.Log.Warn("games cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return upcoming(games, from), nil
}

func upcoming(games []catalog.Game, from time.Time) []catalog.Game {
	out := make([]catalog.Game, 0, len(games))
	for _, g := range games {
		if !g.StartsAt.Before(from) {
			out = append(out, g)
		}
	}
	return out
}
