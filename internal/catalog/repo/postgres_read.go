package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/radieske/sports-wager-engine/internal/catalog"
)

// Games lê o modelo de jogos populado pelo sync de dados esportivos
type Games struct {
	DB      *sql.DB
	Timeout time.Duration
	Limit   int
}

func NewGames(db *sql.DB, timeout time.Duration) *Games {
	return &Games{DB: db, Timeout: timeout, Limit: 25}
}

// ListGames devolve os próximos jogos da liga a partir de from, ordenados por início
func (r *Games) ListGames(ctx context.Context, league string, from time.Time) ([]catalog.Game, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	const q = `
		SELECT id, league, home_team, away_team, starts_at
		FROM games
		WHERE league = $1 AND starts_at >= $2
		ORDER BY starts_at, id
		LIMIT $3;
	`
	rows, err := r.DB.QueryContext(ctx, q, league, from, r.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Game
	for rows.Next() {
		var g catalog.Game
		if err := rows.Scan(&g.ID, &g.League, &g.HomeTeam, &g.AwayTeam, &g.StartsAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
