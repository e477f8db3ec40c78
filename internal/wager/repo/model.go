package repo

import (
	"database/sql"
	"fmt"

	"github.com/radieske/sports-wager-engine/internal/wager"
)

// legRow é a forma achatada de wager.Leg na tabela wager_legs
type legRow struct {
	WagerID       int64
	Position      int
	GameID        sql.NullInt64
	ManualHome    sql.NullString
	ManualAway    sql.NullString
	League        string
	LineType      string
	Description   string
	Odds          int
	SelectionKind string
	Side          sql.NullString
	Player        sql.NullString
	PropType      sql.NullString
	PropLine      sql.NullFloat64
	Outcome       sql.NullString
}

func toLegRow(wagerID int64, l wager.Leg) legRow {
	r := legRow{
		WagerID:       wagerID,
		Position:      l.Position,
		League:        l.League,
		LineType:      l.LineType,
		Description:   l.Description,
		Odds:          l.Odds,
		SelectionKind: wager.SelectionKind(l.Selection),
	}
	if l.Game.ID != nil {
		r.GameID = sql.NullInt64{Int64: *l.Game.ID, Valid: true}
	}
	if l.Game.Manual != nil {
		r.ManualHome = sql.NullString{String: l.Game.Manual.Home, Valid: true}
		r.ManualAway = sql.NullString{String: l.Game.Manual.Away, Valid: true}
	}
	switch s := l.Selection.(type) {
	case wager.SideSelection:
		r.Side = sql.NullString{String: string(s.Side), Valid: true}
	case wager.PropSelection:
		r.Side = sql.NullString{String: string(s.Direction), Valid: true}
		r.Player = sql.NullString{String: s.Player, Valid: true}
		r.PropType = sql.NullString{String: s.PropType, Valid: true}
		r.PropLine = sql.NullFloat64{Float64: s.Line, Valid: true}
	}
	return r
}

func (r legRow) toLeg() (wager.Leg, error) {
	l := wager.Leg{
		Position:    r.Position,
		League:      r.League,
		LineType:    r.LineType,
		Description: r.Description,
		Odds:        r.Odds,
		Outcome:     r.Outcome.String,
	}
	if r.GameID.Valid {
		id := r.GameID.Int64
		l.Game.ID = &id
	} else {
		l.Game.Manual = &wager.ManualGame{Home: r.ManualHome.String, Away: r.ManualAway.String}
	}
	side := wager.Side(r.Side.String)
	switch r.SelectionKind {
	case "side":
		l.Selection = wager.SideSelection{Side: side}
	case "player_prop":
		l.Selection = wager.PropSelection{
			Player:    r.Player.String,
			PropType:  r.PropType.String,
			Line:      r.PropLine.Float64,
			Direction: side,
		}
	default:
		return wager.Leg{}, fmt.Errorf("wager %d leg %d: unknown selection kind %q", r.WagerID, r.Position, r.SelectionKind)
	}
	return l, nil
}
