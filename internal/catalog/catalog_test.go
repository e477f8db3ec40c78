package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if len(cfg.StakeUnits) != 5 {
		t.Errorf("stake units = %v", cfg.StakeUnits)
	}
	if cfg.MinUnits.String() != "0.5" || cfg.MaxUnits.String() != "5" {
		t.Errorf("unit bounds = [%s,%s]", cfg.MinUnits, cfg.MaxUnits)
	}
	c := New(cfg, nil, nil)
	lt, ok := c.LineType("total")
	if !ok || lt.Selection != SelectionSide || lt.Sides[0] != "over" {
		t.Errorf("total line type = %+v", lt)
	}
	lt, ok = c.LineType("player_prop")
	if !ok || lt.Selection != SelectionPlayerProp {
		t.Errorf("player_prop line type = %+v", lt)
	}
	if _, ok := c.League("basketball", "nba"); !ok {
		t.Error("nba should be under basketball")
	}
	if _, ok := c.League("football", "nba"); ok {
		t.Error("nba should not be under football")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "stake outside bounds",
			doc: `min_units = "1"
max_units = "2"
stake_units = ["5"]`,
			want: "outside",
		},
		{
			name: "side line with one side",
			doc: `min_units = "1"
max_units = "2"
stake_units = ["1"]
[[categories]]
key = "x"
leagues = [{ key = "y" }]
[[line_types]]
key = "ml"
selection = "side"
sides = ["home"]`,
			want: "exactly two sides",
		},
		{
			name: "side labels the flow cannot parse",
			doc: `min_units = "1"
max_units = "2"
stake_units = ["1"]
[[categories]]
key = "x"
leagues = [{ key = "y" }]
[[line_types]]
key = "ml"
selection = "side"
sides = ["yes", "no"]`,
			want: "unknown side",
		},
		{
			name: "same side twice",
			doc: `min_units = "1"
max_units = "2"
stake_units = ["1"]
[[categories]]
key = "x"
leagues = [{ key = "y" }]
[[line_types]]
key = "ml"
selection = "side"
sides = ["home", "HOME"]`,
			want: "same side twice",
		},
		{
			name: "unknown selection",
			doc: `min_units = "1"
max_units = "2"
stake_units = ["1"]
[[categories]]
key = "x"
leagues = [{ key = "y" }]
[[line_types]]
key = "ml"
selection = "teaser"`,
			want: "unknown selection kind",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDestinations_FallbackToContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Destinations = map[string][]string{"g1": {"picks", "vip"}}
	c := New(cfg, nil, nil)
	if d := c.Destinations("g1"); len(d) != 2 {
		t.Errorf("g1 destinations = %v", d)
	}
	if d := c.Destinations("g2"); len(d) != 1 || d[0] != "g2" {
		t.Errorf("g2 destinations = %v", d)
	}
}

type failingSource struct{}

func (failingSource) ListGames(context.Context, string, time.Time) ([]Game, error) {
	return nil, errors.New("db down")
}

func TestGames_SourceFailureDegrades(t *testing.T) {
	c := New(DefaultConfig(), failingSource{}, nil)
	if g := c.Games(context.Background(), "nba", time.Now()); g != nil {
		t.Errorf("expected no games, got %v", g)
	}
	c = New(DefaultConfig(), nil, nil)
	if g := c.Games(context.Background(), "nba", time.Now()); g != nil {
		t.Errorf("expected no games without source, got %v", g)
	}
}
