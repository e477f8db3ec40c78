package catalog

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wager"
)

// SelectionKind diz como a perna daquele tipo de linha é preenchida
type SelectionKind int

const (
	SelectionSide SelectionKind = iota + 1
	SelectionPlayerProp
)

func (k SelectionKind) String() string {
	switch k {
	case SelectionSide:
		return "side"
	case SelectionPlayerProp:
		return "player_prop"
	}
	return "unknown"
}

func (k *SelectionKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "side":
		*k = SelectionSide
	case "player_prop":
		*k = SelectionPlayerProp
	default:
		return fmt.Errorf("unknown selection kind %q", string(b))
	}
	return nil
}

type League struct {
	Key   string `toml:"key"`
	Label string `toml:"label"`
}

type Category struct {
	Key     string   `toml:"key"`
	Label   string   `toml:"label"`
	Leagues []League `toml:"leagues"`
}

// LineType: moneyline, spread, total, player_prop...
type LineType struct {
	Key       string        `toml:"key"`
	Label     string        `toml:"label"`
	Selection SelectionKind `toml:"selection"`
	Sides     []string      `toml:"sides"` // exatamente dois para linhas de jogo
}

// PropType define o intervalo aceito para a linha numérica
type PropType struct {
	Key   string  `toml:"key"`
	Label string  `toml:"label"`
	Min   float64 `toml:"min"`
	Max   float64 `toml:"max"`
}

// Config é o catálogo de opções do fluxo, carregado de TOML
type Config struct {
	MinUnits     decimal.Decimal     `toml:"min_units"`
	MaxUnits     decimal.Decimal     `toml:"max_units"`
	StakeUnits   []decimal.Decimal   `toml:"stake_units"`
	Categories   []Category          `toml:"categories"`
	LineTypes    []LineType          `toml:"line_types"`
	PropTypes    []PropType          `toml:"prop_types"`
	Destinations map[string][]string `toml:"destinations"` // groupID -> canais
}

// LoadFile lê o catálogo de um arquivo TOML. path vazio devolve o catálogo padrão.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(string(b))
}

// Parse decodifica e valida um catálogo em TOML
func Parse(doc string) (Config, error) {
	var cfg Config
	if _, err := toml.Decode(doc, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.MinUnits.IsPositive() || c.MaxUnits.LessThan(c.MinUnits) {
		return fmt.Errorf("catalog: invalid unit bounds [%s,%s]", c.MinUnits, c.MaxUnits)
	}
	if len(c.StakeUnits) == 0 {
		return fmt.Errorf("catalog: stake_units required")
	}
	for _, s := range c.StakeUnits {
		if s.LessThan(c.MinUnits) || s.GreaterThan(c.MaxUnits) {
			return fmt.Errorf("catalog: stake %s outside [%s,%s]", s, c.MinUnits, c.MaxUnits)
		}
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("catalog: at least one category required")
	}
	for _, cat := range c.Categories {
		if len(cat.Leagues) == 0 {
			return fmt.Errorf("catalog: category %s has no leagues", cat.Key)
		}
	}
	if len(c.LineTypes) == 0 {
		return fmt.Errorf("catalog: at least one line type required")
	}
	for _, lt := range c.LineTypes {
		switch lt.Selection {
		case SelectionSide:
			if len(lt.Sides) != 2 {
				return fmt.Errorf("catalog: line type %s needs exactly two sides", lt.Key)
			}
			// o fluxo só aceita lados que wager.ParseSide reconhece
			var parsed [2]wager.Side
			for i, side := range lt.Sides {
				sd, err := wager.ParseSide(side)
				if err != nil {
					return fmt.Errorf("catalog: line type %s: %w", lt.Key, err)
				}
				parsed[i] = sd
			}
			if parsed[0] == parsed[1] {
				return fmt.Errorf("catalog: line type %s has the same side twice", lt.Key)
			}
		case SelectionPlayerProp:
			if len(c.PropTypes) == 0 {
				return fmt.Errorf("catalog: line type %s needs prop_types", lt.Key)
			}
		default:
			return fmt.Errorf("catalog: line type %s has no selection kind", lt.Key)
		}
	}
	for _, p := range c.PropTypes {
		if p.Max < p.Min {
			return fmt.Errorf("catalog: prop type %s has max < min", p.Key)
		}
	}
	return nil
}

const defaultCatalog = `
min_units = "0.5"
max_units = "5"
stake_units = ["0.5", "1", "2", "3", "5"]

[[categories]]
key = "football"
label = "Football"
leagues = [{ key = "nfl", label = "NFL" }, { key = "ncaaf", label = "NCAAF" }]

[[categories]]
key = "basketball"
label = "Basketball"
leagues = [{ key = "nba", label = "NBA" }, { key = "ncaab", label = "NCAAB" }]

[[categories]]
key = "baseball"
label = "Baseball"
leagues = [{ key = "mlb", label = "MLB" }]

[[categories]]
key = "hockey"
label = "Hockey"
leagues = [{ key = "nhl", label = "NHL" }]

[[line_types]]
key = "moneyline"
label = "Moneyline"
selection = "side"
sides = ["home", "away"]

[[line_types]]
key = "spread"
label = "Spread"
selection = "side"
sides = ["home", "away"]

[[line_types]]
key = "total"
label = "Total"
selection = "side"
sides = ["over", "under"]

[[line_types]]
key = "player_prop"
label = "Player Prop"
selection = "player_prop"

[[prop_types]]
key = "points"
label = "Points"
min = 0.5
max = 80.5

[[prop_types]]
key = "rebounds"
label = "Rebounds"
min = 0.5
max = 30.5

[[prop_types]]
key = "passing_yards"
label = "Passing Yards"
min = 0.5
max = 600.5

[[prop_types]]
key = "strikeouts"
label = "Strikeouts"
min = 0.5
max = 20.5
`

// DefaultConfig é o catálogo embutido usado quando CATALOG_FILE não é informado
func DefaultConfig() Config {
	cfg, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return cfg
}
