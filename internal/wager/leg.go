package wager

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/radieske/sports-wager-engine/internal/odds"
)

// Side é o lado escolhido numa perna
type Side string

const (
	SideHome  Side = "home"
	SideAway  Side = "away"
	SideOver  Side = "over"
	SideUnder Side = "under"
)

func ParseSide(s string) (Side, error) {
	sd := Side(strings.ToLower(strings.TrimSpace(s)))
	switch sd {
	case SideHome, SideAway, SideOver, SideUnder:
		return sd, nil
	}
	return "", &ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %q", s)}
}

// ManualGame substitui o jogo real quando o capper digita os times
type ManualGame struct {
	Home string
	Away string
}

// GameRef aponta para um jogo buscado (ID) ou para um placeholder manual. Exatamente um dos dois.
type GameRef struct {
	ID     *int64
	Manual *ManualGame
}

func (g GameRef) Validate() error {
	switch {
	case g.ID != nil && g.Manual != nil:
		return &ValidationError{Field: "game", Reason: "game id and manual entry are mutually exclusive"}
	case g.ID == nil && g.Manual == nil:
		return &ValidationError{Field: "game", Reason: "game reference required"}
	case g.Manual != nil && (strings.TrimSpace(g.Manual.Home) == "" || strings.TrimSpace(g.Manual.Away) == ""):
		return &ValidationError{Field: "game", Reason: "manual entry needs both team labels"}
	}
	return nil
}

func (g GameRef) key() string {
	if g.ID != nil {
		return "g:" + strconv.FormatInt(*g.ID, 10)
	}
	if g.Manual != nil {
		return "m:" + strings.ToLower(g.Manual.Home) + "|" + strings.ToLower(g.Manual.Away)
	}
	return ""
}

// Selection é a união fechada do que foi escolhido na perna: SideSelection | PropSelection
type Selection interface {
	isSelection()
}

// SideSelection: linha de jogo (moneyline, spread, total)
type SideSelection struct {
	Side Side
}

// PropSelection: prop de jogador
type PropSelection struct {
	Player    string
	PropType  string
	Line      float64
	Direction Side // over | under
}

func (SideSelection) isSelection() {}
func (PropSelection) isSelection() {}

// Leg é uma seleção dentro da aposta
type Leg struct {
	Position    int
	Game        GameRef
	League      string
	LineType    string
	Description string
	Odds        int
	Selection   Selection
	Outcome     string // resultado gravado no grading; vazio enquanto pending
}

func (l *Leg) Validate() error {
	if err := l.Game.Validate(); err != nil {
		return err
	}
	if err := odds.ValidateAmerican(l.Odds); err != nil {
		return &ValidationError{Field: "odds", Reason: err.Error()}
	}
	switch s := l.Selection.(type) {
	case SideSelection:
		if s.Side == "" {
			return &ValidationError{Field: "side", Reason: "side required"}
		}
	case PropSelection:
		if strings.TrimSpace(s.Player) == "" || strings.TrimSpace(s.PropType) == "" {
			return &ValidationError{Field: "prop", Reason: "player and prop type required"}
		}
		if s.Direction != SideOver && s.Direction != SideUnder {
			return &ValidationError{Field: "direction", Reason: "prop direction must be over or under"}
		}
	case nil:
		return &ValidationError{Field: "selection", Reason: "selection required"}
	default:
		return &ValidationError{Field: "selection", Reason: fmt.Sprintf("unsupported selection %T", s)}
	}
	return nil
}

// OutcomeKey identifica o resultado escolhido; duas pernas com a mesma chave são duplicadas
func (l *Leg) OutcomeKey() string {
	var sel string
	switch s := l.Selection.(type) {
	case SideSelection:
		sel = "side:" + string(s.Side)
	case PropSelection:
		sel = "prop:" + strings.ToLower(s.Player) + "|" + strings.ToLower(s.PropType) + "|" +
			strconv.FormatFloat(s.Line, 'f', -1, 64) + "|" + string(s.Direction)
	}
	return l.Game.key() + "#" + strings.ToLower(l.LineType) + "#" + sel
}

// SelectionKind devolve o rótulo persistido da seleção
func SelectionKind(s Selection) string {
	switch s.(type) {
	case SideSelection:
		return "side"
	case PropSelection:
		return "player_prop"
	}
	return ""
}
