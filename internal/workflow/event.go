package workflow

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wager"
)

// Event é a entrada entregue pelo adapter de chat. União fechada: Start | Select | Submit | Cancel.
type Event interface {
	isEvent()
}

// Start abre o fluxo. Com sessão ativa, retoma; Replace cancela a ativa e começa outra.
type Start struct {
	Kind    wager.Kind
	Replace bool
}

// Select: usuário escolheu a opção Option
type Select struct {
	Option string
}

// Submit: usuário enviou um formulário
type Submit struct {
	Fields map[string]string
}

// Cancel destrói a sessão sem persistir nada
type Cancel struct{}

func (Start) isEvent()  {}
func (Select) isEvent() {}
func (Submit) isEvent() {}
func (Cancel) isEvent() {}

// Outcome é o tipo de resposta de HandleInput
type Outcome int

const (
	OutcomeRePrompt Outcome = iota + 1
	OutcomeCreated
	OutcomeCancelled
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRePrompt:
		return "prompt"
	case OutcomeCreated:
		return "created"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Result é o que o adapter renderiza
type Result struct {
	Outcome    Outcome       `json:"outcome"`
	Prompt     *Prompt       `json:"prompt,omitempty"`
	WagerID    int64         `json:"wagerId,omitempty"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Preview é a prévia de odd e retorno
type Preview struct {
	Odds       int             `json:"odds"`
	Multiplier float64         `json:"multiplier"`
	Overridden bool            `json:"overridden"`
	Units      decimal.Decimal `json:"units,omitempty"`
	Payout     decimal.Decimal `json:"payout,omitempty"`
	Profit     decimal.Decimal `json:"profit,omitempty"`
}

// Prompt descreve o passo a ser exibido
type Prompt struct {
	Step    Step        `json:"step"`
	Kind    string      `json:"kind"`
	Options []Option    `json:"options,omitempty"`
	Fields  []string    `json:"fields,omitempty"`
	Legs    []wager.Leg `json:"legs,omitempty"`
	Preview *Preview    `json:"preview,omitempty"`
	Notice  string      `json:"notice,omitempty"`
}

func (p *Prompt) accepts(option string) bool {
	for _, o := range p.Options {
		if o.Value == option {
			return true
		}
	}
	return false
}

func (p *Prompt) withNotice(n string) *Prompt {
	cp := *p
	cp.Notice = n
	return &cp
}
