package events

// Sinal de resultado de uma perna
type LegSignal struct {
	Position int    `json:"position"`
	Outcome  string `json:"outcome"` // "leg_won" | "leg_lost" | "leg_push"
}

// Evento consumido do tópico "wager_leg_outcomes", publicado pelo sync de resultados
type LegOutcomes struct {
	EventID string      `json:"event_id"`
	WagerID int64       `json:"wager_id"`
	Signals []LegSignal `json:"signals"`
	Source  string      `json:"source"`
}
