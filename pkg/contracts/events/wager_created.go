package events

// LegSummary é a perna como publicada nos eventos
type LegSummary struct {
	Position    int    `json:"position"`
	GameID      *int64 `json:"game_id,omitempty"`
	League      string `json:"league"`
	LineType    string `json:"line_type"`
	Description string `json:"description"`
	Odds        int    `json:"odds"`
}

// Evento publicado no tópico "wager_created" após a aposta ser persistida
type WagerCreated struct {
	EventID     string       `json:"event_id"`
	WagerID     int64        `json:"wager_id"`
	OwnerID     string       `json:"owner_id"`
	GroupID     string       `json:"group_id"`
	Kind        string       `json:"kind"`
	Legs        []LegSummary `json:"legs"`
	Units       string       `json:"units"`
	Odds        int          `json:"odds"`
	Destination string       `json:"destination"`
	TsUnixMs    int64        `json:"ts_unix_ms"`
}
