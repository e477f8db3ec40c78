package events

import "time"

// Evento emitido pelo settlement quando a aposta chega a um status terminal
type WagerGraded struct {
	EventID     string    `json:"event_id"`
	WagerID     int64     `json:"wager_id"`
	OwnerID     string    `json:"owner_id"`
	GroupID     string    `json:"group_id"`
	Status      string    `json:"status"` // "won" | "lost" | "push" | "cancelled"
	Units       string    `json:"units"`
	ResultValue string    `json:"result_value"`
	Description string    `json:"description,omitempty"`
	Ts          time.Time `json:"ts"`
}
