package topics

const (
	// Outcomes vindos do sync de dados esportivos
	LegOutcomes = "wager_leg_outcomes"

	// Wagers
	WagerCreated = "wager_created"
	WagerGraded  = "wager_graded"

	// DLQs
	LegOutcomesDLQ = "wager_leg_outcomes_dlq"
)
