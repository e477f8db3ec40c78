package workflow

// Step é o passo corrente da sessão
type Step int

const (
	StepSelectCategory Step = iota + 1
	StepSelectLeague
	StepSelectLineType
	StepSelectGame
	StepSelectSide
	StepEnterLegDetails
	StepAddAnotherLeg
	StepEnterTotalOdds // só parlay
	StepSelectStake
	StepSelectDestination
	StepConfirm
)

var stepNames = map[Step]string{
	StepSelectCategory:    "select_category",
	StepSelectLeague:      "select_league",
	StepSelectLineType:    "select_line_type",
	StepSelectGame:        "select_game",
	StepSelectSide:        "select_side",
	StepEnterLegDetails:   "enter_leg_details",
	StepAddAnotherLeg:     "add_another_leg",
	StepEnterTotalOdds:    "enter_total_odds",
	StepSelectStake:       "select_stake",
	StepSelectDestination: "select_destination",
	StepConfirm:           "confirm",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// opções fixas
const (
	OptionManual  = "manual"
	OptionAddLeg  = "add_leg"
	OptionFinish  = "finalize"
	OptionAccept  = "accept"
	OptionConfirm = "confirm"
	OptionCancel  = "cancel"
)

// campos de formulário
const (
	FieldHomeTeam = "home_team"
	FieldAwayTeam = "away_team"
	FieldOdds     = "odds"
	FieldLine     = "line"
	FieldPlayer   = "player"
	FieldPropType = "prop_type"
)
