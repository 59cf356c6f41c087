package bot

import "strings"

// State names one step of a conversation flow. The engine holds no state in
// memory: the current state lives in the session row and every message is
// dispatched against it.
type State string

const (
	StateRegistrationName  State = "REGISTRATION_NAME"
	StateRegistrationPhone State = "REGISTRATION_PHONE"
	StateRegistrationTruck State = "REGISTRATION_TRUCK"

	StateAwaitingClient       State = "AWAITING_CLIENT"
	StateAwaitingWeight       State = "AWAITING_WEIGHT"
	StateAwaitingPhoto        State = "AWAITING_PHOTO"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"

	StateChangingTruck       State = "CHANGING_TRUCK"
	StateAwaitingStatsPeriod State = "AWAITING_STATS_PERIOD"
)

// Menu selection tokens. They are matched on the trimmed message text only
// when no flow is active (except the globals below).
const (
	tokenMenu       = "0"
	tokenNewReport  = "1"
	tokenTruckSwap  = "2"
	tokenReRegister = "3"
	tokenStatistics = "4"

	tokenSkipPhoto = "пропустить"
)

var registrationStates = map[State]bool{
	StateRegistrationName:  true,
	StateRegistrationPhone: true,
	StateRegistrationTruck: true,
}

// isExitToken matches the global escape hatch: "0" or "меню" abandons any
// flow from any state, before state dispatch.
func isExitToken(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == tokenMenu || t == "меню"
}

func isAffirmative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "да", "yes", "д", "y":
		return true
	}
	return false
}

func isNegative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "нет", "no", "н":
		return true
	}
	return false
}

func isSkipToken(text string) bool {
	return strings.ToLower(strings.TrimSpace(text)) == tokenSkipPhoto
}
