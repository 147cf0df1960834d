package tier

// Tier is a named service level determined by token holdings.
type Tier string

const (
	FreeTrial Tier = "Free Trial"
	Electrum  Tier = "Electrum"
	Pro       Tier = "Pro"
	Gold      Tier = "Gold"
)

// Limits is the quota table for one tier. Both axes share one rate-limit
// window per session; the period length depends on the axis checked.
type Limits struct {
	MessageLimit       int
	MessagePeriodHours int
	VoiceLimit         int
	VoicePeriodHours   int
}

// Cumulative token holding thresholds.
const (
	goldThreshold     = 300_000
	proThreshold      = 200_000
	electrumThreshold = 100_000
)

func FromBalance(balance float64) Tier {
	switch {
	case balance >= goldThreshold:
		return Gold
	case balance >= proThreshold:
		return Pro
	case balance >= electrumThreshold:
		return Electrum
	default:
		return FreeTrial
	}
}

func LimitsFor(t Tier) Limits {
	switch t {
	case Gold:
		return Limits{MessageLimit: 50, MessagePeriodHours: 1, VoiceLimit: 240, VoicePeriodHours: 24}
	case Pro:
		return Limits{MessageLimit: 40, MessagePeriodHours: 1, VoiceLimit: 120, VoicePeriodHours: 24}
	case Electrum:
		return Limits{MessageLimit: 20, MessagePeriodHours: 1, VoiceLimit: 60, VoicePeriodHours: 24}
	default:
		// Free Trial: 5 messages per 4 hours, 1 voice minute per 4 hours.
		return Limits{MessageLimit: 5, MessagePeriodHours: 4, VoiceLimit: 1, VoicePeriodHours: 4}
	}
}
