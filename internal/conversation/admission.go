package conversation

import "strings"

// Admission reasons, surfaced in logs and metrics.
const (
	ReasonGroup            = "group"
	ReasonSelfTestFiltered = "self_test_filtered"
	ReasonNotMyNumber      = "not_my_number"
	ReasonEmptyText        = "empty_text"
	ReasonAdmitted         = "admitted"
)

// Decision is the admission filter's verdict for one message.
type Decision struct {
	Proceed bool
	Reason  string
}

// Gatekeeper decides whether an extracted message enters the pipeline.
// Three independent gates compose: group exclusion, a strict self-test mode
// ("talk to myself only"), and an own-number allow-list ("respond to one
// fixed number"). Each can be active on its own.
type Gatekeeper struct {
	selfDigits string
	selfTest   bool
}

// NewGatekeeper builds a gatekeeper. selfNumber may carry formatting; only
// its digits matter. selfTest enables the strict self-test gate.
func NewGatekeeper(selfNumber string, selfTest bool) *Gatekeeper {
	return &Gatekeeper{
		selfDigits: OnlyDigits(selfNumber),
		selfTest:   selfTest,
	}
}

// Admit evaluates the gates in order and short-circuits on the first
// exclusion.
func (g *Gatekeeper) Admit(remote, number, text string, fromMe bool) Decision {
	if strings.HasSuffix(remote, GroupSuffix) {
		return Decision{Reason: ReasonGroup}
	}

	if g.selfTest {
		if !fromMe || number != g.selfDigits {
			return Decision{Reason: ReasonSelfTestFiltered}
		}
	} else if g.selfDigits != "" && number != g.selfDigits {
		return Decision{Reason: ReasonNotMyNumber}
	}

	if strings.TrimSpace(text) == "" {
		return Decision{Reason: ReasonEmptyText}
	}

	return Decision{Proceed: true, Reason: ReasonAdmitted}
}
