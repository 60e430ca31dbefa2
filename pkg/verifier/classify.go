package verifier

import (
	"github.com/asoos/domain-sync/pkg/model"
)

// Probes holds the raw observations of one verification pass.
type Probes struct {
	// ARecords is every A answer seen, matching or not. No answers at
	// all is how "never configured" is told apart from "wrong IP".
	ARecords    []string
	DNSResolved bool
	TXTPresent  bool
	// HTTPStatus is 0 on timeout or refusal. A probe failure is a
	// recorded state, not an error.
	HTTPStatus int
}

func (p Probes) httpsOK() bool {
	return p.HTTPStatus >= 200 && p.HTTPStatus < 300
}

// Classify derives the lifecycle state from one pass of probes plus the
// previously recorded state. A domain that has been LIVE and regresses
// goes to DEGRADED, never back to DNS_PENDING, so operators can tell
// "never configured" from "broke after going live".
func Classify(p Probes, previous model.OverallState) model.OverallState {
	wasLive := previous == model.StateLive || previous == model.StateDegraded
	if wasLive {
		// Verification TXT records are commonly cleaned up after the
		// provider confirms ownership; their absence no longer matters.
		if p.DNSResolved && p.httpsOK() {
			return model.StateLive
		}
		return model.StateDegraded
	}

	if !p.DNSResolved {
		if len(p.ARecords) == 0 && (previous == "" || previous == model.StateUnconfigured) {
			return model.StateUnconfigured
		}
		return model.StateDNSPending
	}
	if !p.TXTPresent {
		return model.StateVerificationPending
	}
	if !p.httpsOK() {
		return model.StateSSLPending
	}
	return model.StateLive
}
