package verify

import (
	"github.com/Temiboboye/zbai/internal/models"
	"github.com/Temiboboye/zbai/internal/probe"
)

// Signals is everything the probe cascade learned about one address,
// flattened for the decision table.
type Signals struct {
	SyntaxValid    bool
	Disposable     bool
	DomainResolves bool
	MXFound        bool
	ProviderExists probe.Existence
	SMTP           models.SMTPStatus
	CatchAll       bool
	RoleBased      bool
}

// Verdict is the decision table's output.
type Verdict struct {
	Status models.FinalStatus
	Score  int
	Reason string
	Risk   models.SpamRisk
}

// Decide merges the probe outputs into the final status, safety score and
// reason. Rules run top to bottom; the first match wins.
func Decide(s Signals) Verdict {
	v := decideStatus(s)
	v.Risk = riskFor(v.Score, s.Disposable)
	return v
}

func decideStatus(s Signals) Verdict {
	if !s.SyntaxValid {
		return Verdict{Status: models.StatusInvalidSyntax, Score: 0, Reason: "Invalid syntax"}
	}
	if s.Disposable {
		return Verdict{Status: models.StatusDisposable, Score: 30, Reason: "Disposable address"}
	}
	if !s.DomainResolves {
		return Verdict{Status: models.StatusInvalidDomain, Score: 10, Reason: "Domain does not exist"}
	}
	if !s.MXFound {
		return Verdict{Status: models.StatusNoMX, Score: 15, Reason: "No MX records found"}
	}

	// A conclusive provider probe outranks anything SMTP could tell us;
	// on catch-all domains it is the only reliable per-address signal.
	switch s.ProviderExists {
	case probe.ExistsNo:
		return Verdict{Status: models.StatusInvalid, Score: 10, Reason: "Mailbox does not exist"}
	case probe.ExistsYes:
		if s.CatchAll {
			return Verdict{Status: models.StatusValidRisky, Score: 60, Reason: "Catch-all domain"}
		}
		score := 95
		if s.RoleBased {
			score = 85
		}
		return Verdict{Status: models.StatusValidSafe, Score: score, Reason: "Valid and safe"}
	}

	switch s.SMTP {
	case models.SMTPRejected:
		return Verdict{Status: models.StatusInvalid, Score: 20, Reason: "Email rejected by server"}

	case models.SMTPResponsive:
		score := 95
		if s.CatchAll {
			score -= 20
		}
		if s.RoleBased {
			score -= 10
		}
		if s.CatchAll {
			return Verdict{Status: models.StatusValidRisky, Score: score, Reason: "Catch-all domain"}
		}
		return Verdict{Status: models.StatusValidSafe, Score: score, Reason: "Valid and safe"}

	default: // unreachable or no_mx
		if s.CatchAll {
			return Verdict{Status: models.StatusRisky, Score: 50, Reason: "Accept-all / unverifiable"}
		}
		score := 65
		if s.RoleBased {
			score -= 10
		}
		return Verdict{Status: models.StatusRisky, Score: score, Reason: "Unverifiable mailbox"}
	}
}

// riskFor derives spam risk from the final score. Disposable addresses are
// always high regardless of score.
func riskFor(score int, disposable bool) models.SpamRisk {
	if disposable {
		return models.RiskHigh
	}
	switch {
	case score >= 80:
		return models.RiskLow
	case score >= 60:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}
