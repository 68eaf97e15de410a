package models

import "time"

type SyntaxStatus string
type DomainStatus string
type MXStatus string
type SMTPStatus string
type SpamRisk string
type FinalStatus string

const (
	SyntaxValid   SyntaxStatus = "valid"
	SyntaxInvalid SyntaxStatus = "invalid"

	DomainValid   DomainStatus = "valid"
	DomainInvalid DomainStatus = "invalid"

	MXFound    MXStatus = "found"
	MXNotFound MXStatus = "not_found"

	SMTPResponsive  SMTPStatus = "responsive"
	SMTPRejected    SMTPStatus = "rejected"
	SMTPUnreachable SMTPStatus = "unreachable"
	SMTPNoMX        SMTPStatus = "no_mx"

	RiskLow    SpamRisk = "low"
	RiskMedium SpamRisk = "medium"
	RiskHigh   SpamRisk = "high"

	StatusValidSafe     FinalStatus = "valid_safe"
	StatusValidRisky    FinalStatus = "valid_risky"
	StatusRisky         FinalStatus = "risky"
	StatusInvalidSyntax FinalStatus = "invalid_syntax"
	StatusInvalidDomain FinalStatus = "invalid_domain"
	StatusNoMX          FinalStatus = "no_mx"
	StatusInvalid       FinalStatus = "invalid"
	StatusDisposable    FinalStatus = "disposable"
	StatusError         FinalStatus = "error"
)

// VerificationResult is the full verdict for one address. Every field is
// always populated so consumers never have to branch on absence.
type VerificationResult struct {
	Email        string                 `json:"email"`
	Syntax       SyntaxStatus           `json:"syntax"`
	Domain       DomainStatus           `json:"domain"`
	MX           MXStatus               `json:"mx"`
	MXRecords    []string               `json:"mx_records"`
	SMTP         SMTPStatus             `json:"smtp"`
	SMTPProvider string                 `json:"smtp_provider"`
	CatchAll     bool                   `json:"catch_all"`
	Disposable   bool                   `json:"disposable"`
	RoleBased    bool                   `json:"role_based"`
	IsO365       bool                   `json:"is_o365"`
	SpamRisk     SpamRisk               `json:"spam_risk"`
	FinalStatus  FinalStatus            `json:"final_status"`
	SafetyScore  int                    `json:"safety_score"`
	Reason       string                 `json:"reason"`
	Details      map[string]interface{} `json:"details"`
	Timestamp    time.Time              `json:"timestamp"`
	CreditsUsed  int                    `json:"credits_used"`
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// BulkJob tracks one bulk verification batch. The executor owns all mutation
// while the job is live; everyone else reads snapshots.
type BulkJob struct {
	ID          string               `json:"id"`
	OwnerID     string               `json:"owner_id"`
	Status      JobStatus            `json:"status"`
	Total       int                  `json:"total"`
	Processed   int                  `json:"processed"`
	Results     []VerificationResult `json:"results"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// Snapshot returns a copy that stays stable while the executor keeps
// mutating the original.
func (j *BulkJob) Snapshot() BulkJob {
	cp := *j
	cp.Results = make([]VerificationResult, len(j.Results))
	copy(cp.Results, j.Results)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
