package model

import "time"

// VerificationStatus is the deliverability state of a contact email.
type VerificationStatus string

const (
	VerificationValid   VerificationStatus = "valid"
	VerificationGuessed VerificationStatus = "guessed"
	VerificationUnknown VerificationStatus = "unknown"
	VerificationInvalid VerificationStatus = "invalid"
)

// ParseVerificationStatus maps provider vocabulary onto a VerificationStatus.
// Anything unrecognized is unknown.
func ParseVerificationStatus(s string) VerificationStatus {
	switch s {
	case "valid", "verified", "deliverable":
		return VerificationValid
	case "guessed", "pattern", "accept_all", "risky":
		return VerificationGuessed
	case "invalid", "undeliverable":
		return VerificationInvalid
	default:
		return VerificationUnknown
	}
}

// Contact is a person at a company. At most one contact exists per
// (CompanyID, Email).
type Contact struct {
	ID                      string             `json:"id"`
	CompanyID               string             `json:"company_id"`
	FirstName               string             `json:"first_name"`
	LastName                string             `json:"last_name"`
	Role                    string             `json:"role"`
	Email                   string             `json:"email"`
	LinkedInURL             string             `json:"linkedin_url,omitempty"`
	TwitterURL              string             `json:"twitter_url,omitempty"`
	Source                  string             `json:"source"`
	ConfidenceScore         float64            `json:"confidence_score"`
	Verified                bool               `json:"verified"`
	EmailVerificationStatus VerificationStatus `json:"email_verification_status"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// ContactCandidate is an unmerged contact as reported by one provider.
type ContactCandidate struct {
	FirstName          string             `json:"first_name"`
	LastName           string             `json:"last_name"`
	Role               string             `json:"role"`
	Email              string             `json:"email"`
	LinkedInURL        string             `json:"linkedin_url,omitempty"`
	TwitterURL         string             `json:"twitter_url,omitempty"`
	Source             string             `json:"source"`
	VerificationStatus VerificationStatus `json:"verification_status"`

	// MatchScore is the provider's own score, on a 0..MatchScale range.
	// Nil when the provider reports none.
	MatchScore *float64 `json:"match_score,omitempty"`
	MatchScale float64  `json:"match_scale,omitempty"`
}
