// Package quality scores company completeness and contact confidence.
package quality

import (
	"strings"

	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
)

// MaxScore is the company score when every weighted signal is present.
const MaxScore = 100

// Fixed contact confidences used when a provider reports no native score.
const (
	ConfidenceVerified = 0.95
	ConfidenceGuessed  = 0.70
	ConfidenceUnknown  = 0.50
	ConfidenceInvalid  = 0.10
)

// DefaultWeights returns the stock field weights.
func DefaultWeights() config.QualityWeights {
	return config.QualityWeights{
		Name:            15,
		Industry:        15,
		Location:        15,
		Website:         15,
		Description:     20,
		VerifiedContact: 20,
	}
}

// ValidateWeights rejects negative weights and weights not summing to MaxScore.
func ValidateWeights(w config.QualityWeights) error {
	for _, v := range []int{w.Name, w.Industry, w.Location, w.Website, w.Description, w.VerifiedContact} {
		if v < 0 {
			return fault.Validation("quality: weights", "weights must be >= 0")
		}
	}
	if w.Sum() != MaxScore {
		return fault.Validationf("quality: weights", "weights must sum to %d, got %d", MaxScore, w.Sum())
	}
	return nil
}

// Scorer computes quality and confidence scores. It performs no I/O.
type Scorer struct {
	weights config.QualityWeights
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(w config.QualityWeights) (*Scorer, error) {
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// ScoreCompany returns the weighted completeness of a company in [0,100].
// The verified-contact weight is earned when any contact is verified.
func (s *Scorer) ScoreCompany(c model.Company, contacts []model.Contact) int {
	score := 0
	add := func(v string, w int) {
		if strings.TrimSpace(v) != "" {
			score += w
		}
	}
	add(c.Name, s.weights.Name)
	add(c.Industry, s.weights.Industry)
	add(c.Location, s.weights.Location)
	add(c.Website, s.weights.Website)
	add(c.Description, s.weights.Description)

	for _, ct := range contacts {
		if ct.Verified {
			score += s.weights.VerifiedContact
			break
		}
	}

	return clampInt(score, 0, MaxScore)
}

// ScoreContact maps a candidate's verification signal to a confidence in
// [0,1]. A provider's native match score takes precedence over the fixed
// status value but is clamped into the status band, so a stronger status
// never scores below a weaker one.
func (s *Scorer) ScoreContact(c model.ContactCandidate) float64 {
	if c.MatchScore == nil {
		return StatusConfidence(c.VerificationStatus)
	}
	lo, hi := statusBand(c.VerificationStatus)
	return clampFloat(Rescale(*c.MatchScore, c.MatchScale), lo, hi)
}

// statusBand is the confidence range a native score may occupy for a status.
// Bands for valid, guessed and unknown are ordered and touch at their fixed
// values.
func statusBand(st model.VerificationStatus) (float64, float64) {
	switch st {
	case model.VerificationValid:
		return ConfidenceVerified, 1
	case model.VerificationGuessed:
		return ConfidenceGuessed, ConfidenceVerified
	case model.VerificationInvalid:
		return 0, ConfidenceUnknown
	default:
		return ConfidenceUnknown, ConfidenceGuessed
	}
}

// StatusConfidence is the fixed confidence for a verification status.
func StatusConfidence(st model.VerificationStatus) float64 {
	switch st {
	case model.VerificationValid:
		return ConfidenceVerified
	case model.VerificationGuessed:
		return ConfidenceGuessed
	case model.VerificationInvalid:
		return ConfidenceInvalid
	default:
		return ConfidenceUnknown
	}
}

// Rescale maps score from [0,scale] to [0,1]. A non-positive scale is
// treated as an already-normalized score.
func Rescale(score, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	return clampFloat(score/scale, 0, 1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
