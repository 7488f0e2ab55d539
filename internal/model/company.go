package model

import "time"

// Company is a company record in the intelligence corpus.
type Company struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	Name             string    `json:"name"`
	Domain           string    `json:"domain"`
	Industry         string    `json:"industry"`
	Location         string    `json:"location"`
	Website          string    `json:"website"`
	Description      string    `json:"description"`
	DataQualityScore int       `json:"data_quality_score"`
	Verified         bool      `json:"verified"`
	LastUpdated      time.Time `json:"last_updated"`
	CreatedAt        time.Time `json:"created_at"`
}

// Company field names used in audit records and fact maps.
const (
	FieldName        = "name"
	FieldIndustry    = "industry"
	FieldLocation    = "location"
	FieldWebsite     = "website"
	FieldDescription = "description"
	FieldDomain      = "domain"
)

// Field returns the value of a descriptive field by name.
func (c *Company) Field(name string) string {
	switch name {
	case FieldName:
		return c.Name
	case FieldIndustry:
		return c.Industry
	case FieldLocation:
		return c.Location
	case FieldWebsite:
		return c.Website
	case FieldDescription:
		return c.Description
	case FieldDomain:
		return c.Domain
	}
	return ""
}

// SetField assigns a descriptive field by name. Unknown names are ignored
// and reported as false.
func (c *Company) SetField(name, value string) bool {
	switch name {
	case FieldName:
		c.Name = value
	case FieldIndustry:
		c.Industry = value
	case FieldLocation:
		c.Location = value
	case FieldWebsite:
		c.Website = value
	case FieldDescription:
		c.Description = value
	case FieldDomain:
		c.Domain = value
	default:
		return false
	}
	return true
}

// MissingKeyFields reports whether any field that enrichment is expected to
// fill is still empty.
func (c *Company) MissingKeyFields() bool {
	return c.Industry == "" || c.Location == "" || c.Website == "" || c.Description == ""
}

// CompanyUpdate is an append-only audit entry for a single field change.
type CompanyUpdate struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Source    string    `json:"source"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}

// Facts are descriptive company fields reported by a provider, keyed by
// field name.
type Facts map[string]string
