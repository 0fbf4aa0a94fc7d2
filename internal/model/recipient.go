// internal/model/recipient.go
package model

// Recipient is one prospect row of an upload. It is never mutated after parsing.
type Recipient struct {
	Email          string   `json:"email"`
	CompanyName    string   `json:"company_name"`
	CompanyWebsite string   `json:"company_website"`
	FirstName      string   `json:"first_name"`
	Locations      []string `json:"locations,omitempty"` // candidate location strings, highest priority first
}

// Location returns the first non-empty location candidate.
func (r Recipient) Location() string {
	for _, l := range r.Locations {
		if l != "" {
			return l
		}
	}
	return ""
}
