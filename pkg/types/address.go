package types

import "strings"

// Address is an inline postal address stored as jsonb on the order.
type Address struct {
	Name       string  `json:"name,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// MissingFields lists the required address fields left blank.
func (a Address) MissingFields() []string {
	missing := []string{}
	if strings.TrimSpace(a.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postal_code")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	return missing
}

// Normalized trims every field and upper-cases the country code.
func (a Address) Normalized() Address {
	out := a
	out.Name = strings.TrimSpace(a.Name)
	out.Line1 = strings.TrimSpace(a.Line1)
	out.City = strings.TrimSpace(a.City)
	out.State = strings.TrimSpace(a.State)
	out.PostalCode = strings.TrimSpace(a.PostalCode)
	out.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if a.Line2 != nil {
		line2 := strings.TrimSpace(*a.Line2)
		out.Line2 = &line2
		if line2 == "" {
			out.Line2 = nil
		}
	}
	return out
}
