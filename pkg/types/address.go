package types

// Address is the billing address snapshot stored on an order. Persisted as
// jsonb; validation happens in the order store before checkout.
type Address struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Company     string `json:"company,omitempty"`
	AddressLine string `json:"addressLine" validate:"required"`
	PostalCode  string `json:"postalCode" validate:"required"`
	City        string `json:"city" validate:"required"`
	Region      string `json:"region,omitempty"`
	CountryCode string `json:"countryCode" validate:"required,iso3166_1_alpha2"`
}

// Contact holds the order contact data captured before checkout.
type Contact struct {
	EmailAddress string `json:"emailAddress" validate:"required,email"`
	TelNumber    string `json:"telNumber,omitempty"`
}
