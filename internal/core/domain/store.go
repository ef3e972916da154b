package domain

import "time"

// Store is a storefront registered for performance tracking.
type Store struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	BaseURL     string           `json:"base_url"`
	Credentials StoreCredentials `json:"-"`
	Enabled     bool             `json:"enabled"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// StoreCredentials authenticate against the store's REST API.
type StoreCredentials struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

// IsEmpty reports whether no credentials are configured.
func (c StoreCredentials) IsEmpty() bool {
	return c.ConsumerKey == "" && c.ConsumerSecret == ""
}
