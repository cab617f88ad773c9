package domain

// Credentials is the key set one exchange adapter signs with.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
	// SubAPIKey and SubAPISecret belong to a key issued inside a subaccount (Bybit).
	SubAPIKey    string
	SubAPISecret string
}

// Configured reports whether the primary key pair is present.
func (c Credentials) Configured() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// HasSubKey reports whether a subaccount key pair is present.
func (c Credentials) HasSubKey() bool {
	return c.SubAPIKey != "" && c.SubAPISecret != ""
}
