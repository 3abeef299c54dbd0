package oauth

// Declaration defines the token endpoint contract for a provider.
type Declaration struct {
	Provider string
	TokenURL string
	ClientID string
	Scope    string
}
