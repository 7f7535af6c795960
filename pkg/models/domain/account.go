package domain

// Account is a cloud account the engines operate on. Provider selects the
// resource provider implementation; the remaining fields are credentials
// context for that provider.
type Account struct {
	Name     string
	Provider string

	// AWS
	Region  string
	Profile string

	// Azure
	SubscriptionID string
}
