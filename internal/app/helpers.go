package app

// optionalString returns nil for empty strings so optional columns store NULL.
func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
