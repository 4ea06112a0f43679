package model

// StepInput are the named parameters of a single dispatch. Absent keys read as
// empty strings so command construction never fails on a missing value.
type StepInput map[string]string

// Get returns the value for key or "" when absent.
func (i StepInput) Get(key string) string {
	if i == nil {
		return ""
	}
	return i[key]
}

// FirstOf returns the first non-empty value of the given keys.
func (i StepInput) FirstOf(keys ...string) string {
	for _, k := range keys {
		if v := i.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Missing returns the keys that are absent or empty.
func (i StepInput) Missing(keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if i.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}
