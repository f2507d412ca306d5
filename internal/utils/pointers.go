package utils

// Ptr returns a pointer to a copy of v, for optional fields such as license
// overrides.
func Ptr[T any](v T) *T {
	return &v
}

// ClonePtr copies the value behind p so the copy never aliases the original.
func ClonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	return Ptr(*p)
}
