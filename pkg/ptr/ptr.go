// Package ptr helps with the optional fields of decoded tool output.
package ptr

// Deref returns *p, or the zero value of T when p is nil.
func Deref[T any](p *T) T {
	var zero T

	return DerefOr(p, zero)
}

// DerefOr returns *p, or fallback when p is nil.
func DerefOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}

	return *p
}

// Of returns a pointer to a copy of v.
func Of[T any](v T) *T { return &v }
