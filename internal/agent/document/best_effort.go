package document

// BestEffort carries an optional enrichment computed next to a primary
// result. Err records why Value fell back to its default; it never fails
// the surrounding call.
type BestEffort[T any] struct {
	Value T
	Err   error
}

// Succeeded wraps a value that was computed normally.
func Succeeded[T any](v T) BestEffort[T] {
	return BestEffort[T]{Value: v}
}

// FellBack records err and substitutes fallback for the value.
func FellBack[T any](fallback T, err error) BestEffort[T] {
	return BestEffort[T]{Value: fallback, Err: err}
}

// OK reports whether the value was computed without falling back.
func (b BestEffort[T]) OK() bool {
	return b.Err == nil
}

// Or returns the value, or fallback when the computation fell back.
func (b BestEffort[T]) Or(fallback T) T {
	if b.Err != nil {
		return fallback
	}
	return b.Value
}
