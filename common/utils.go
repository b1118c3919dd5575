package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check
//
// Returns:
//   - T: the first non-zero value, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// AlignUp rounds value up to the nearest multiple of alignment.
// Alignment must be a power of two.
//
// Parameters:
//   - value: the value to round up
//   - alignment: the power-of-two alignment to round to
//
// Returns:
//   - uint64: the smallest multiple of alignment that is >= value
func AlignUp(value, alignment uint64) uint64 {
	return (value + alignment - 1) &^ (alignment - 1)
}
