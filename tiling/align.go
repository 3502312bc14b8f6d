package tiling

// AlignUp returns the smallest multiple of a that is >= n.
// a must be a power of two.
func AlignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// AlignDown returns the largest multiple of a that is <= n.
// a must be a power of two.
func AlignDown(n, a int) int {
	return n &^ (a - 1)
}

// IsPowerOfTwo reports whether a is a positive power of two
func IsPowerOfTwo(a int) bool {
	return a > 0 && a&(a-1) == 0
}
