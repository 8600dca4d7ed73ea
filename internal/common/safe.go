package common

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b hold identical bytes,
// using a branch-free comparison that does not short-circuit on the
// first mismatching byte. Unequal lengths are treated as unequal
// without ever touching out-of-range indices.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zeroize overwrites b with zero bytes in place. Call it on every exit
// path that held a secret buffer (symmetric keys, clear shares,
// ephemeral private keys, unwrapped signing keys).
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
