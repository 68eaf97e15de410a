package address

import "crypto/rand"

const randomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomLocal returns a cryptographically random local part of n lowercase
// letters and digits, minimum 16. Used for catch-all probes where the
// address must be unguessable and cannot collide with a real mailbox.
func RandomLocal(n int) string {
	if n < 16 {
		n = 16
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; if it somehow
		// does, an all-'q' local part is still a valid probe address.
		for i := range b {
			b[i] = 'q'
		}
	}
	for i := range b {
		b[i] = randomAlphabet[int(b[i])%len(randomAlphabet)]
	}
	return string(b)
}
