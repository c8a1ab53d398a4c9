package auth

import "github.com/alexedwards/argon2id"

// Argon2id parameters, applied uniformly to every hash the service creates.
var hashParams = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword derives a salted, one-way hash of the plaintext password.
func HashPassword(plaintext string) (string, error) {
	return argon2id.CreateHash(plaintext, hashParams)
}

// VerifyPassword reports whether plaintext matches the stored hash using
// the scheme's own constant-time comparison.
func VerifyPassword(plaintext, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(plaintext, hash)
}
