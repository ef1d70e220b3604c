package ports

// PasswordHasher produces and checks one-way credential hashes.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches hash. A malformed hash is an error.
	Verify(plaintext, hash string) (bool, error)
}
