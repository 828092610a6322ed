package password

import "golang.org/x/crypto/bcrypt"

// Hash returns the bcrypt hash of plaintext at the default cost.
func Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Matches reports whether plaintext matches hash. A malformed hash is
// reported the same way as a wrong password.
func Matches(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
