package utils

import "golang.org/x/crypto/bcrypt"

// HashPasskey returns the bcrypt hash of a reservation passkey using the
// given cost.
func HashPasskey(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPasskey compares a stored hash with a supplied passkey.  The
// comparison time does not depend on how many characters match.
func VerifyPasskey(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
