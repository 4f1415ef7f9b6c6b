package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// stateBytes is the number of random bytes for the OAuth state parameter.
// 32 bytes provides 256 bits of entropy, enough that guessing or forging a
// state token is computationally infeasible. It encodes to 43 base64url
// characters, satisfying providers that require a minimum of 32.
const stateBytes = 32

// GenerateState generates a random state parameter for OAuth.
// The state correlates the provider's redirect back to the pending flow and
// prevents CSRF on the callback endpoint. It is drawn from crypto/rand only,
// never from time, counters or other predictable inputs.
//
// Returns a base64url-encoded random string.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
