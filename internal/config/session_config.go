package config

import "github.com/pkg/errors"

// devTokenSecret signs session tokens in DEV when SESSION_TOKEN_SECRET is unset.
const devTokenSecret = "dev-only-session-secret"

type Sessions struct{}

var _ SessionConfig = Sessions{}

func (Sessions) GetSessionTokenSecret() []byte {
	return []byte(GetEnv(tokenSecretVar, devTokenSecret))
}

func (Sessions) GetSessionIssuer() string {
	return GetEnv(appNameVar, "tenant-gate")
}

// CheckSecrets refuses to run outside DEV with the built-in session secret.
func CheckSecrets(c Config) error {
	if c.GetEnv() == "DEV" {
		return nil
	}
	if string(c.GetSessionTokenSecret()) == devTokenSecret {
		return errors.Errorf("%s must be set when ENV is %s", tokenSecretVar, c.GetEnv())
	}
	return nil
}
