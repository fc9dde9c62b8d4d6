package config

import (
	"os"

	"github.com/zalando/go-keyring"
)

const tokenKeyringUser = "collaborator_token"

// EnvToken overrides the keyring when set. Useful for CI and containers
// where no secret service is available.
const EnvToken = "CUTPLANE_TOKEN"

// GetCollaboratorToken returns the bearer token used for collaborator
// calls. The environment variable wins over the keyring; an empty string
// means the collaborators are unauthenticated (the cropdev case).
func GetCollaboratorToken() string {
	if tok := os.Getenv(EnvToken); tok != "" {
		return tok
	}
	tok, err := keyring.Get(ServiceName, tokenKeyringUser)
	if err != nil {
		return ""
	}
	return tok
}

// SetCollaboratorToken stores the bearer token in the OS keyring.
func SetCollaboratorToken(token string) error {
	if token == "" {
		err := keyring.Delete(ServiceName, tokenKeyringUser)
		if err == keyring.ErrNotFound {
			return nil
		}
		return err
	}
	return keyring.Set(ServiceName, tokenKeyringUser, token)
}
