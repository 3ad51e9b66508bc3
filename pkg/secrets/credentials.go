package secrets

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Credentials is the JSON document stored under a host or BMC id.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credentials) Marshal() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return string(b), nil
}

// GetCredentials looks up the credentials stored under id and falls back to
// DEFAULT_KEY when there are none. Blank credentials are returned without an
// error when neither exists.
func GetCredentials(store SecretStore, id string) (Credentials, error) {
	var creds Credentials
	if store == nil {
		return creds, fmt.Errorf("no secret store")
	}

	secret, err := store.GetSecretByID(id)
	if err != nil {
		if id != DEFAULT_KEY {
			log.Warn().Str("id", id).Msg("specific credentials not found, falling back to default")
			secret, err = store.GetSecretByID(DEFAULT_KEY)
		}
		if err != nil {
			log.Warn().Str("id", id).Err(err).Msg("no default credentials were set, they will be blank")
			return creds, nil
		}
	}
	if err := json.Unmarshal([]byte(secret), &creds); err != nil {
		return creds, fmt.Errorf("failed to unmarshal credentials for %s: %w", id, err)
	}
	log.Debug().Str("id", id).Msg("credentials found")
	return creds, nil
}
