package util

import (
	"github.com/OpenCHAMI/pdusim/pkg/secrets"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// overrideStore replaces the username or password of every credential read
// from the wrapped store without writing the change back.
type overrideStore struct {
	secrets.SecretStore
	username *string
	password *string
}

func (s *overrideStore) GetSecretByID(id string) (string, error) {
	creds, err := secrets.GetCredentials(s.SecretStore, id)
	if err != nil {
		return "", err
	}
	if s.username != nil {
		creds.Username = *s.username
	}
	if s.password != nil {
		creds.Password = *s.password
	}
	return creds.Marshal()
}

// BuildSecretStore returns the store hypervisor and BMC credentials are read
// from. When both username and password are given they are used for every
// host; otherwise the encrypted store at secretsFile is opened and either
// value, when given, overrides what it holds.
func BuildSecretStore(fs afero.Fs, secretsFile string, username, password *string) secrets.SecretStore {
	if username != nil && password != nil {
		log.Debug().Msg("username and password given, using them for every host")
		return secrets.NewStaticStore(*username, *password)
	}

	var store secrets.SecretStore
	local, err := secrets.OpenStore(fs, secretsFile)
	if err != nil {
		log.Warn().Err(err).Str("path", secretsFile).Msg("failed to open local secrets store; using blank credentials")
		store = secrets.NewStaticStore("", "")
	} else {
		store = local
	}
	if username == nil && password == nil {
		return store
	}
	if username != nil {
		log.Info().Msg("username given, overriding every username from the secrets store")
	}
	if password != nil {
		log.Info().Msg("password given, overriding every password from the secrets store")
	}
	return &overrideStore{SecretStore: store, username: username, password: password}
}
