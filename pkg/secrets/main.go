// Package secrets stores the credentials the power drivers use to reach
// hypervisors and virtual BMCs.
package secrets

// DEFAULT_KEY holds the credentials used for any target that has no entry
// of its own.
const DEFAULT_KEY = "default"

type SecretStore interface {
	GetSecretByID(secretID string) (string, error)
	StoreSecretByID(secretID, secret string) error
	ListSecrets() (map[string]string, error)
	RemoveSecretByID(secretID string) error
}
