package secrets

import (
	"errors"
	"os"
	"strings"

	apperr "jobagg-engine/internal/errors"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the engine's secrets in the OS keychain.
	KeyringService = "jobagg"

	AdzunaAccount = "adzuna:app_key"
	EnvAdzunaKey  = "JOBAGG_ADZUNA_APP_KEY"
)

// GetAdzunaKey resolves the adzuna app key: env first, then the keychain,
// then the value from config.
func GetAdzunaKey(cfgKey string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvAdzunaKey)); v != "" {
		return v, nil
	}

	// a missing or unavailable keychain falls through to config
	if key, err := keyring.Get(KeyringService, AdzunaAccount); err == nil && strings.TrimSpace(key) != "" {
		return key, nil
	}

	if v := strings.TrimSpace(cfgKey); v != "" {
		return v, nil
	}
	return "", apperr.NotFound("adzuna app key not found (set it in keychain, "+EnvAdzunaKey+" or config)", nil)
}

// AdzunaKey returns a resolver that is evaluated on every fetch, so a key
// stored while the engine runs is picked up without a restart.
func AdzunaKey(cfgKey string) func() (string, error) {
	return func() (string, error) { return GetAdzunaKey(cfgKey) }
}

func SetAdzunaKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return apperr.InvalidInput("app key is empty", nil)
	}
	return keyring.Set(KeyringService, AdzunaAccount, strings.TrimSpace(key))
}

func DeleteAdzunaKey() error {
	err := keyring.Delete(KeyringService, AdzunaAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
