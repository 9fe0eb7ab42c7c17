package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/tasksync-server/internal/auth"
	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/logger"
)

// AuthKey is the hex-encoded token key.
type AuthKey string

// ProvideAuthKey uses the configured key, or loads or generates one in the data path.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	source := "config"
	key := cfg.Auth.AccessTokenKey
	if key == "" {
		var err error
		key, err = auth.LoadOrGenerateKey(cfg.Storage.DataPath)
		if err != nil {
			return "", err
		}
		cfg.Auth.AccessTokenKey = key
		source = "data_path"
	}

	log.Info("Authentication key loaded",
		"source", source,
		"access_token_duration", cfg.Auth.AccessTokenDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService(string(authKey), cfg.Auth.AccessTokenDuration)
}
