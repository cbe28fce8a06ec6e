package config

import "os"

// Environment variable names for overrides. Secrets belong here rather
// than in a world-readable config file.
const (
	EnvConfig             = "HIVECORE_CONFIG"
	EnvDatabasePath       = "HIVECORE_DB_PATH"
	EnvGoogleClientID     = "HIVECORE_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "HIVECORE_GOOGLE_CLIENT_SECRET" //nolint:gosec // env var name, not a credential
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath         string
	DatabasePath       string
	GoogleClientID     string
	GoogleClientSecret string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:         os.Getenv(EnvConfig),
		DatabasePath:       os.Getenv(EnvDatabasePath),
		GoogleClientID:     os.Getenv(EnvGoogleClientID),
		GoogleClientSecret: os.Getenv(EnvGoogleClientSecret),
	}
}

// Apply writes the non-empty overrides onto cfg. Environment values win
// over file values.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.DatabasePath != "" {
		cfg.Database.Path = e.DatabasePath
	}

	if e.GoogleClientID != "" {
		cfg.Providers.Google.ClientID = e.GoogleClientID
	}

	if e.GoogleClientSecret != "" {
		cfg.Providers.Google.ClientSecret = e.GoogleClientSecret
	}
}
