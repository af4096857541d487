package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// duration allows parsing both string values such as "30m" and integer
// nanoseconds from JSON config files.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration value %q", string(b))
	}
}

// jsonConfig is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, set fields are copied into the runtime Config.
type jsonConfig struct {
	DatabaseDSN               *string   `json:"database_dsn"`
	SecretKey                 *string   `json:"secret_key"`
	ClientURL                 *string   `json:"client_url"`
	BearerTokenValidity       *duration `json:"bearer_token_validity"`
	VerificationTokenValidity *duration `json:"verification_token_validity"`
	ResetTokenValidity        *duration `json:"reset_token_validity"`
	MaxLoginAttempts          *int      `json:"max_login_attempts"`
	LockoutDuration           *duration `json:"lockout_duration"`
}

// parseJson loads configuration values from the JSON file named by the
// CONFIG_FILE environment variable into the provided Config. If the variable
// is unset, no file is loaded. Only fields present in the file override the
// current values.
func parseJson(config *Config) error {

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &jsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.SecretKey != nil {
		config.SecretKey = *c.SecretKey
	}
	if c.ClientURL != nil {
		config.ClientURL = *c.ClientURL
	}
	if c.BearerTokenValidity != nil {
		config.BearerTokenValidity = c.BearerTokenValidity.Duration
	}
	if c.VerificationTokenValidity != nil {
		config.VerificationTokenValidity = c.VerificationTokenValidity.Duration
	}
	if c.ResetTokenValidity != nil {
		config.ResetTokenValidity = c.ResetTokenValidity.Duration
	}
	if c.MaxLoginAttempts != nil {
		config.MaxLoginAttempts = *c.MaxLoginAttempts
	}
	if c.LockoutDuration != nil {
		config.LockoutDuration = c.LockoutDuration.Duration
	}

	return nil
}
