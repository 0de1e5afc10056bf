package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration using struct tags and the rules that
// cannot be expressed in tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Logging.Output == "file" && cfg.Logging.File == "" {
		return fmt.Errorf("logging: output is file but file is empty")
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing: enabled but endpoint is empty")
	}
	if cfg.Debug.Enabled && cfg.Debug.ListenAddress == "" {
		return fmt.Errorf("debug: enabled but listen_address is empty")
	}
	if cfg.Storage.BadgerInMemory && cfg.Storage.Backend != "badger" {
		return fmt.Errorf("storage: badger_in_memory requires the badger backend")
	}
	for name, d := range map[string]string{
		"session.duration":              cfg.Session.Duration,
		"session.ttl_interval":          cfg.Session.TTLInterval,
		"debug.system_metrics_interval": cfg.Debug.SystemMetricsInterval,
	} {
		if d == "" {
			continue
		}
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s: negative duration %s", name, d)
		}
	}
	return nil
}

// formatValidationError reports the first failed field with its tag.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
