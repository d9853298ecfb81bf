package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/flemzord/recall/internal/core"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the structural validity of a Config and reports every
// problem at once. It verifies the version field, the API endpoint, chat
// tuning bounds, log settings, telemetry, and that every referenced module
// ID exists in the registry with at most one store module selected.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateAPI(cfg.API)...)
	errs = append(errs, validateChat(cfg.Chat)...)

	if cfg.Log.Level != "" && !slices.Contains(logLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q must be one of %v", cfg.Log.Level, logLevels))
	}
	if cfg.Log.Format != "" && !slices.Contains(logFormats, cfg.Log.Format) {
		errs = append(errs, fmt.Errorf("config: log.format %q must be one of %v", cfg.Log.Format, logFormats))
	}

	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	errs = append(errs, validateModules(cfg)...)

	return errors.Join(errs...)
}

func validateAPI(api APIConfig) []error {
	var errs []error
	if api.BaseURL != "" {
		u, err := url.Parse(api.BaseURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("config: api.base_url: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("config: api.base_url %q must use http or https", api.BaseURL))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("config: api.base_url %q has no host", api.BaseURL))
		}
	}
	if api.Timeout < 0 {
		errs = append(errs, errors.New("config: api.timeout must not be negative"))
	}
	return errs
}

func validateChat(c ChatConfig) []error {
	var errs []error
	if c.RevealInterval < 0 {
		errs = append(errs, errors.New("config: chat.reveal_interval must not be negative"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("config: chat.temperature %v outside 0..2", c.Temperature))
	}
	if c.RetrievalK < 0 || c.RetrievalK > 100 {
		errs = append(errs, fmt.Errorf("config: chat.retrieval_k %d outside 0..100", c.RetrievalK))
	}
	for _, m := range c.Modalities {
		if !m.Valid() {
			errs = append(errs, fmt.Errorf("config: chat.modalities: unknown modality %q", m))
		}
	}
	return errs
}

func validateModules(cfg *Config) []error {
	var errs []error
	var stores []string

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		if isStoreModule(id) {
			stores = append(stores, id)
		}
	}
	if len(stores) > 1 {
		errs = append(errs, fmt.Errorf("config: only one store module may be configured, got %v", stores))
	}
	return errs
}
