package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/pkg/app"
)

const apiKeyRef = "${RECALL_API_KEY}"

type initAnswers struct {
	BaseURL     string
	APIKey      string
	KeyInFile   bool
	TenantID    string
	UserID      string
	Store       string
	Gateway     bool
	GatewayBind string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		BaseURL:     config.DefaultBaseURL,
		TenantID:    config.DefaultTenantID,
		UserID:      config.DefaultUserID,
		Store:       "file",
		GatewayBind: "127.0.0.1:8080",
	}
}

func initCmd(g *globals) *cobra.Command {
	var (
		force       bool
		interactive bool
		a           = defaultAnswers()
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := g.configPath
			if path == "" {
				path = app.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if interactive {
				if err := runInitForm(&a); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						fmt.Fprintln(cmd.ErrOrStderr(), "aborted")
						return nil
					}
					return err
				}
			}

			cfg, err := buildConfig(a)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			if !a.KeyInFile {
				fmt.Fprintln(cmd.OutOrStdout(), "Set RECALL_API_KEY in your environment or a .env file next to the config.")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	f.BoolVarP(&interactive, "interactive", "i", true, "Ask for each setting")
	f.StringVar(&a.BaseURL, "base-url", a.BaseURL, "Memory service URL")
	f.StringVar(&a.APIKey, "api-key", "", "API key to store in the file")
	f.StringVar(&a.TenantID, "tenant", a.TenantID, "Tenant id")
	f.StringVar(&a.UserID, "user", a.UserID, "User id")
	f.StringVar(&a.Store, "store", a.Store, "Local state backend (file or sqlite)")
	f.BoolVar(&a.Gateway, "gateway", false, "Enable the HTTP gateway")
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		a.KeyInFile = cmd.Flags().Changed("api-key")
	}
	return cmd
}

func runInitForm(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Memory service URL").
				Value(&a.BaseURL).
				Validate(validateBaseURL),
			huh.NewInput().
				Title("API key").
				Description("Leave empty to read it from RECALL_API_KEY").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
			huh.NewInput().
				Title("Tenant id").
				Value(&a.TenantID).
				Validate(notBlank("tenant id")),
			huh.NewInput().
				Title("User id").
				Value(&a.UserID).
				Validate(notBlank("user id")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should sessions be stored?").
				Options(
					huh.NewOption("JSON files", "file"),
					huh.NewOption("SQLite database", "sqlite"),
				).
				Value(&a.Store),
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Value(&a.Gateway),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway address").
				Value(&a.GatewayBind).
				Validate(validateBind),
		).WithHideFunc(func() bool { return !a.Gateway }),
	)
	if err := form.Run(); err != nil {
		return err
	}
	a.KeyInFile = strings.TrimSpace(a.APIKey) != ""
	return nil
}

// buildConfig turns wizard answers into a validated config.
func buildConfig(a initAnswers) (*config.Config, error) {
	cfg := config.Default()
	cfg.API.BaseURL = strings.TrimSpace(a.BaseURL)
	cfg.API.TenantID = strings.TrimSpace(a.TenantID)
	cfg.API.UserID = strings.TrimSpace(a.UserID)
	cfg.API.APIKey = apiKeyRef
	if a.KeyInFile {
		cfg.API.APIKey = strings.TrimSpace(a.APIKey)
	}

	switch a.Store {
	case "", "file":
	case "sqlite":
		if err := setModule(cfg, "store.sqlite", map[string]any{}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown store %q (want file or sqlite)", a.Store)
	}
	if a.Gateway {
		if err := validateBind(a.GatewayBind); err != nil {
			return nil, err
		}
		if err := setModule(cfg, "gateway", map[string]any{"bind": a.GatewayBind}); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setModule(cfg *config.Config, id string, v any) error {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Errorf("encoding %s config: %w", id, err)
	}
	cfg.Modules[id] = node
	return nil
}

func validateBaseURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an http(s) URL")
	}
	return nil
}

func validateBind(s string) error {
	if _, _, err := net.SplitHostPort(s); err != nil {
		return errors.New("enter host:port")
	}
	return nil
}

func notBlank(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s must not be empty", field)
		}
		return nil
	}
}
