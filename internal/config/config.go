// Package config loads and validates the JSON configuration file mapping
// accounts to their ordered filter sets, and resolves the application's
// directories.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/nhle/mailsnag/internal/filter"
)

const (
	appDirName    = "mailsnag"
	defaultDays   = 7
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// Account maps one mailbox account to its ordered filter sets. Filter sets
// are applied independently, in order, with their counts summed.
type Account struct {
	// Address is the mailbox address, the primary key for credentials,
	// output directories, and filter configuration.
	Address string `mapstructure:"account" json:"account"`

	// Provider selects the mailbox backend: "gmail" (default) or "imap".
	Provider string `mapstructure:"provider" json:"provider,omitempty"`

	// Server is the IMAP host:port, required for the imap provider.
	Server string `mapstructure:"server" json:"server,omitempty"`

	Filters []filter.Spec `mapstructure:"filters" json:"filters"`
}

// Validate checks one account entry. A failing account is skipped by the
// run; it does not abort other accounts.
func (a Account) Validate() error {
	if a.Address == "" || !strings.Contains(a.Address, "@") {
		return fmt.Errorf("invalid account address %q", a.Address)
	}
	switch a.Provider {
	case "", ProviderGmail:
	case ProviderIMAP:
		if a.Server == "" {
			return fmt.Errorf("account %s: imap provider requires a server", a.Address)
		}
	default:
		return fmt.Errorf("account %s: unknown provider %q", a.Address, a.Provider)
	}
	if len(a.Filters) == 0 {
		return fmt.Errorf("account %s: no filter sets configured", a.Address)
	}
	return nil
}

// Config is the top-level application configuration.
type Config struct {
	// DefaultDays is the search-window length when --days is not given.
	DefaultDays int `mapstructure:"default_days"`

	// DownloadBasePath is where attachments are written, one subdirectory
	// per account. Relative paths resolve against the config file's
	// directory.
	DownloadBasePath string `mapstructure:"download_base_path"`

	// CredentialsPath overrides the credential vault directory.
	CredentialsPath string `mapstructure:"credentials_path"`

	// ClientID and ClientSecret configure the OAuth client when no
	// client_secret.json is present in the credentials directory.
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// Accounts is processed in order; the order is visible in the summary.
	Accounts []Account `mapstructure:"accounts"`

	configDir string
}

// Load reads and decodes the JSON configuration at path. File-level errors
// abort the run; per-account validation happens when each account is
// processed.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("default_days", defaultDays)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(patternListHook())); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.DefaultDays < 1 {
		return nil, fmt.Errorf("config %s: default_days must be at least 1", path)
	}
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("config %s: no accounts configured", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg.configDir = filepath.Dir(abs)

	return cfg, nil
}

// patternListHook lets a filter pattern be written as a lone string where a
// list is expected.
func patternListHook() mapstructure.DecodeHookFuncType {
	listType := reflect.TypeOf(filter.PatternList{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to == listType && from.Kind() == reflect.String {
			return []string{data.(string)}, nil
		}
		return data, nil
	}
}

// AppDir returns the platform configuration directory for the application,
// creating it with owner-only permissions.
func AppDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config dir: %w", err)
	}
	dir := filepath.Join(base, appDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating app dir %s: %w", dir, err)
	}
	return dir, nil
}

// CredentialsDir resolves the credential vault directory: the configured
// override (relative to the config file) or <appdir>/credentials.
func (c *Config) CredentialsDir() (string, error) {
	if c.CredentialsPath != "" {
		return c.resolve(c.CredentialsPath), nil
	}
	app, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(app, "credentials"), nil
}

// DownloadDir resolves the download base path, defaulting to a downloads
// directory next to the config file.
func (c *Config) DownloadDir() string {
	if c.DownloadBasePath != "" {
		return c.resolve(c.DownloadBasePath)
	}
	return filepath.Join(c.configDir, "downloads")
}

// HistoryPath returns the run-history database location.
func HistoryPath() (string, error) {
	app, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(app, "history.db"), nil
}

// resolve expands a leading ~ and makes relative paths relative to the
// config file's directory.
func (c *Config) resolve(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.configDir, path)
	}
	return filepath.Clean(path)
}

// DefaultTemplate is the starter configuration written by `mailsnag init`.
func DefaultTemplate() []byte {
	return []byte(`{
  "default_days": 7,
  "download_base_path": "./downloads",
  "accounts": [
    {
      "account": "example@gmail.com",
      "filters": [
        {
          "from": "invoice@.*\\.example\\.com",
          "subject": ["Receipt", "Invoice"],
          "body": "Payment.*confirmed",
          "attachments": ["*.pdf"]
        }
      ]
    },
    {
      "account": "user@domain.com",
      "filters": [
        {
          "from": ["billing@service1\\.com", "noreply@service2\\.com"],
          "subject": "Monthly Statement"
        }
      ]
    }
  ]
}
`)
}
