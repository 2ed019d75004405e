package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backends and continuation stores.
const (
	BackendAPI  = "api"
	BackendIMAP = "imap"

	StoreSQLite    = "sqlite"
	StoreDatastore = "datastore"
)

// Config holds the application configuration
type Config struct {
	Backend      string
	Address      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RefreshToken string
	AppPassword  string

	Continuation Continuation

	SearchEmptyIsError bool
	ToolTimeout        time.Duration
	KeyringDir         string

	Notify Notify
}

// Continuation configures where pending retries are kept.
type Continuation struct {
	Store   string
	Path    string
	Project string
	Kind    string
	TTL     time.Duration
}

// Notify configures the Pub/Sub push endpoint. It is disabled when Addr is
// empty.
type Notify struct {
	Addr       string
	Topic      string
	Labels     []string
	Token      string
	HookURL    string
	HookToken  string
	RenewEvery time.Duration
}

// Enabled reports whether the push endpoint should run.
func (n Notify) Enabled() bool { return n.Addr != "" }

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("gmail.backend", BackendAPI)
	v.SetDefault("gmail.redirect_url", "urn:ietf:wg:oauth:2.0:oob")
	v.SetDefault("continuation.store", StoreSQLite)
	v.SetDefault("continuation.path", "mcp-gmail.db")
	v.SetDefault("continuation.kind", "Continuation")
	v.SetDefault("continuation.ttl", "24h")
	v.SetDefault("search.empty_is_error", true)
	v.SetDefault("tool.timeout", "60s")
	v.SetDefault("keyring.dir", "~/.config/mcp-gmail/credentials")
	v.SetDefault("notify.labels", "INBOX")
	v.SetDefault("notify.renew_every", "24h")
	return v
}

// Load reads configuration from environment variables, a .env file and the
// optional YAML file named by MCP_GMAIL_CONFIG. Environment variables win.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	v := newViper()
	if path := os.Getenv("MCP_GMAIL_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Backend:      strings.ToLower(strings.TrimSpace(v.GetString("gmail.backend"))),
		Address:      strings.TrimSpace(v.GetString("gmail.address")),
		ClientID:     v.GetString("gmail.client_id"),
		ClientSecret: v.GetString("gmail.client_secret"),
		RedirectURL:  v.GetString("gmail.redirect_url"),
		RefreshToken: v.GetString("gmail.refresh_token"),
		AppPassword:  v.GetString("gmail.app_password"),
		Continuation: Continuation{
			Store:   strings.ToLower(strings.TrimSpace(v.GetString("continuation.store"))),
			Path:    v.GetString("continuation.path"),
			Project: v.GetString("continuation.project"),
			Kind:    v.GetString("continuation.kind"),
		},
		SearchEmptyIsError: v.GetBool("search.empty_is_error"),
		KeyringDir:         v.GetString("keyring.dir"),
		Notify: Notify{
			Addr:      v.GetString("notify.addr"),
			Topic:     v.GetString("notify.topic"),
			Labels:    list(v, "notify.labels"),
			Token:     v.GetString("notify.token"),
			HookURL:   v.GetString("notify.hook_url"),
			HookToken: v.GetString("notify.hook_token"),
		},
	}

	var err error
	if cfg.Continuation.TTL, err = duration(v, "continuation.ttl"); err != nil {
		return nil, err
	}
	if cfg.ToolTimeout, err = duration(v, "tool.timeout"); err != nil {
		return nil, err
	}
	if cfg.Notify.RenewEvery, err = duration(v, "notify.renew_every"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envName maps a viper key to the environment variable that sets it.
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 30s or 24h, got %q", envName(key), raw)
	}
	return d, nil
}

// list accepts a YAML sequence or a comma separated string.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Address == "" {
		return fmt.Errorf("GMAIL_ADDRESS environment variable is required")
	}

	switch c.Backend {
	case BackendAPI:
		if c.ClientID == "" {
			return fmt.Errorf("GMAIL_CLIENT_ID environment variable is required for the api backend")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("GMAIL_CLIENT_SECRET environment variable is required for the api backend")
		}
	case BackendIMAP:
	default:
		return fmt.Errorf("GMAIL_BACKEND must be one of api, imap; got %q", c.Backend)
	}

	switch c.Continuation.Store {
	case StoreSQLite:
		if c.Continuation.Path == "" {
			return fmt.Errorf("CONTINUATION_PATH environment variable is required for the sqlite store")
		}
	case StoreDatastore:
		if c.Continuation.Project == "" {
			return fmt.Errorf("CONTINUATION_PROJECT environment variable is required for the datastore store")
		}
	default:
		return fmt.Errorf("CONTINUATION_STORE must be one of sqlite, datastore; got %q", c.Continuation.Store)
	}

	if c.Continuation.TTL < 0 {
		return fmt.Errorf("CONTINUATION_TTL must not be negative")
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("TOOL_TIMEOUT must be positive")
	}

	if c.Notify.Enabled() {
		if c.Backend != BackendAPI {
			return fmt.Errorf("NOTIFY_ADDR requires GMAIL_BACKEND=api")
		}
		if c.Notify.Topic == "" {
			return fmt.Errorf("NOTIFY_TOPIC environment variable is required when NOTIFY_ADDR is set")
		}
		if c.Notify.RenewEvery <= 0 {
			return fmt.Errorf("NOTIFY_RENEW_EVERY must be positive")
		}
	}
	return nil
}

// RequireSecrets checks the backend's secret once environment values have
// been merged with the keyring.
func (c *Config) RequireSecrets() error {
	switch c.Backend {
	case BackendAPI:
		if c.RefreshToken == "" {
			return fmt.Errorf("GMAIL_REFRESH_TOKEN environment variable is required (or store it in the keyring)")
		}
	case BackendIMAP:
		if c.AppPassword == "" {
			return fmt.Errorf("GMAIL_APP_PASSWORD environment variable is required (use an app password from myaccount.google.com/apppasswords)")
		}
	}
	return nil
}
