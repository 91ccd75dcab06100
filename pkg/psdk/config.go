package psdk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yfschool/portal/pkg/kv"
)

// Credential store backends selectable through the "store" key.
const (
	StoreMemory  = "memory"
	StoreKeyring = "keyring"
	StoreValkey  = "valkey"
)

type Config struct {
	BaseURL        string        `mapstructure:"baseUrl"`
	Store          string        `mapstructure:"store"`
	Valkey         ValkeyConfig  `mapstructure:"valkey"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	RefreshTimeout time.Duration `mapstructure:"refreshTimeout"`
	LogoutTimeout  time.Duration `mapstructure:"logoutTimeout"`
	RefreshSkew    time.Duration `mapstructure:"refreshSkew"`

	v *viper.Viper // instance-specific viper
}

// ValkeyConfig locates the shared session store used when Store is "valkey".
type ValkeyConfig struct {
	kv.ValkeyConfig `mapstructure:",squash"`
	Prefix          string        `mapstructure:"prefix"`
	TTL             time.Duration `mapstructure:"ttl"`
}

const (
	EnvPrefix  = "PORTAL"
	ConfigName = "portal"
	ConfigRoot = ".portal"

	BaseUrlKey        = "baseUrl"
	StoreKey          = "store"
	ValkeyAddrKey     = "valkey.addr"
	ValkeyPasswordKey = "valkey.password"
	ValkeyDBKey       = "valkey.db"
	ValkeyPrefixKey   = "valkey.prefix"
	ValkeyTTLKey      = "valkey.ttl"
	RequestTimeoutKey = "requestTimeout"
	RefreshTimeoutKey = "refreshTimeout"
	LogoutTimeoutKey  = "logoutTimeout"
	RefreshSkewKey    = "refreshSkew"

	DefaultBaseURL = "http://localhost:8000/api/"
)

// LoadConfig creates a new Config instance with its own viper.
// An explicit cfgFile wins; otherwise portal.yaml in the working directory is
// read and .portal/config.yaml is merged over it.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	} else {
		// Project config (tracked)
		for _, name := range []string{"portal.yaml", "portal.yml", ".portal.yaml"} {
			if _, err := os.Stat(name); err == nil {
				v.SetConfigFile(name)
				if err := v.ReadInConfig(); err == nil {
					break
				}
			}
		}

		// Local overrides (untracked)
		localConfigPath := filepath.Join(ConfigRoot, "config.yaml")
		if _, err := os.Stat(localConfigPath); err == nil {
			v.SetConfigFile(localConfigPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("merging local config: %w", err)
			}
		}
	}

	return fromViper(v)
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	cfg, err := fromViper(viper.New())
	if err != nil {
		panic(err)
	}
	return cfg
}

func fromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.v = v
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	if !v.IsSet(BaseUrlKey) {
		v.SetDefault(BaseUrlKey, DefaultBaseURL)
	} else {
		v.Set(BaseUrlKey, NormalizeBaseURL(v.GetString(BaseUrlKey)))
	}

	v.SetDefault(StoreKey, StoreMemory)
	v.SetDefault(ValkeyAddrKey, "localhost:6379")
	v.SetDefault(ValkeyPasswordKey, "")
	v.SetDefault(ValkeyDBKey, 0)
	v.SetDefault(ValkeyPrefixKey, "portal:session:")
	v.SetDefault(ValkeyTTLKey, 0)
	v.SetDefault(RequestTimeoutKey, 30*time.Second)
	v.SetDefault(RefreshTimeoutKey, DefaultRefreshTimeout)
	v.SetDefault(LogoutTimeoutKey, DefaultLogoutTimeout)
	v.SetDefault(RefreshSkewKey, 0)
}

// NormalizeBaseURL makes sure relative resources resolve under the base path.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(raw, "/") + "/"
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreKeyring, StoreValkey:
	default:
		return fmt.Errorf("unknown credential store %q (want %s, %s or %s)", c.Store, StoreMemory, StoreKeyring, StoreValkey)
	}
	if c.RefreshSkew < 0 {
		return fmt.Errorf("refreshSkew must not be negative")
	}
	return nil
}

// Get returns a value from the underlying viper instance.
// Useful for CLI flag binding and dynamic config access.
func (c *Config) Get(key string) interface{} {
	if c.v == nil {
		return nil
	}
	return c.v.Get(key)
}

func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// Viper returns the underlying viper instance.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

// ConfigFileUsed returns the config file that was used (if any)
func (c *Config) ConfigFileUsed() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}
