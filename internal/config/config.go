// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sigil-dev/ontograph/internal/broadcast"
	"github.com/sigil-dev/ontograph/internal/cache"
	"github.com/sigil-dev/ontograph/internal/secrets"
	"github.com/sigil-dev/ontograph/internal/server"
	"github.com/sigil-dev/ontograph/internal/service"
	"github.com/sigil-dev/ontograph/internal/store"
	"github.com/sigil-dev/ontograph/internal/variant"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// EnvPrefix is prepended to every environment override, e.g.
// ONTOGRAPH_NETWORKING_LISTEN.
const EnvPrefix = "ONTOGRAPH"

// ProviderNone disables the embeddings or assistant section.
const ProviderNone = "none"

var (
	storageBackends    = []string{"sqlite", "neo4j"}
	embeddingProviders = []string{ProviderNone, "openai", "google"}
	assistantProviders = []string{ProviderNone, "anthropic", "openai"}
)

// Config is the top-level ontograph configuration.
type Config struct {
	Networking server.Config             `mapstructure:"networking"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Embeddings EmbeddingsConfig          `mapstructure:"embeddings"`
	Assistant  AssistantConfig           `mapstructure:"assistant"`
	Cache      cache.Config              `mapstructure:"cache"`
	Variants   variant.Config            `mapstructure:"variants"`
	Broadcast  broadcast.RedisConfig     `mapstructure:"broadcast"`

	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-"`
}

// ProviderConfig holds credentials and endpoint for a model provider.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// StorageConfig selects the backing store.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	DataDir string      `mapstructure:"data_dir"`
	Neo4j   Neo4jConfig `mapstructure:"neo4j"`
}

// Neo4jConfig holds connection settings for the neo4j backend.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// EmbeddingsConfig selects the node embedder.
type EmbeddingsConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// AssistantConfig selects the responder behind Ask.
type AssistantConfig struct {
	Provider        string   `mapstructure:"provider"`
	Model           string   `mapstructure:"model"`
	Failover        []string `mapstructure:"failover"`
	MaxTokens       int      `mapstructure:"max_tokens"`
	MaxContextNodes int      `mapstructure:"max_context_nodes"`
}

// Option customizes Load.
type Option func(*loader)

type loader struct {
	secrets secrets.Store
	flags   map[string]*pflag.Flag
}

// WithSecrets resolves keyring:// values through store after reading.
func WithSecrets(store secrets.Store) Option {
	return func(l *loader) { l.secrets = store }
}

// WithFlag binds a command-line flag to a config key. Unset flags do not
// override file or environment values.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(l *loader) {
		if flag != nil {
			l.flags[key] = flag
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:18790")
	v.SetDefault("networking.read_timeout", 30*time.Second)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.neo4j.user", "neo4j")
	v.SetDefault("embeddings.provider", ProviderNone)
	v.SetDefault("embeddings.dimensions", 1536)
	v.SetDefault("assistant.provider", ProviderNone)
	v.SetDefault("assistant.max_tokens", 4096)
	v.SetDefault("assistant.max_context_nodes", 200)

	c := cache.DefaultConfig()
	v.SetDefault("cache.ttl", c.TTL)
	v.SetDefault("cache.max_entries", c.MaxEntries)
	v.SetDefault("cache.semantic_max_distance", c.SemanticMaxDistance)

	vc := variant.DefaultConfig()
	v.SetDefault("variants.hot_inactivity", vc.HotInactivity)
	v.SetDefault("variants.warm_inactivity", vc.WarmInactivity)
	v.SetDefault("variants.max_hot", vc.MaxHot)
	v.SetDefault("variants.max_warm", vc.MaxWarm)
	v.SetDefault("variants.max_memory_bytes", vc.MaxMemoryBytes)

	v.SetDefault("broadcast.redis_channel", broadcast.DefaultRedisChannel)
}

// Load reads configuration from path, or from the first ontograph.yaml found
// in the working directory, ~/.config/ontograph, or /etc/ontograph. Values
// are then overridden by ONTOGRAPH_* environment variables and bound flags.
func Load(path string, opts ...Option) (*Config, error) {
	l := &loader{flags: make(map[string]*pflag.Flag)}
	for _, opt := range opts {
		opt(l)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range l.flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "binding flag for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("ontograph")
		v.SetConfigType("yaml")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	if l.secrets != nil {
		if err := secrets.ResolveViperSecrets(v, l.secrets); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

func searchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ontograph"))
	}
	return append(paths, "/etc/ontograph")
}

// Validate checks the configuration for logical errors. It collects every
// issue rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateEmbeddings()...)
	errs = append(errs, c.validateAssistant()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateVariants()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.ListenAddr == "" {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Networking.ListenAddr)
		if err != nil {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
				"config: networking.listen must be a valid host:port address, got %q: %w",
				c.Networking.ListenAddr, err,
			))
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
					"config: networking.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 0 || port > 65535 {
				errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
					"config: networking.listen port must be between 0 and 65535, got %d",
					port,
				))
			}
		}
	}

	if err := c.Networking.RateLimit.Validate(); err != nil {
		errs = append(errs, sigilerr.Wrap(err, sigilerr.CodeConfigValidateInvalidValue, "config: networking.rate_limit"))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if !slices.Contains(storageBackends, c.Storage.Backend) {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of %v, got %q",
			storageBackends, c.Storage.Backend,
		))
	}
	if c.Storage.Backend == "neo4j" && c.Storage.Neo4j.URI == "" {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: storage.neo4j.uri must be set when storage.backend is neo4j"))
	}

	return errs
}

func (c *Config) validateEmbeddings() []error {
	var errs []error

	if !slices.Contains(embeddingProviders, c.Embeddings.Provider) {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: embeddings.provider must be one of %v, got %q",
			embeddingProviders, c.Embeddings.Provider,
		))
	} else if c.Embeddings.Provider != ProviderNone {
		errs = append(errs, c.requireKey("embeddings.provider", c.Embeddings.Provider)...)
	}

	if c.Embeddings.Dimensions < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: embeddings.dimensions must not be negative, got %d",
			c.Embeddings.Dimensions,
		))
	}

	return errs
}

func (c *Config) validateAssistant() []error {
	var errs []error

	if !slices.Contains(assistantProviders, c.Assistant.Provider) {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: assistant.provider must be one of %v, got %q",
			assistantProviders, c.Assistant.Provider,
		))
	} else if c.Assistant.Provider != ProviderNone {
		errs = append(errs, c.requireKey("assistant.provider", c.Assistant.Provider)...)
	}

	for i, name := range c.Assistant.Failover {
		field := "assistant.failover[" + strconv.Itoa(i) + "]"
		if name == ProviderNone || !slices.Contains(assistantProviders, name) {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
				"config: %s must be one of %v, got %q",
				field, assistantProviders[1:], name,
			))
			continue
		}
		errs = append(errs, c.requireKey(field, name)...)
	}

	if c.Assistant.MaxTokens <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: assistant.max_tokens must be greater than 0, got %d",
			c.Assistant.MaxTokens,
		))
	}
	if c.Assistant.MaxContextNodes <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: assistant.max_context_nodes must be greater than 0, got %d",
			c.Assistant.MaxContextNodes,
		))
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error

	if c.Cache.TTL < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: cache.ttl must not be negative, got %s", c.Cache.TTL))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: cache.max_entries must not be negative, got %d", c.Cache.MaxEntries))
	}
	if c.Cache.SemanticMaxDistance < 0 || c.Cache.SemanticMaxDistance > 2 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: cache.semantic_max_distance must be within [0, 2], got %g", c.Cache.SemanticMaxDistance))
	}

	return errs
}

func (c *Config) validateVariants() []error {
	var errs []error

	if c.Variants.HotInactivity < 0 || c.Variants.WarmInactivity < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: variants inactivity thresholds must not be negative"))
	}
	if c.Variants.WarmInactivity > 0 && c.Variants.WarmInactivity < c.Variants.HotInactivity {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: variants.warm_inactivity (%s) must not be shorter than variants.hot_inactivity (%s)",
			c.Variants.WarmInactivity, c.Variants.HotInactivity,
		))
	}
	if c.Variants.MaxHot < 0 || c.Variants.MaxWarm < 0 || c.Variants.MaxMemoryBytes < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: variants limits must not be negative"))
	}

	return errs
}

// requireKey reports a missing or unresolved API key for provider.
func (c *Config) requireKey(field, provider string) []error {
	key := c.Providers[provider].APIKey
	switch {
	case key == "":
		return []error{sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: %s %q needs providers.%s.api_key", field, provider, provider)}
	case secrets.IsKeyringURI(key):
		return []error{sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: providers.%s.api_key is an unresolved keyring reference", provider)}
	}
	return nil
}

// ServiceConfig returns the per-scope service settings.
func (c *Config) ServiceConfig() service.Config {
	return service.Config{Cache: c.Cache, Variants: c.Variants}
}

// StoreConfig returns the backing store factory settings.
func (c *Config) StoreConfig() *store.StorageConfig {
	return &store.StorageConfig{
		Backend:          c.Storage.Backend,
		VectorDimensions: c.Embeddings.Dimensions,
		Neo4j: store.Neo4jConfig{
			URI:      c.Storage.Neo4j.URI,
			User:     c.Storage.Neo4j.User,
			Password: c.Storage.Neo4j.Password,
			Database: c.Storage.Neo4j.Database,
		},
	}
}

// DataDir returns storage.data_dir, or the default when it is unset.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	return DefaultDataDir()
}
