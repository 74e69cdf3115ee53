// Package config loads SDK settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dwdwow/morpho-go/constants"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Retry    RetryConfig    `yaml:"retry"`
	Cache    CacheConfig    `yaml:"cache"`
	Subgraph SubgraphConfig `yaml:"subgraph"`
	Chains   []ChainConfig  `yaml:"chains"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
	File   string `yaml:"file"`
}

type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"` // 0 disables limiting
	RateBurst    int           `yaml:"rate_burst"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type CacheConfig struct {
	PositionsTTL time.Duration `yaml:"positions_ttl"`
	PriceTTL     time.Duration `yaml:"price_ttl"`
	PriceURL     string        `yaml:"price_url"`
	Redis        RedisConfig   `yaml:"redis"` // empty addr keeps the in-process store
}

type SubgraphConfig struct {
	APIKey string `yaml:"api_key"`
}

// ChainConfig holds the endpoints of one network. An empty SubgraphURL is
// valid: the subgraph source degrades to "no data" for that chain.
type ChainConfig struct {
	ID          int64  `yaml:"id"`
	APIURL      string `yaml:"api_url"`
	SubgraphURL string `yaml:"subgraph_url"`
	WSURL       string `yaml:"ws_url"`
}

// Load reads the YAML file at path (optional), applies .env and MORPHO_*
// environment overrides, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err = yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MORPHO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MORPHO_SUBGRAPH_API_KEY"); v != "" {
		c.Subgraph.APIKey = v
	}
	if v := os.Getenv("MORPHO_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("MORPHO_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MORPHO_HTTP_TIMEOUT: %w", err)
		}
		c.HTTP.Timeout = d
	}
	if v := os.Getenv("MORPHO_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MORPHO_MAX_RETRIES: %w", err)
		}
		c.Retry.MaxRetries = n
	}
	if v := os.Getenv("MORPHO_API_URL"); v != "" {
		for i := range c.Chains {
			c.Chains[i].APIURL = v
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = constants.DefaultTimeout * time.Second
	}
	if c.HTTP.RateLimitRPS > 0 && c.HTTP.RateBurst <= 0 {
		c.HTTP.RateBurst = 1
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = constants.DefaultMaxRetries
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = constants.DefaultRetryBackoff
	}
	if c.Cache.PositionsTTL == 0 {
		c.Cache.PositionsTTL = constants.PositionsCacheTTL
	}
	if c.Cache.PriceTTL == 0 {
		c.Cache.PriceTTL = constants.PriceCacheTTL
	}
	if c.Cache.PriceURL == "" {
		c.Cache.PriceURL = constants.PriceAPIURL
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "morpho:"
	}
	if len(c.Chains) == 0 {
		c.Chains = DefaultChains(c.Subgraph.APIKey)
	}
	for i := range c.Chains {
		ch := &c.Chains[i]
		if ch.APIURL == "" && constants.APIChains[constants.ChainID(ch.ID)] {
			ch.APIURL = constants.MorphoAPIURL
		}
		if ch.SubgraphURL == "" && c.Subgraph.APIKey != "" {
			if id, ok := constants.SubgraphIDs[constants.ChainID(ch.ID)]; ok {
				ch.SubgraphURL = fmt.Sprintf(constants.SubgraphGatewayURL, c.Subgraph.APIKey, id)
			}
		}
	}
}

// Validate ensures the configuration is internally consistent
func (c *Config) Validate() error {
	var errs []error
	if c.Retry.MaxRetries < 1 {
		errs = append(errs, errors.New("retry.max_retries must be >= 1"))
	}
	if c.HTTP.RateLimitRPS < 0 {
		errs = append(errs, errors.New("http.rate_limit_rps must be >= 0"))
	}
	seen := make(map[int64]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.ID <= 0 {
			errs = append(errs, fmt.Errorf("chain id %d is invalid", ch.ID))
		}
		if seen[ch.ID] {
			errs = append(errs, fmt.Errorf("chain %d configured twice", ch.ID))
		}
		seen[ch.ID] = true
		if ch.APIURL == "" && ch.SubgraphURL == "" {
			errs = append(errs, fmt.Errorf("chain %d has no endpoint", ch.ID))
		}
	}
	return errors.Join(errs...)
}

// Chain returns the endpoints configured for a chain
func (c *Config) Chain(id int64) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// ChainIDs returns the configured chain ids in ascending order
func (c *Config) ChainIDs() []int64 {
	ids := make([]int64, 0, len(c.Chains))
	for _, ch := range c.Chains {
		ids = append(ids, ch.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DefaultChains returns every chain known to the hosted API or the subgraph
func DefaultChains(subgraphAPIKey string) []ChainConfig {
	ids := make(map[constants.ChainID]bool)
	for id := range constants.APIChains {
		ids[id] = true
	}
	if subgraphAPIKey != "" {
		for id := range constants.SubgraphIDs {
			ids[id] = true
		}
	}

	out := make([]ChainConfig, 0, len(ids))
	for id := range ids {
		out = append(out, ChainConfig{ID: int64(id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// String renders the config with secrets masked, for logging
func (c Config) String() string {
	clone := c
	if clone.Subgraph.APIKey != "" {
		clone.Subgraph.APIKey = "****"
	}
	if clone.Cache.Redis.Password != "" {
		clone.Cache.Redis.Password = "****"
	}
	clone.Chains = make([]ChainConfig, len(c.Chains))
	for i, ch := range c.Chains {
		if c.Subgraph.APIKey != "" {
			ch.SubgraphURL = strings.ReplaceAll(ch.SubgraphURL, c.Subgraph.APIKey, "****")
		}
		clone.Chains[i] = ch
	}
	b, _ := yaml.Marshal(clone)
	return string(b)
}
