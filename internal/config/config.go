package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "bridgarr.yaml"

// Config holds the configuration options for the application.
type Config struct {
	APIKey     string            `yaml:"apiKey,omitempty"`
	Listen     string            `yaml:"listen,omitempty"`
	DataDir    string            `yaml:"dataDir,omitempty"`
	OutputDir  string            `yaml:"outputDir,omitempty"`
	Debug      bool              `yaml:"debug,omitempty"`
	Provider   *ProviderConfig   `yaml:"provider,omitempty"`
	Engine     *EngineConfig     `yaml:"engine,omitempty"`
	Search     *SearchConfig     `yaml:"search,omitempty"`
	Verify     *VerifyConfig     `yaml:"verify,omitempty"`
	Reconciler *ReconcilerConfig `yaml:"reconciler,omitempty"`
}

// ProviderConfig holds connection options for the content provider.
type ProviderConfig struct {
	BaseURL     string        `yaml:"baseUrl,omitempty"`
	CookieName  string        `yaml:"cookieName,omitempty"`
	CookieValue string        `yaml:"cookieValue,omitempty"`
	MetadataKey string        `yaml:"metadataKey,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// EngineConfig holds connection options for the remote download engine.
type EngineConfig struct {
	Email      string        `yaml:"email,omitempty"`
	Password   string        `yaml:"password,omitempty"`
	DeviceName string        `yaml:"deviceName,omitempty"`
	BaseURL    string        `yaml:"baseUrl,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries int           `yaml:"maxRetries,omitempty"`
	RetryDelay time.Duration `yaml:"retryDelay,omitempty"`
}

// SearchConfig bounds provider searches.
type SearchConfig struct {
	MaxTitles        int `yaml:"maxTitles,omitempty"`
	MaxLinksPerTitle int `yaml:"maxLinksPerTitle,omitempty"`
}

// VerifyConfig controls link liveness verification.
type VerifyConfig struct {
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxParallel int           `yaml:"maxParallel,omitempty"`
	Freshness   time.Duration `yaml:"freshness,omitempty"`
}

// ReconcilerConfig controls the background state poller.
type ReconcilerConfig struct {
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	configFilePath := filepath.Join(xdg.ConfigHome, configFileName)
	defaults := DefaultConfig()

	b, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	providerCfg := zeroOr(cfg.Provider, defaults.Provider)
	engineCfg := zeroOr(cfg.Engine, defaults.Engine)
	searchCfg := zeroOr(cfg.Search, defaults.Search)
	verifyCfg := zeroOr(cfg.Verify, defaults.Verify)
	reconcilerCfg := zeroOr(cfg.Reconciler, defaults.Reconciler)

	return &Config{
		APIKey:    zeroOr(cfg.APIKey, defaults.APIKey),
		Listen:    zeroOr(cfg.Listen, defaults.Listen),
		DataDir:   zeroOr(cfg.DataDir, defaults.DataDir),
		OutputDir: zeroOr(cfg.OutputDir, defaults.OutputDir),
		Debug:     cfg.Debug,
		Provider: &ProviderConfig{
			BaseURL:     zeroOr(providerCfg.BaseURL, defaults.Provider.BaseURL),
			CookieName:  zeroOr(providerCfg.CookieName, defaults.Provider.CookieName),
			CookieValue: zeroOr(providerCfg.CookieValue, defaults.Provider.CookieValue),
			MetadataKey: zeroOr(providerCfg.MetadataKey, defaults.Provider.MetadataKey),
			Timeout:     zeroOr(providerCfg.Timeout, defaults.Provider.Timeout),
		},
		Engine: &EngineConfig{
			Email:      zeroOr(engineCfg.Email, defaults.Engine.Email),
			Password:   zeroOr(engineCfg.Password, defaults.Engine.Password),
			DeviceName: zeroOr(engineCfg.DeviceName, defaults.Engine.DeviceName),
			BaseURL:    zeroOr(engineCfg.BaseURL, defaults.Engine.BaseURL),
			Timeout:    zeroOr(engineCfg.Timeout, defaults.Engine.Timeout),
			MaxRetries: zeroOr(engineCfg.MaxRetries, defaults.Engine.MaxRetries),
			RetryDelay: zeroOr(engineCfg.RetryDelay, defaults.Engine.RetryDelay),
		},
		Search: &SearchConfig{
			MaxTitles:        zeroOr(searchCfg.MaxTitles, defaults.Search.MaxTitles),
			MaxLinksPerTitle: zeroOr(searchCfg.MaxLinksPerTitle, defaults.Search.MaxLinksPerTitle),
		},
		Verify: &VerifyConfig{
			Timeout:     zeroOr(verifyCfg.Timeout, defaults.Verify.Timeout),
			MaxParallel: zeroOr(verifyCfg.MaxParallel, defaults.Verify.MaxParallel),
			Freshness:   zeroOr(verifyCfg.Freshness, defaults.Verify.Freshness),
		},
		Reconciler: &ReconcilerConfig{
			PollInterval: zeroOr(reconcilerCfg.PollInterval, defaults.Reconciler.PollInterval),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		APIKey:    defaultAPIKey,
		Listen:    defaultListen,
		DataDir:   dataDir,
		OutputDir: outputDir,
		Provider: &ProviderConfig{
			BaseURL: defaultProviderURL,
			Timeout: providerTimeout,
		},
		Engine: &EngineConfig{
			DeviceName: defaultDeviceName,
			BaseURL:    defaultEngineURL,
			Timeout:    engineTimeout,
			MaxRetries: engineMaxRetries,
			RetryDelay: engineRetryDelay,
		},
		Search: &SearchConfig{
			MaxTitles:        searchMaxTitles,
			MaxLinksPerTitle: searchMaxLinks,
		},
		Verify: &VerifyConfig{
			Timeout:     verifyTimeout,
			MaxParallel: verifyMaxParallel,
			Freshness:   verifyFreshness,
		},
		Reconciler: &ReconcilerConfig{
			PollInterval: pollInterval,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
