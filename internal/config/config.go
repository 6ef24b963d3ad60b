package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	RapidAPI RapidAPIConfig
	LLM      LLMConfig
	Pool     PoolConfig
	Persona  PersonaConfig
}

type ServerConfig struct {
	Port int
	// APIToken, when set, guards the management routes with a bearer token.
	APIToken string
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type RapidAPIConfig struct {
	BaseURL      string
	Host         string
	ProfilePath  string
	TimelinePath string
	Keys         []string
}

type LLMConfig struct {
	BaseURL string
	Model   string
	Keys    []string
}

// PoolConfig is shared by every credential pool.
type PoolConfig struct {
	ErrorThreshold int
	Cooldown       time.Duration
	MaxAttempts    int
}

type PersonaConfig struct {
	CharBudget  int
	MaxTokens   int
	Temperature float64
	TopK        int
	TopP        float64
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		RapidAPI: RapidAPIConfig{
			BaseURL:      "https://twitter-api45.p.rapidapi.com",
			Host:         "twitter-api45.p.rapidapi.com",
			ProfilePath:  "/screenname.php",
			TimelinePath: "/timeline.php",
		},
		LLM: LLMConfig{
			BaseURL: "https://api.x.ai/v1",
			Model:   "grok-2-latest",
		},
		Pool: PoolConfig{
			ErrorThreshold: 1,
			Cooldown:       15 * time.Minute,
			MaxAttempts:    6,
		},
		Persona: PersonaConfig{
			CharBudget:  5000,
			MaxTokens:   150,
			Temperature: 0.8,
			TopK:        40,
			TopP:        0.9,
		},
	}
}

// Load reads configuration from the JSON settings file at
// $XDG_CONFIG_HOME/persona/config.json, then environment variables
// (PERSONA_*), then the secrets file for credentials still unset.
//
// Credentials are never read from the settings file. Both providers need at
// least one key.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), fileSecrets{path: secretsFilePath()})
}

// LoadUnchecked is Load without the credential requirement, for commands
// that only inspect settings.
func LoadUnchecked() (Config, error) {
	return resolve(newPlatformBackend(), fileSecrets{path: secretsFilePath()})
}

func loadWith(b ConfigBackend, ss secretStore) (Config, error) {
	cfg, err := resolve(b, ss)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolve(b ConfigBackend, ss secretStore) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	applyLegacyEnv(&cfg)
	applySecrets(&cfg, ss)
	return cfg, nil
}

func (cfg Config) validate() error {
	var errs []error
	if len(cfg.RapidAPI.Keys) == 0 {
		errs = append(errs, errors.New("missing required config: RapidAPI keys. "+
			"Set PERSONA_RAPIDAPI_KEYS (comma-separated) or RAPIDAPI_KEY_1..N"))
	}
	if len(cfg.LLM.Keys) == 0 {
		errs = append(errs, errors.New("missing required config: LLM keys. "+
			"Set PERSONA_LLM_KEYS (comma-separated) or GROK_API_KEY"))
	}
	if cfg.Pool.ErrorThreshold < 1 {
		errs = append(errs, fmt.Errorf("pool.error_threshold must be >= 1, got %d", cfg.Pool.ErrorThreshold))
	}
	if cfg.Pool.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("pool.max_attempts must be >= 1, got %d", cfg.Pool.MaxAttempts))
	}
	if cfg.Pool.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("pool.cooldown must be positive, got %s", cfg.Pool.Cooldown))
	}
	return errors.Join(errs...)
}

// applyLegacyEnv reads the numbered RAPIDAPI_KEY_n variables and GROK_API_KEY
// when the PERSONA_* lists are unset. Numbering stops at the first gap.
func applyLegacyEnv(cfg *Config) {
	if len(cfg.RapidAPI.Keys) == 0 {
		for i := 1; ; i++ {
			v := strings.TrimSpace(os.Getenv("RAPIDAPI_KEY_" + strconv.Itoa(i)))
			if v == "" {
				break
			}
			cfg.RapidAPI.Keys = append(cfg.RapidAPI.Keys, v)
		}
	}
	if len(cfg.LLM.Keys) == 0 {
		if v := strings.TrimSpace(os.Getenv("GROK_API_KEY")); v != "" {
			cfg.LLM.Keys = []string{v}
		}
	}
}

// applySecrets fills secret keys that are still empty from the secrets file.
func applySecrets(cfg *Config, ss secretStore) {
	for _, s := range specs {
		if !s.secret || !isZero(s.extract(*cfg)) {
			continue
		}
		raw, err := ss.Get(s.key)
		if err != nil || raw == "" {
			continue
		}
		if v, err := parseValue(s.typ, raw); err == nil {
			s.apply(cfg, v)
		}
	}
}

func isZero(v any) bool {
	switch val := v.(type) {
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	default:
		return v == nil
	}
}
