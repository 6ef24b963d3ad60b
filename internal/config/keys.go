package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PERSONA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "PERSONA_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "log.level", typ: kString, env: "PERSONA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PERSONA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "rapidapi.base_url", typ: kString, env: "PERSONA_RAPIDAPI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.RapidAPI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.RapidAPI.BaseURL },
	},
	{
		key: "rapidapi.host", typ: kString, env: "PERSONA_RAPIDAPI_HOST",
		apply:   func(cfg *Config, v any) { cfg.RapidAPI.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.RapidAPI.Host },
	},
	{
		key: "rapidapi.profile_path", typ: kString, env: "PERSONA_RAPIDAPI_PROFILE_PATH",
		apply:   func(cfg *Config, v any) { cfg.RapidAPI.ProfilePath = v.(string) },
		extract: func(cfg Config) any { return cfg.RapidAPI.ProfilePath },
	},
	{
		key: "rapidapi.timeline_path", typ: kString, env: "PERSONA_RAPIDAPI_TIMELINE_PATH",
		apply:   func(cfg *Config, v any) { cfg.RapidAPI.TimelinePath = v.(string) },
		extract: func(cfg Config) any { return cfg.RapidAPI.TimelinePath },
	},
	{
		key: "rapidapi.keys", typ: kList, env: "PERSONA_RAPIDAPI_KEYS",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.RapidAPI.Keys = v.([]string) },
		extract: func(cfg Config) any { return cfg.RapidAPI.Keys },
	},
	{
		key: "llm.base_url", typ: kString, env: "PERSONA_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "PERSONA_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.keys", typ: kList, env: "PERSONA_LLM_KEYS",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.Keys = v.([]string) },
		extract: func(cfg Config) any { return cfg.LLM.Keys },
	},
	{
		key: "pool.error_threshold", typ: kInt, env: "PERSONA_POOL_ERROR_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Pool.ErrorThreshold = v.(int) },
		extract: func(cfg Config) any { return cfg.Pool.ErrorThreshold },
	},
	{
		key: "pool.cooldown", typ: kDuration, env: "PERSONA_POOL_COOLDOWN",
		apply:   func(cfg *Config, v any) { cfg.Pool.Cooldown = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pool.Cooldown },
	},
	{
		key: "pool.max_attempts", typ: kInt, env: "PERSONA_POOL_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Pool.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Pool.MaxAttempts },
	},
	{
		key: "persona.char_budget", typ: kInt, env: "PERSONA_CHAR_BUDGET",
		apply:   func(cfg *Config, v any) { cfg.Persona.CharBudget = v.(int) },
		extract: func(cfg Config) any { return cfg.Persona.CharBudget },
	},
	{
		key: "persona.max_tokens", typ: kInt, env: "PERSONA_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Persona.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Persona.MaxTokens },
	},
	{
		key: "persona.temperature", typ: kFloat, env: "PERSONA_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Persona.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Persona.Temperature },
	},
	{
		key: "persona.top_k", typ: kInt, env: "PERSONA_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Persona.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Persona.TopK },
	},
	{
		key: "persona.top_p", typ: kFloat, env: "PERSONA_TOP_P",
		apply:   func(cfg *Config, v any) { cfg.Persona.TopP = v.(float64) },
		extract: func(cfg Config) any { return cfg.Persona.TopP },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts the textual form of a setting to its typed value.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	case kList:
		return splitList(raw), nil
	}
	return nil, fmt.Errorf("unknown key type %d", typ)
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
