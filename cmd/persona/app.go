package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/persona/internal/config"
	"github.com/kalambet/persona/internal/fetch"
	"github.com/kalambet/persona/internal/gateway"
	"github.com/kalambet/persona/internal/keypool"
	"github.com/kalambet/persona/internal/llm"
	"github.com/kalambet/persona/internal/persona"
	"github.com/kalambet/persona/internal/rapidapi"
)

// app is the wired service graph shared by serve and mcp.
type app struct {
	gateway *gateway.Service
	pools   []*keypool.Pool
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func newPool(provider string, keys []string, cfg config.PoolConfig) (*keypool.Pool, error) {
	creds := make([]keypool.Credential, len(keys))
	for i, k := range keys {
		creds[i] = keypool.Credential{Name: fmt.Sprintf("%s-%d", provider, i+1), Secret: k}
	}
	return keypool.New(provider, creds, keypool.Policy{
		ErrorThreshold: cfg.ErrorThreshold,
		Cooldown:       cfg.Cooldown,
	})
}

func buildApp(cfg config.Config) (*app, error) {
	rapidPool, err := newPool("rapidapi", cfg.RapidAPI.Keys, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("building rapidapi pool: %w", err)
	}
	llmPool, err := newPool("llm", cfg.LLM.Keys, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("building llm pool: %w", err)
	}

	source := rapidapi.New(
		fetch.New(rapidPool, rapidapi.Attacher(), fetch.WithMaxAttempts(cfg.Pool.MaxAttempts)),
		rapidapi.Config{
			BaseURL:      cfg.RapidAPI.BaseURL,
			Host:         cfg.RapidAPI.Host,
			ProfilePath:  cfg.RapidAPI.ProfilePath,
			TimelinePath: cfg.RapidAPI.TimelinePath,
		},
	)
	completer := llm.NewClient(
		fetch.New(llmPool, llm.Attacher(), fetch.WithMaxAttempts(cfg.Pool.MaxAttempts)),
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
	)
	synth := persona.New(completer, persona.Options{
		CharBudget:  cfg.Persona.CharBudget,
		MaxTokens:   cfg.Persona.MaxTokens,
		Temperature: cfg.Persona.Temperature,
		TopK:        cfg.Persona.TopK,
		TopP:        cfg.Persona.TopP,
	})

	slog.Info("credential pools ready",
		"rapidapi", rapidPool.Size(),
		"llm", llmPool.Size(),
		"model", completer.Model(),
	)

	return &app{
		gateway: gateway.NewService(source, synth),
		pools:   []*keypool.Pool{rapidPool, llmPool},
	}, nil
}
