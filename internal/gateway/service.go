package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/persona/internal/fetch"
	"github.com/kalambet/persona/internal/persona"
	"github.com/kalambet/persona/internal/rapidapi"
	"github.com/kalambet/persona/internal/timeline"
)

// ErrInvalidRequest is returned when a required input is missing.
var ErrInvalidRequest = errors.New("invalid request")

// Source reads account data from the profile/timeline provider.
type Source interface {
	GetProfile(ctx context.Context, handle string) (rapidapi.Profile, error)
	GetTimeline(ctx context.Context, handle string) ([]byte, error)
}

// Synthesizer produces a persona reply.
type Synthesizer interface {
	Synthesize(ctx context.Context, posts []string, p persona.Profile, message string) (string, error)
}

// Service sequences the upstream fetches, extraction and synthesis for one
// inbound call.
type Service struct {
	source Source
	synth  Synthesizer
}

// NewService wires a Service over the account source and the synthesizer.
func NewService(src Source, synth Synthesizer) *Service {
	return &Service{source: src, synth: synth}
}

// Profile returns the account view for handle.
func (s *Service) Profile(ctx context.Context, handle string) (rapidapi.Profile, error) {
	handle = normalizeHandle(handle)
	if handle == "" {
		return rapidapi.Profile{}, fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	return s.source.GetProfile(ctx, handle)
}

// Chat replies to message in the voice of handle. Profile and timeline are
// fetched concurrently; the first failure cancels the other fetch.
func (s *Service) Chat(ctx context.Context, handle, message string) (string, error) {
	handle = normalizeHandle(handle)
	if handle == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	var (
		prof rapidapi.Profile
		raw  []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prof, err = s.source.GetProfile(gctx, handle)
		return err
	})
	g.Go(func() error {
		var err error
		raw, err = s.source.GetTimeline(gctx, handle)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	posts := timeline.Extract(raw)
	slog.Debug("timeline extracted", "handle", handle, "posts", len(posts))

	return s.synth.Synthesize(ctx, posts, personaProfile(prof), message)
}

func personaProfile(p rapidapi.Profile) persona.Profile {
	return persona.Profile{
		Name:      p.Name,
		Handle:    p.Username,
		Bio:       p.Description,
		Location:  p.Location,
		CreatedAt: p.CreatedAt,
		Followers: p.FollowersCount,
		Following: p.FollowingCount,
	}
}

func normalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

// StatusFor maps an error to the HTTP status and message returned to the
// caller.
func StatusFor(err error) (int, string) {
	var se *fetch.StatusError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, fetch.ErrAllCredentialsExhausted):
		return http.StatusTooManyRequests, "all API keys are rate limited, try again later"
	case errors.Is(err, persona.ErrUpstreamGeneration):
		return http.StatusInternalServerError, "failed to generate a reply"
	case errors.Is(err, fetch.ErrUpstreamNotFound):
		return http.StatusNotFound, "user not found or inactive"
	case errors.Is(err, persona.ErrEmptyCorpus):
		return http.StatusNotFound, "no posts found for this user"
	case errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests:
		return http.StatusTooManyRequests, "upstream rate limited, try again later"
	default:
		return http.StatusInternalServerError, "error fetching upstream data"
	}
}
