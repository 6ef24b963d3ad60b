package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/persona/internal/gateway"
	"github.com/kalambet/persona/internal/keypool"
	"github.com/kalambet/persona/internal/rapidapi"
	"github.com/kalambet/persona/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Gateway is the persona service behind the HTTP and MCP surfaces.
type Gateway interface {
	Chat(ctx context.Context, handle, message string) (string, error)
	Profile(ctx context.Context, handle string) (rapidapi.Profile, error)
}

// ProfileStore persists saved profiles.
type ProfileStore interface {
	SaveProfile(p rapidapi.Profile) (storage.SavedProfile, error)
	GetProfile(username string) (storage.SavedProfile, error)
	ListProfiles(query string, limit int) ([]storage.SavedProfile, error)
	DeleteProfile(username string) error
}

type Deps struct {
	Gateway Gateway
	Store   ProfileStore
	Pools   []*keypool.Pool
	// Token guards the management routes when non-empty.
	Token string
	// RequestTimeout bounds one inbound call including every upstream
	// attempt. Zero means no extra bound.
	RequestTimeout time.Duration
}

// ChatRequest is the inbound chat body.
type ChatRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// ChatResponse is the successful chat reply.
type ChatResponse struct {
	Message string `json:"message"`
}

// NewHandler returns the HTTP API. Public routes are /health, /api/twitter,
// /api/chat and /api/grok; saved profiles and pool status sit behind
// BearerAuth.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.RequestTimeout > 0 {
			r.Use(timeoutContext(deps.RequestTimeout))
		}
		r.Get("/api/twitter", handleProfile(deps))
		r.Post("/api/chat", handleChat(deps))
		r.Post("/api/grok", handleChat(deps))
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/api/pools", handlePools(deps))
		if deps.Store != nil {
			r.Post("/api/profiles", handleSaveProfile(deps))
			r.Get("/api/profiles", handleListProfiles(deps))
			r.Get("/api/profiles/{username}", handleGetSavedProfile(deps))
			r.Delete("/api/profiles/{username}", handleDeleteSavedProfile(deps))
		}
	})

	return r
}

func timeoutContext(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Gateway.Profile(r.Context(), r.URL.Query().Get("username"))
		if err != nil {
			upstreamError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		reply, err := deps.Gateway.Chat(r.Context(), req.Username, req.Message)
		if err != nil {
			upstreamError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ChatResponse{Message: reply})
	}
}

// PoolStatus is the public view of one credential pool.
type PoolStatus struct {
	Provider    string                     `json:"provider"`
	Size        int                        `json:"size"`
	Eligible    int                        `json:"eligible"`
	Credentials []keypool.CredentialStatus `json:"credentials"`
}

// PoolsStatus snapshots every pool.
func PoolsStatus(pools []*keypool.Pool) []PoolStatus {
	out := make([]PoolStatus, 0, len(pools))
	for _, p := range pools {
		snap := p.Snapshot()
		eligible := 0
		for _, c := range snap {
			if c.Eligible {
				eligible++
			}
		}
		out = append(out, PoolStatus{
			Provider:    p.Provider(),
			Size:        p.Size(),
			Eligible:    eligible,
			Credentials: snap,
		})
	}
	return out
}

func handlePools(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, PoolsStatus(deps.Pools))
	}
}

// --- Saved profiles ---

type saveProfileRequest struct {
	Username string `json:"username"`
}

func handleSaveProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req saveProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		p, err := deps.Gateway.Profile(r.Context(), req.Username)
		if err != nil {
			upstreamError(w, r, err)
			return
		}
		saved, err := deps.Store.SaveProfile(p)
		if err != nil {
			slog.Error("saving profile", "username", p.Username, "error", err)
			httpError(w, http.StatusInternalServerError, "failed to save profile")
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func handleListProfiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, 200)
		}

		profiles, err := deps.Store.ListProfiles(r.URL.Query().Get("q"), limit)
		if err != nil {
			slog.Error("listing profiles", "error", err)
			httpError(w, http.StatusInternalServerError, "failed to list profiles")
			return
		}
		if profiles == nil {
			profiles = []storage.SavedProfile{}
		}
		writeJSON(w, http.StatusOK, profiles)
	}
}

func handleGetSavedProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sp, err := deps.Store.GetProfile(usernameParam(r))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "profile not saved")
			return
		}
		if err != nil {
			slog.Error("reading saved profile", "error", err)
			httpError(w, http.StatusInternalServerError, "failed to read profile")
			return
		}
		writeJSON(w, http.StatusOK, sp)
	}
}

func handleDeleteSavedProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteProfile(usernameParam(r))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "profile not saved")
			return
		}
		if err != nil {
			slog.Error("deleting saved profile", "error", err)
			httpError(w, http.StatusInternalServerError, "failed to delete profile")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- helpers ---

func usernameParam(r *http.Request) string {
	return strings.TrimPrefix(strings.TrimSpace(chi.URLParam(r, "username")), "@")
}

// upstreamError logs err and writes the status its kind maps to.
func upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := gateway.StatusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request failed", "path", r.URL.Path, "status", status, "error", err)
	httpError(w, status, "%s", msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}
