package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/persona/internal/fetch"
	"github.com/kalambet/persona/internal/keypool"
	"github.com/kalambet/persona/internal/llm"
	"github.com/kalambet/persona/internal/persona"
	"github.com/kalambet/persona/internal/rapidapi"
)

const threePostTimeline = `{"result":{"timeline":{"instructions":[{"type":"TimelineAddEntries","entries":[
	{"entryId":"tweet-1","content":{"entryType":"TimelineTimelineItem","itemContent":{"tweet_results":{"result":{"legacy":{"full_text":"coffee first"}}}}}},
	{"entryId":"tweet-2","content":{"entryType":"TimelineTimelineItem","itemContent":{"tweet_results":{"result":{"legacy":{"full_text":"shipping today"}}}}}},
	{"entryId":"tweet-3","content":{"entryType":"TimelineTimelineItem","itemContent":{"tweet_results":{"result":{"legacy":{"full_text":"rain again in Berlin"}}}}}},
	{"entryId":"cursor-bottom-1","content":{"entryType":"TimelineTimelineCursor","value":"x"}}
]}]}}}`

type harness struct {
	svc       *Service
	rapidPool *keypool.Pool
	rapidHits atomic.Int32
	llmHits   atomic.Int32
}

func newHarness(t *testing.T, users map[string]string) *harness {
	t.Helper()
	h := &harness{}

	rapid := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.rapidHits.Add(1)
		name := r.URL.Query().Get("screenname")
		switch r.URL.Path {
		case rapidapi.DefaultProfilePath:
			if _, ok := users[name]; !ok {
				fmt.Fprint(w, `{"status":"notfound"}`)
				return
			}
			fmt.Fprintf(w, `{"status":"active","name":"%s","profile":"%s","avatar":"a_normal.jpg","sub_count":5}`, name, name)
		case rapidapi.DefaultTimelinePath:
			doc, ok := users[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprint(w, doc)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(rapid.Close)

	gen := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.llmHits.Add(1)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"grey skies, as usual"}}]}`)
	}))
	t.Cleanup(gen.Close)

	policy := keypool.Policy{ErrorThreshold: 1, Cooldown: 15 * time.Minute}
	var err error
	h.rapidPool, err = keypool.New("rapidapi", []keypool.Credential{{Secret: "r1"}}, policy)
	if err != nil {
		t.Fatal(err)
	}
	llmPool, err := keypool.New("llm", []keypool.Credential{{Secret: "g1"}}, policy)
	if err != nil {
		t.Fatal(err)
	}

	src := rapidapi.New(fetch.New(h.rapidPool, rapidapi.Attacher()), rapidapi.Config{BaseURL: rapid.URL})
	synth := persona.New(llm.NewClient(fetch.New(llmPool, llm.Attacher()), gen.URL, ""), persona.DefaultOptions())
	h.svc = NewService(src, synth)
	return h
}

func TestChat_Alice(t *testing.T) {
	h := newHarness(t, map[string]string{"alice": threePostTimeline})

	reply, err := h.svc.Chat(context.Background(), "alice", "how's the weather")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply == "" {
		t.Fatal("empty reply")
	}
	if status, _ := StatusFor(err); status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	if got := h.rapidHits.Load(); got != 2 {
		t.Errorf("rapid hits = %d, want 2", got)
	}
	if got := h.llmHits.Load(); got != 1 {
		t.Errorf("llm hits = %d, want 1", got)
	}
}

func TestChat_DoesNotExist(t *testing.T) {
	h := newHarness(t, map[string]string{"alice": threePostTimeline})

	_, err := h.svc.Chat(context.Background(), "doesnotexist", "hi")
	if !errors.Is(err, fetch.ErrUpstreamNotFound) {
		t.Fatalf("err = %v, want ErrUpstreamNotFound", err)
	}
	if status, _ := StatusFor(err); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if got := h.llmHits.Load(); got != 0 {
		t.Errorf("llm hits = %d, want 0", got)
	}
}

func TestChat_ExhaustedPool(t *testing.T) {
	h := newHarness(t, map[string]string{"alice": threePostTimeline})
	l, ok := h.rapidPool.Acquire()
	if !ok {
		t.Fatal("acquire")
	}
	h.rapidPool.Release(l, keypool.RateLimited)

	_, err := h.svc.Chat(context.Background(), "alice", "hi")
	if !errors.Is(err, fetch.ErrAllCredentialsExhausted) {
		t.Fatalf("err = %v, want ErrAllCredentialsExhausted", err)
	}
	if status, _ := StatusFor(err); status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", status)
	}
	if got := h.rapidHits.Load(); got != 0 {
		t.Errorf("rapid hits = %d, want 0", got)
	}
	if got := h.llmHits.Load(); got != 0 {
		t.Errorf("llm hits = %d, want 0", got)
	}
}

func TestChat_EmptyCorpus(t *testing.T) {
	h := newHarness(t, map[string]string{"quiet": `{"timeline":{"instructions":[]}}`})

	_, err := h.svc.Chat(context.Background(), "quiet", "hi")
	if !errors.Is(err, persona.ErrEmptyCorpus) {
		t.Fatalf("err = %v, want ErrEmptyCorpus", err)
	}
	if status, _ := StatusFor(err); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if got := h.llmHits.Load(); got != 0 {
		t.Errorf("llm hits = %d, want 0", got)
	}
}

func TestChat_InvalidRequest(t *testing.T) {
	h := newHarness(t, nil)

	for _, tc := range []struct{ handle, msg string }{{"", "hi"}, {"  @ ", "hi"}, {"alice", ""}, {"alice", "   "}} {
		_, err := h.svc.Chat(context.Background(), tc.handle, tc.msg)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Chat(%q, %q) err = %v, want ErrInvalidRequest", tc.handle, tc.msg, err)
		}
		if status, _ := StatusFor(err); status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	}
	if h.rapidHits.Load() != 0 {
		t.Error("invalid requests must not reach upstream")
	}
}

func TestProfile(t *testing.T) {
	h := newHarness(t, map[string]string{"alice": threePostTimeline})

	p, err := h.svc.Profile(context.Background(), "@alice")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Username != "alice" || p.ProfileImageURL != "a_200x200.jpg" || p.FollowersCount != 5 {
		t.Errorf("profile = %+v", p)
	}

	if _, err := h.svc.Profile(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("rapidapi: %w", fetch.ErrAllCredentialsExhausted), http.StatusTooManyRequests},
		{fmt.Errorf("rapidapi: %w", fetch.ErrUpstreamNotFound), http.StatusNotFound},
		{persona.ErrEmptyCorpus, http.StatusNotFound},
		{fmt.Errorf("%w: %w", persona.ErrUpstreamGeneration, fetch.ErrUpstreamNotFound), http.StatusInternalServerError},
		{fmt.Errorf("%w: %w", persona.ErrUpstreamGeneration, fetch.ErrAllCredentialsExhausted), http.StatusTooManyRequests},
		{fmt.Errorf("rapidapi: %w: reset", fetch.ErrUpstreamTransport), http.StatusInternalServerError},
		{&fetch.StatusError{StatusCode: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{&fetch.StatusError{StatusCode: http.StatusBadGateway}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got, msg := StatusFor(tc.err); got != tc.want || msg == "" {
			t.Errorf("StatusFor(%v) = %d %q, want %d", tc.err, got, msg, tc.want)
		}
	}
}
