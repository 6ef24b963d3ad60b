package persona

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kalambet/persona/internal/fetch"
	"github.com/kalambet/persona/internal/llm"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hello world", "hello world"},
		{"  lots   of\n\tspace  ", "lots of space"},
		{"emoji 🚀 here", "emoji here"},
		{"<script>alert(1)</script>", "scriptalert(1)/script"},
		{"price: $5 + 10% = ok_then", "price: $5 + 10% = ok_then"},
		{`quote "me" @you #tag & co!`, `quote "me" @you #tag & co!`},
		{"café über", "café über"},
		{"🔥🔥", ""},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildCorpus_Truncation(t *testing.T) {
	posts := make([]string, 200)
	for i := range posts {
		posts[i] = strings.Repeat(string(rune('a'+i%26)), 100)
	}

	corpus := BuildCorpus(posts, 5000)
	if n := utf8.RuneCountInString(corpus); n > 5000 {
		t.Fatalf("corpus length = %d, exceeds budget", n)
	}
	full := strings.Join(posts, "\n")
	if !strings.HasPrefix(full, corpus) {
		t.Error("corpus must keep the earliest posts")
	}
	// 100 chars plus a newline per post: the budget holds ~49.5 posts.
	if got := strings.Count(corpus, "\n"); got != 49 {
		t.Errorf("newlines = %d, want 49", got)
	}
}

func TestBuildCorpus_DropsEmpty(t *testing.T) {
	got := BuildCorpus([]string{"first", "🔥", "   ", "second"}, 0)
	if got != "first\nsecond" {
		t.Errorf("corpus = %q", got)
	}
}

func TestBuildCorpus_RuneSafe(t *testing.T) {
	got := BuildCorpus([]string{"ééééé"}, 3)
	if got != "ééé" {
		t.Errorf("corpus = %q, want 3 runes", got)
	}
}

func TestBuildMessages(t *testing.T) {
	pc := Context{
		Profile: Profile{Name: "Alice", Handle: "alice", Bio: "builds things", Location: "Berlin", Followers: 10, Following: 3},
		Corpus:  "post one\npost two",
	}
	msgs := BuildMessages(pc, "how's the weather")
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "how's the weather" {
		t.Errorf("user message changed: %q", msgs[1].Content)
	}
	sys := msgs[0].Content
	for _, want := range []string{"# IDENTITY", "Alice", "@alice", "# PROFILE", "Berlin", "Followers: 10", "# POSTS", "post two", "# STYLE", "non-committal"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Index(sys, "# IDENTITY") > strings.Index(sys, "# STYLE") {
		t.Error("sections out of order")
	}
}

func TestBuildMessages_NameFallsBackToHandle(t *testing.T) {
	msgs := BuildMessages(Context{Profile: Profile{Handle: "bob"}, Corpus: "x"}, "hi")
	if !strings.Contains(msgs[0].Content, "- Name: bob") {
		t.Errorf("prompt = %s", msgs[0].Content)
	}
	if strings.Contains(msgs[0].Content, "Location:") {
		t.Error("empty attributes must be omitted")
	}
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
	last  llm.ChatRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.ChatRequest) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func TestSynthesize_EmptyCorpus(t *testing.T) {
	fc := &fakeCompleter{reply: "x"}
	s := New(fc, DefaultOptions())

	for _, posts := range [][]string{nil, {"🔥", "  "}} {
		_, err := s.Synthesize(context.Background(), posts, Profile{Handle: "a"}, "hi")
		if !errors.Is(err, ErrEmptyCorpus) {
			t.Errorf("err = %v, want ErrEmptyCorpus", err)
		}
	}
	if fc.calls != 0 {
		t.Errorf("completer called %d times, want 0", fc.calls)
	}
}

func TestSynthesize_Verbatim(t *testing.T) {
	fc := &fakeCompleter{reply: "  sunny, obviously  "}
	s := New(fc, DefaultOptions())

	got, err := s.Synthesize(context.Background(), []string{"a post"}, Profile{Handle: "alice"}, "weather?")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != fc.reply {
		t.Errorf("reply = %q, want verbatim %q", got, fc.reply)
	}
	if fc.last.MaxTokens != 150 || fc.last.TopK != 40 || fc.last.Temperature != 0.8 || fc.last.TopP != 0.9 {
		t.Errorf("sampling = %+v", fc.last)
	}
}

func TestSynthesize_UpstreamError(t *testing.T) {
	cause := &fetch.StatusError{Provider: "llm", StatusCode: 503}
	s := New(&fakeCompleter{err: cause}, DefaultOptions())

	_, err := s.Synthesize(context.Background(), []string{"a post"}, Profile{}, "hi")
	if !errors.Is(err, ErrUpstreamGeneration) {
		t.Fatalf("err = %v, want ErrUpstreamGeneration", err)
	}
	var se *fetch.StatusError
	if !errors.As(err, &se) {
		t.Error("cause must stay reachable")
	}
}

func TestSynthesize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(&fakeCompleter{err: context.Canceled}, DefaultOptions())

	_, err := s.Synthesize(ctx, []string{"a post"}, Profile{}, "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrUpstreamGeneration) {
		t.Error("cancellation is not a generation failure")
	}
}
