package keypool

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Outcome is the observed result of one call made with a leased credential.
type Outcome int

const (
	// Success is a 2xx answer.
	Success Outcome = iota
	// RateLimited is a 429 answer.
	RateLimited
	// ServerError is any other non-2xx answer.
	ServerError
	// TransportError is a network-level failure.
	TransportError
	// Neutral leaves the counters untouched: the call was cancelled by the
	// caller or the upstream gave a definitive answer unrelated to the key.
	Neutral
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case TransportError:
		return "transport_error"
	case Neutral:
		return "neutral"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Credential is one named API secret scoped to a single provider.
type Credential struct {
	Name   string
	Secret string
}

// Policy holds the eligibility knobs shared by every credential of a pool.
type Policy struct {
	// ErrorThreshold is the number of consecutive failures that puts a
	// credential into cooldown. Values below 1 are treated as 1.
	ErrorThreshold int
	// Cooldown is how long a credential stays ineligible once the threshold
	// is reached.
	Cooldown time.Duration
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option customizes a Pool.
type Option func(*Pool)

// WithClock replaces the wall clock (for testing).
func WithClock(c Clock) Option {
	return func(p *Pool) { p.clock = c }
}

type state struct {
	cred          Credential
	usageCount    int
	errorCount    int
	lastUsedAt    time.Time
	cooldownUntil time.Time
}

// Pool is the ordered set of credentials for one provider plus the
// round-robin cursor. All state transitions happen under mu.
type Pool struct {
	provider string
	policy   Policy
	clock    Clock

	mu     sync.Mutex
	creds  []*state
	cursor int
}

// Lease is the handle returned by Acquire. It must be passed back to Release.
// The zero Lease is not valid and Release ignores it.
type Lease struct {
	Credential
	slot int // index+1
}

var errEmptyPool = errors.New("credential pool must not be empty")

// New builds a pool for provider. Credential order is preserved and is the
// rotation order.
func New(provider string, creds []Credential, policy Policy, opts ...Option) (*Pool, error) {
	if len(creds) == 0 {
		return nil, fmt.Errorf("%s: %w", provider, errEmptyPool)
	}
	if policy.ErrorThreshold < 1 {
		policy.ErrorThreshold = 1
	}
	p := &Pool{
		provider: provider,
		policy:   policy,
		clock:    realClock{},
		creds:    make([]*state, len(creds)),
	}
	for i, c := range creds {
		if c.Name == "" {
			c.Name = fmt.Sprintf("%s-%d", provider, i+1)
		}
		p.creds[i] = &state{cred: c}
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Provider returns the provider name the pool serves.
func (p *Pool) Provider() string { return p.provider }

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int { return len(p.creds) }

// Acquire selects the next eligible credential in round-robin order starting
// at the cursor. It scans at most Size() candidates. A credential whose
// cooldown has elapsed is reset and becomes eligible again. The second return
// value is false when every credential is cooling down.
func (p *Pool) Acquire() (Lease, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	n := len(p.creds)
	for i := range n {
		idx := (p.cursor + i) % n
		s := p.creds[idx]

		if !s.cooldownUntil.IsZero() {
			if now.Before(s.cooldownUntil) {
				continue
			}
			s.cooldownUntil = time.Time{}
			s.errorCount = 0
			s.usageCount = 0
		}
		if s.errorCount >= p.policy.ErrorThreshold {
			continue
		}

		s.lastUsedAt = now
		p.cursor = (idx + 1) % n
		return Lease{Credential: s.cred, slot: idx + 1}, true
	}
	return Lease{}, false
}

// Release feeds the outcome of a call back into the leased credential.
func (p *Pool) Release(l Lease, o Outcome) {
	if l.slot < 1 || l.slot > len(p.creds) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.creds[l.slot-1]
	now := p.clock.Now()
	s.lastUsedAt = now

	switch o {
	case Success:
		s.usageCount++
		s.errorCount = 0
	case RateLimited, ServerError, TransportError:
		s.errorCount++
		if s.errorCount >= p.policy.ErrorThreshold && s.cooldownUntil.IsZero() {
			s.cooldownUntil = now.Add(p.policy.Cooldown)
		}
	}
}

// CredentialStatus is a read-only view of one credential.
type CredentialStatus struct {
	Name          string    `json:"name"`
	Secret        string    `json:"secret"`
	UsageCount    int       `json:"usage_count"`
	ErrorCount    int       `json:"error_count"`
	LastUsedAt    time.Time `json:"last_used_at,omitzero"`
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
	Eligible      bool      `json:"eligible"`
}

// Snapshot returns the current state of every credential with secrets masked.
func (p *Pool) Snapshot() []CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	out := make([]CredentialStatus, len(p.creds))
	for i, s := range p.creds {
		cooling := !s.cooldownUntil.IsZero() && now.Before(s.cooldownUntil)
		out[i] = CredentialStatus{
			Name:          s.cred.Name,
			Secret:        Mask(s.cred.Secret),
			UsageCount:    s.usageCount,
			ErrorCount:    s.errorCount,
			LastUsedAt:    s.lastUsedAt,
			CooldownUntil: s.cooldownUntil,
			Eligible:      !cooling && (s.errorCount < p.policy.ErrorThreshold || !s.cooldownUntil.IsZero()),
		}
	}
	return out
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	const visible = 4
	if len(secret) <= visible {
		return "****"
	}
	return "****" + secret[len(secret)-visible:]
}
