package rapidapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kalambet/persona/internal/fetch"
)

const (
	DefaultBaseURL      = "https://twitter-api45.p.rapidapi.com"
	DefaultHost         = "twitter-api45.p.rapidapi.com"
	DefaultProfilePath  = "/screenname.php"
	DefaultTimelinePath = "/timeline.php"
)

// Attacher places the credential in the provider's key header.
func Attacher() fetch.Attacher {
	return fetch.HeaderAttacher("x-rapidapi-key", "")
}

// Config locates the provider endpoints. Empty fields use the defaults.
type Config struct {
	BaseURL      string
	Host         string
	ProfilePath  string
	TimelinePath string
}

// Profile is the public account view returned to callers.
type Profile struct {
	Name             string `json:"name"`
	Username         string `json:"username"`
	ProfileImageURL  string `json:"profile_image_url"`
	Description      string `json:"description"`
	FollowersCount   int    `json:"followers_count"`
	FollowingCount   int    `json:"following_count"`
	TweetCount       int    `json:"tweet_count"`
	ProfileBannerURL string `json:"profile_banner_url"`
	Verified         bool   `json:"verified"`
	URL              string `json:"url"`
	Location         string `json:"location"`
	CreatedAt        string `json:"created_at"`
	UserID           string `json:"user_id"`
}

// rawProfile is the provider's screenname payload.
type rawProfile struct {
	Status        string          `json:"status"`
	Name          string          `json:"name"`
	Profile       string          `json:"profile"`
	Avatar        string          `json:"avatar"`
	Desc          string          `json:"desc"`
	SubCount      int             `json:"sub_count"`
	Friends       int             `json:"friends"`
	StatusesCount int             `json:"statuses_count"`
	HeaderImage   string          `json:"header_image"`
	BlueVerified  bool            `json:"blue_verified"`
	Website       string          `json:"website"`
	Location      string          `json:"location"`
	CreatedAt     string          `json:"created_at"`
	ID            json.RawMessage `json:"id"`
}

func (r rawProfile) toProfile() Profile {
	return Profile{
		Name:             r.Name,
		Username:         r.Profile,
		ProfileImageURL:  strings.Replace(r.Avatar, "_normal", "_200x200", 1),
		Description:      r.Desc,
		FollowersCount:   r.SubCount,
		FollowingCount:   r.Friends,
		TweetCount:       r.StatusesCount,
		ProfileBannerURL: r.HeaderImage,
		Verified:         r.BlueVerified,
		URL:              r.Website,
		Location:         r.Location,
		CreatedAt:        r.CreatedAt,
		UserID:           idString(r.ID),
	}
}

// idString accepts the user id as a JSON string or number.
func idString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// Client reads profiles and timelines from the provider through a rotating
// fetcher.
type Client struct {
	fetcher *fetch.Fetcher
	cfg     Config
}

func New(f *fetch.Fetcher, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.ProfilePath == "" {
		cfg.ProfilePath = DefaultProfilePath
	}
	if cfg.TimelinePath == "" {
		cfg.TimelinePath = DefaultTimelinePath
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{fetcher: f, cfg: cfg}
}

// GetProfile fetches the account for handle. An inactive or missing account
// is reported as fetch.ErrUpstreamNotFound.
func (c *Client) GetProfile(ctx context.Context, handle string) (Profile, error) {
	body, err := c.get(ctx, c.cfg.ProfilePath, handle)
	if err != nil {
		return Profile{}, err
	}

	var raw rawProfile
	if err := json.Unmarshal(body, &raw); err != nil {
		return Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	if raw.Status != "active" {
		return Profile{}, fmt.Errorf("profile %q: %w", handle, fetch.ErrUpstreamNotFound)
	}
	return raw.toProfile(), nil
}

// GetTimeline returns the raw timeline document for handle.
func (c *Client) GetTimeline(ctx context.Context, handle string) ([]byte, error) {
	body, err := c.get(ctx, c.cfg.TimelinePath, handle)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("timeline response is not JSON")
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, path, handle string) ([]byte, error) {
	u := c.cfg.BaseURL + path + "?" + url.Values{"screenname": {handle}}.Encode()
	h := http.Header{}
	h.Set("x-rapidapi-host", c.cfg.Host)

	resp, err := c.fetcher.Fetch(ctx, fetch.Request{Method: http.MethodGet, URL: u, Header: h})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
