package rapidapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/persona/internal/fetch"
	"github.com/kalambet/persona/internal/keypool"
)

const aliceJSON = `{
	"status":"active","name":"Alice","profile":"alice",
	"avatar":"https://pbs.twimg.com/profile_images/1/a_normal.jpg",
	"desc":"builds things","sub_count":120,"friends":45,"statuses_count":999,
	"header_image":"https://pbs.twimg.com/banner/1","blue_verified":true,
	"website":"https://alice.dev","location":"Berlin",
	"created_at":"Mon Jan 01 00:00:00 +0000 2018","id":"12345"
}`

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	pool, err := keypool.New("rapidapi", []keypool.Credential{{Secret: "rk1"}, {Secret: "rk2"}},
		keypool.Policy{ErrorThreshold: 1, Cooldown: time.Minute})
	if err != nil {
		t.Fatalf("keypool.New: %v", err)
	}
	return New(fetch.New(pool, Attacher()), Config{BaseURL: srv.URL, Host: "api.test"})
}

func TestGetProfile(t *testing.T) {
	var gotKey, gotHost, gotPath, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-rapidapi-key")
		gotHost = r.Header.Get("x-rapidapi-host")
		gotPath = r.URL.Path
		gotName = r.URL.Query().Get("screenname")
		fmt.Fprint(w, aliceJSON)
	}))
	defer srv.Close()

	p, err := testClient(t, srv).GetProfile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}

	if gotKey != "rk1" || gotHost != "api.test" {
		t.Errorf("headers: key=%q host=%q", gotKey, gotHost)
	}
	if gotPath != DefaultProfilePath || gotName != "alice" {
		t.Errorf("request: path=%q screenname=%q", gotPath, gotName)
	}

	want := Profile{
		Name:             "Alice",
		Username:         "alice",
		ProfileImageURL:  "https://pbs.twimg.com/profile_images/1/a_200x200.jpg",
		Description:      "builds things",
		FollowersCount:   120,
		FollowingCount:   45,
		TweetCount:       999,
		ProfileBannerURL: "https://pbs.twimg.com/banner/1",
		Verified:         true,
		URL:              "https://alice.dev",
		Location:         "Berlin",
		CreatedAt:        "Mon Jan 01 00:00:00 +0000 2018",
		UserID:           "12345",
	}
	if p != want {
		t.Errorf("profile = %+v\nwant %+v", p, want)
	}
}

func TestGetProfile_NumericID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"active","profile":"bob","id":678}`)
	}))
	defer srv.Close()

	p, err := testClient(t, srv).GetProfile(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.UserID != "678" {
		t.Errorf("UserID = %q", p.UserID)
	}
}

func TestGetProfile_Inactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"notfound"}`)
	}))
	defer srv.Close()

	_, err := testClient(t, srv).GetProfile(context.Background(), "doesnotexist")
	if !errors.Is(err, fetch.ErrUpstreamNotFound) {
		t.Fatalf("err = %v, want ErrUpstreamNotFound", err)
	}
}

func TestGetTimeline(t *testing.T) {
	doc := `{"timeline":{"instructions":[]}}`
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, doc)
	}))
	defer srv.Close()

	raw, err := testClient(t, srv).GetTimeline(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if string(raw) != doc {
		t.Errorf("raw = %s", raw)
	}
	if gotPath != DefaultTimelinePath {
		t.Errorf("path = %q", gotPath)
	}
}

func TestGetTimeline_NotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>`)
	}))
	defer srv.Close()

	if _, err := testClient(t, srv).GetTimeline(context.Background(), "alice"); err == nil {
		t.Fatal("expected error")
	}
}
