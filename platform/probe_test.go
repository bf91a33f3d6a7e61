package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/stream-scribe/config"
	"github.com/onnwee/stream-scribe/testutil"
)

type fakeRunner struct {
	err   error
	calls [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return f.err
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, f.Run(ctx, name, args...)
}

func (f *fakeRunner) Look(string) bool { return true }

func TestHelixProberLive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("user_login"); got != "livechannel" {
			t.Fatalf("user_login=%q want livechannel", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{
				"title":      "Live Now",
				"started_at": "2026-08-25T14:30:00Z",
			}},
		})
	}))
	defer server.Close()

	ts := &TokenSource{ClientID: "id", ClientSecret: "secret"}
	ts.SetToken("test-token", time.Now().Add(time.Hour))
	p := &HelixProber{Client: &HelixClient{AppTokenSource: ts, ClientID: "id", BaseURL: server.URL}}

	h, live, err := p.Probe(context.Background(), config.StreamerConfig{Name: "livechannel", Platform: config.PlatformTwitch})
	if err != nil {
		t.Fatal(err)
	}
	if !live {
		t.Fatal("expected live")
	}
	if h.Title != "Live Now" || h.URL != "https://twitch.tv/livechannel" {
		t.Fatalf("unexpected handle: %+v", h)
	}
}

func TestHelixProberOffline(t *testing.T) {
	server := testutil.NewMockTwitchServer(t)
	server.MockStreamsResponse([]map[string]interface{}{})

	ts := &TokenSource{ClientID: "id", ClientSecret: "secret"}
	ts.SetToken("test-token", time.Now().Add(time.Hour))
	p := &HelixProber{Client: &HelixClient{AppTokenSource: ts, ClientID: "id", BaseURL: server.URL}}

	_, live, err := p.Probe(context.Background(), config.StreamerConfig{Name: "quietchannel"})
	if err != nil {
		t.Fatal(err)
	}
	if live {
		t.Fatal("expected offline")
	}
}

func TestStreamlinkProberOfflineOnExitError(t *testing.T) {
	run := &fakeRunner{err: errors.New("exit status 1")}
	p := &StreamlinkProber{Run: run}
	_, live, err := p.Probe(context.Background(), config.StreamerConfig{Name: "someone", Platform: config.PlatformYouTube, Quality: "best"})
	if err != nil || live {
		t.Fatalf("offline channel should be not-live without error, got live=%v err=%v", live, err)
	}
	if len(run.calls) != 1 || run.calls[0][0] != "streamlink" {
		t.Fatalf("unexpected calls: %v", run.calls)
	}
}

func TestStreamlinkProberLive(t *testing.T) {
	p := &StreamlinkProber{Run: &fakeRunner{}}
	h, live, err := p.Probe(context.Background(), config.StreamerConfig{Name: "someone", Platform: config.PlatformYouTube, Quality: "best"})
	if err != nil || !live {
		t.Fatalf("expected live, got live=%v err=%v", live, err)
	}
	if h.URL != "https://youtube.com/@someone/live" {
		t.Fatalf("unexpected URL %q", h.URL)
	}
}

func TestStreamlinkProberCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &StreamlinkProber{Run: &fakeRunner{}}
	_, _, err := p.Probe(ctx, config.StreamerConfig{Name: "x", Platform: config.PlatformURL})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStreamURLRawPassthrough(t *testing.T) {
	s := config.StreamerConfig{Name: "https://example.com/live.m3u8", Platform: config.PlatformURL}
	if got := StreamURL(s); got != s.Name {
		t.Fatalf("raw URL should pass through, got %q", got)
	}
}
