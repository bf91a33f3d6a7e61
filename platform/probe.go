// Package platform abstracts per-platform live-status probing behind the
// Prober capability. A probe is bounded by the caller's context; transient
// failures are reported as not-live so poll loops stay resilient.
package platform

import (
	"context"
	"log/slog"

	"github.com/onnwee/stream-scribe/config"
	"github.com/onnwee/stream-scribe/runner"
)

// Handle is a playable reference to a live broadcast.
type Handle struct {
	URL   string
	Title string
}

// Prober determines whether a streamer is currently live. The bool result is
// the live flag; err is reserved for conditions the caller may want to log.
// Indeterminate results (timeouts, flaky network) come back as not-live.
type Prober interface {
	Probe(ctx context.Context, s config.StreamerConfig) (Handle, bool, error)
}

// HelixProber checks Twitch live status via the Helix streams endpoint.
type HelixProber struct {
	Client *HelixClient
}

func (p *HelixProber) Probe(ctx context.Context, s config.StreamerConfig) (Handle, bool, error) {
	stream, err := p.Client.GetStream(ctx, s.Name)
	if err != nil {
		return Handle{}, false, err
	}
	if stream == nil {
		return Handle{}, false, nil
	}
	return Handle{URL: StreamURL(s), Title: stream.Title}, true, nil
}

// StreamlinkProber asks streamlink whether the stream URL is currently
// resolvable to a playable stream. Works for any platform streamlink supports.
type StreamlinkProber struct {
	Run runner.Runner
}

func (p *StreamlinkProber) Probe(ctx context.Context, s config.StreamerConfig) (Handle, bool, error) {
	url := StreamURL(s)
	// streamlink exits non-zero when the channel is offline or the URL is
	// unsupported; either way the channel is not recordable right now.
	if err := p.Run.Run(ctx, "streamlink", "--json", url, s.Quality); err != nil {
		if ctx.Err() != nil {
			return Handle{}, false, ctx.Err()
		}
		return Handle{}, false, nil
	}
	return Handle{URL: url}, true, nil
}

// StreamURL maps a streamer to the URL handed to capture tooling.
func StreamURL(s config.StreamerConfig) string {
	switch s.Platform {
	case config.PlatformTwitch:
		return "https://twitch.tv/" + s.Name
	case config.PlatformYouTube:
		return "https://youtube.com/@" + s.Name + "/live"
	default:
		return s.Name
	}
}

// ProberFor selects the prober for a streamer: Helix when Twitch credentials
// are configured, streamlink otherwise.
func ProberFor(cfg *config.Config, s config.StreamerConfig, run runner.Runner) Prober {
	if s.Platform == config.PlatformTwitch && cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		ts := &TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
		return &HelixProber{Client: &HelixClient{AppTokenSource: ts, ClientID: cfg.TwitchClientID}}
	}
	slog.Debug("using streamlink prober", slog.String("streamer", s.Name), slog.String("platform", string(s.Platform)))
	return &StreamlinkProber{Run: run}
}
