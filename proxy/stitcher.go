package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/alorle/iptv-engine/epg"
	"github.com/alorle/iptv-engine/m3u"
)

// timestampFormat is the ISO-8601-with-fractional-seconds layout the
// bootstrap endpoint expects for client timestamps.
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// StitcherConfig carries the provider contract for the stitcher session
// protocol. The exact parameter names and values are provider configuration,
// not part of this package's guarantees.
type StitcherConfig struct {
	// BootURL is the bootstrap endpoint issuing session tokens.
	BootURL string
	// BaseURL is the base manifest URL the session is stitched onto.
	BaseURL string

	AppName           string
	AppVersion        string
	DeviceMake        string
	DeviceModel       string
	DeviceType        string
	DeviceVersion     string
	ClientModelNumber string

	// ClientID is a stable per-install identifier; generated when empty.
	ClientID string

	// HopDelay is a pause between the bootstrap and manifest hops, a
	// politeness measure against the upstream rate limiter.
	HopDelay time.Duration
}

// StitcherStrategy drives the two-hop stitcher session protocol: a bootstrap
// call obtains a short-lived session token and stitching parameters, then a
// dynamically assembled manifest is fetched and its highest-bandwidth variant
// selected. Both hops block the calling goroutine; resolution stays
// synchronous from the parser's point of view.
type StitcherStrategy struct {
	cfg    StitcherConfig
	client *http.Client
	guide  *epg.Guide
	logger *slog.Logger
	now    func() time.Time
}

// NewStitcherStrategy creates the strategy. The guide is optional; when
// present, the schedule payload embedded in bootstrap responses is cached
// into it as a best-effort side effect.
func NewStitcherStrategy(cfg StitcherConfig, client *http.Client, guide *epg.Guide, logger *slog.Logger) *StitcherStrategy {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	return &StitcherStrategy{
		cfg:    cfg,
		client: client,
		guide:  guide,
		logger: logger,
		now:    time.Now,
	}
}

type stitcherBootPayload struct {
	StitcherParams string            `json:"stitcherParams"`
	SessionToken   string            `json:"sessionToken"`
	EPG            []stitcherChannel `json:"EPG"`
}

type stitcherChannel struct {
	Name      string             `json:"name"`
	Timelines []stitcherTimeline `json:"timelines"`
}

type stitcherTimeline struct {
	Start   time.Time `json:"start"`
	Stop    time.Time `json:"stop"`
	Title   string    `json:"title"`
	Episode *struct {
		Name string `json:"name"`
	} `json:"episode"`
}

func (s *StitcherStrategy) resolve(source *url.URL) (*url.URL, error) {
	// The source URL's last path element names the channel being stitched.
	slug := path.Base(source.Path)

	boot, err := s.bootstrap(slug)
	if err != nil {
		return nil, err
	}
	s.cacheSchedule(boot.EPG)

	if s.cfg.HopDelay > 0 {
		time.Sleep(s.cfg.HopDelay)
	}

	base := strings.TrimSuffix(s.cfg.BaseURL, "/")
	manifestURL, err := url.Parse(fmt.Sprintf("%s/%s/master.m3u8?%s", base, slug, boot.StitcherParams))
	if err != nil {
		return nil, fmt.Errorf("build manifest url: %w", err)
	}
	q := manifestURL.Query()
	q.Set("jwt", boot.SessionToken)
	q.Set("masterJWTPassthrough", "true")
	q.Set("includeExtendedEvents", "true")
	manifestURL.RawQuery = q.Encode()

	variant, err := s.bestVariant(manifestURL)
	if err != nil {
		return nil, err
	}

	stream, err := url.Parse(fmt.Sprintf("%s/%s/%s", base, slug, variant))
	if err != nil {
		return nil, fmt.Errorf("build stream url: %w", err)
	}
	return stream, nil
}

// bootstrap performs the first hop: obtaining a session token and stitching
// parameters for the channel.
func (s *StitcherStrategy) bootstrap(slug string) (*stitcherBootPayload, error) {
	now := s.now().UTC().Format(timestampFormat)

	q := url.Values{}
	q.Set("appName", s.cfg.AppName)
	q.Set("appVersion", s.cfg.AppVersion)
	q.Set("deviceMake", s.cfg.DeviceMake)
	q.Set("deviceModel", s.cfg.DeviceModel)
	q.Set("deviceType", s.cfg.DeviceType)
	q.Set("deviceVersion", s.cfg.DeviceVersion)
	q.Set("clientID", s.cfg.ClientID)
	q.Set("clientModelNumber", s.cfg.ClientModelNumber)
	q.Set("serverSideAds", "false")
	q.Set("appLaunchCount", "0")
	q.Set("notificationVersion", "1")
	q.Set("clientTime", now)
	q.Set("lastAppLaunchDate", now)
	q.Set("channelSlug", slug)

	req, err := http.NewRequest(http.MethodGet, s.cfg.BootURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build bootstrap request: %w", err)
	}
	req.Header = desktopHeaders()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bootstrap session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bootstrap session: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap response: %w", err)
	}

	var payload stitcherBootPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	// The endpoint double-escapes ampersands inside the parameter blob.
	payload.StitcherParams = strings.ReplaceAll(payload.StitcherParams, `\u0026`, "&")
	return &payload, nil
}

// cacheSchedule writes the embedded schedule payload into the guide. This is
// a write-only side effect, not required for playback.
func (s *StitcherStrategy) cacheSchedule(channels []stitcherChannel) {
	if s.guide == nil {
		return
	}
	for _, ch := range channels {
		programmes := make([]epg.Programme, 0, len(ch.Timelines))
		for _, tl := range ch.Timelines {
			title := tl.Title
			if tl.Episode != nil {
				title = fmt.Sprintf("%s (ep. %s)", title, tl.Episode.Name)
			}
			programmes = append(programmes, epg.Programme{Title: title, Start: tl.Start, Stop: tl.Stop})
		}
		s.guide.SetProgrammes(ch.Name, programmes)
	}
}

// bestVariant performs the second hop: fetching the stitched manifest and
// picking the variant with the highest declared bandwidth. The manifest is
// itself M3U-shaped and parsed reentrantly.
func (s *StitcherStrategy) bestVariant(manifestURL *url.URL) (string, error) {
	req, err := http.NewRequest(http.MethodGet, manifestURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build manifest request: %w", err)
	}
	req.Header = desktopHeaders()

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch session manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch session manifest: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read session manifest: %w", err)
	}

	parser := m3u.NewParser(
		m3u.WithLogger(s.logger),
		m3u.WithStreamAccept(func(ref string) bool {
			_, err := url.Parse(ref)
			return err == nil
		}),
	)
	items, err := parser.Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse session manifest: %w", err)
	}
	if len(items) == 0 {
		return "", ErrEmptyManifest
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Bandwidth > items[j].Bandwidth
	})
	return items[0].URL.String(), nil
}
