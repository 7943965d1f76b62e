package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/alorle/iptv-engine/cache"
	"github.com/alorle/iptv-engine/channels"
	"github.com/alorle/iptv-engine/circuitbreaker"
	"github.com/alorle/iptv-engine/config"
	"github.com/alorle/iptv-engine/epg"
	"github.com/alorle/iptv-engine/fetcher"
	"github.com/alorle/iptv-engine/m3u"
	"github.com/alorle/iptv-engine/proxy"
	"github.com/alorle/iptv-engine/store"
)

const usage = `usage: iptv-engine <command> [arguments]

commands:
  refresh                     fetch, resolve and store all configured sources
  export <name> [pin]         print a stored playlist as M3U with channels rebuilt
  list                        list stored playlist names
  delete <name>               delete a stored playlist
  pin set <name> <pin>        protect a stored playlist with a PIN
  pin remove <name> <pin>     lift PIN protection
  pin verify <name> <pin>     check a PIN without reading the playlist
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "iptv-engine: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// A headless CLI run carries no embedded browser, so browser-backed
	// scrape proxies keep their literal reference.
	app, err := newApp(cfg, nil, logger)
	if err != nil {
		logger.Error("cannot initialize engine", "error", err)
		os.Exit(1)
	}
	defer app.store.Close()

	if err := app.run(os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// app holds the wired engine components.
type app struct {
	cfg      *config.Config
	store    *store.Store
	fetcher  fetcher.Interface
	resolver *proxy.Resolver
	guide    *epg.Guide
	logger   *slog.Logger
}

func newApp(cfg *config.Config, browser proxy.Browser, logger *slog.Logger) (*app, error) {
	storage, err := cache.NewFileStorage(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path, cfg.Store.DeviceSalt, logger)
	if err != nil {
		return nil, err
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Timeout:          cfg.Breaker.Timeout,
		HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
		Logger:           logger,
		Source:           "playlist-fetch",
	})
	f := fetcher.New(cfg.Fetch.Timeout, storage, cfg.Cache.TTL,
		fetcher.WithBreaker(breaker),
		fetcher.WithLogger(logger),
	)

	guide := epg.NewGuide()
	client := &http.Client{Timeout: cfg.Fetch.Timeout}

	manifest := proxy.NewManifestStrategy(client, cfg.Proxy.Manifest.PlayerHint)

	var stitcher *proxy.StitcherStrategy
	if cfg.Proxy.Stitcher.BootURL != "" {
		stitcher = proxy.NewStitcherStrategy(proxy.StitcherConfig{
			BootURL:           cfg.Proxy.Stitcher.BootURL,
			BaseURL:           cfg.Proxy.Stitcher.BaseURL,
			AppName:           cfg.Proxy.Stitcher.AppName,
			AppVersion:        cfg.Proxy.Stitcher.AppVersion,
			DeviceMake:        cfg.Proxy.Stitcher.DeviceMake,
			DeviceModel:       cfg.Proxy.Stitcher.DeviceModel,
			DeviceType:        cfg.Proxy.Stitcher.DeviceType,
			DeviceVersion:     cfg.Proxy.Stitcher.DeviceVersion,
			ClientModelNumber: cfg.Proxy.Stitcher.ClientModelNumber,
			HopDelay:          cfg.Proxy.Stitcher.HopDelay,
		}, client, guide, logger)
	}

	var scrape *proxy.ScrapeStrategy
	if browser != nil {
		scrape = proxy.NewScrapeStrategy(proxy.ScrapeConfig{
			TargetHost: cfg.Proxy.Scrape.TargetHost,
			TargetPath: cfg.Proxy.Scrape.TargetPath,
		}, browser, client, logger)
	}

	resolver := proxy.NewResolver(manifest, stitcher, scrape, logger)

	return &app{
		cfg:      cfg,
		store:    st,
		fetcher:  f,
		resolver: resolver,
		guide:    guide,
		logger:   logger,
	}, nil
}

func (a *app) run(command string, args []string) error {
	switch command {
	case "refresh":
		return a.refresh()
	case "export":
		if len(args) < 1 {
			return errors.New("export: playlist name required")
		}
		pin := ""
		if len(args) > 1 {
			pin = args[1]
		}
		return a.export(args[0], pin)
	case "list":
		return a.list()
	case "delete":
		if len(args) != 1 {
			return errors.New("delete: playlist name required")
		}
		return a.store.Delete(args[0])
	case "pin":
		return a.pin(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// refresh fetches every configured source and stores the raw playlist text.
func (a *app) refresh() error {
	var failed int
	for _, src := range a.cfg.Sources {
		if err := a.refreshSource(src); err != nil {
			a.logger.Error("source refresh failed", "source", src.Name, "error", err)
			failed++
		}
	}
	if failed == len(a.cfg.Sources) {
		return errors.New("all sources failed")
	}
	return nil
}

func (a *app) refreshSource(src config.Source) error {
	content, fromCache, stale, err := a.fetcher.FetchWithCache(src.URL)
	if err != nil {
		return err
	}
	a.logger.Info("refreshed source", "source", src.Name, "from_cache", fromCache, "stale", stale)

	// Parse now so a broken document is caught before it is persisted.
	parser := m3u.NewParser(m3u.WithResolver(a.resolver), m3u.WithLogger(a.logger))
	items, err := parser.Parse(content)
	if err != nil {
		return err
	}
	a.logger.Info("parsed source", "source", src.Name, "entries", len(items))

	return a.store.Put(src.Name, content, src.URL, src.Pin)
}

// export rebuilds the channel list from the stored playlist and writes it to
// stdout as M3U.
func (a *app) export(name, pin string) error {
	content, err := a.store.Get(name, pin)
	if err != nil {
		return err
	}

	parser := m3u.NewParser(m3u.WithResolver(a.resolver), m3u.WithLogger(a.logger))
	items, err := parser.Parse(content)
	if err != nil {
		return err
	}

	opts := []channels.BuilderOption{channels.WithBuilderLogger(a.logger)}
	if src, ok := a.source(name); ok {
		opts = append(opts,
			channels.WithFavorites(src.Favorites...),
			channels.WithBlacklist(src.Blacklist...),
		)
		if src.Identity == config.IdentityStream {
			opts = append(opts, channels.WithIdentity(channels.IdentityByStream))
		}
	}
	list := channels.NewBuilder(opts...).Build(items)

	out := make([]m3u.Item, 0, len(list))
	for _, ch := range list {
		out = append(out, m3u.Item{
			Title: ch.Original,
			URL:   ch.Stream,
			Group: ch.Group,
			Logo:  ch.Logo,
		})
	}
	return m3u.Encode(os.Stdout, out)
}

func (a *app) list() error {
	names, err := a.store.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func (a *app) pin(args []string) error {
	if len(args) != 3 {
		return errors.New("pin: expected set|remove|verify <name> <pin>")
	}
	sub, name, pin := args[0], args[1], args[2]

	switch sub {
	case "set":
		return a.store.SetPin(name, pin)
	case "remove":
		return a.store.RemovePin(name, pin)
	case "verify":
		if err := a.store.VerifyPin(name, pin); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	default:
		return fmt.Errorf("pin: unknown subcommand %q", sub)
	}
}

func (a *app) source(name string) (config.Source, bool) {
	for _, src := range a.cfg.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return config.Source{}, false
}
