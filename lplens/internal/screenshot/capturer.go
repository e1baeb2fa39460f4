// CLAUDE:SUMMARY Headless Chrome screenshot capturer: one isolated browser per call (or one incognito context on a shared remote connection), fixed viewport, DOMContentLoaded wait, settle delay, frozen animations, full-page PNG.
// Package screenshot captures full-page PNG images of landing pages with a
// headless Chrome driven through Rod, and stores them under a durable
// storage root.
//
// Capture never returns an error: any failure (launch, navigation timeout,
// filesystem) yields "" so the caller falls back to the metadata path.
package screenshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the capturer.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome. Each
	// capture then gets its own incognito context. Empty = launch a local
	// Chrome per capture.
	RemoteURL string

	// BrowserBin overrides the Chrome binary. Empty = launcher lookup.
	BrowserBin string

	// Stealth applies go-rod/stealth evasions to the page.
	Stealth bool

	Width      int           // Default: 1280.
	Height     int           // Default: 900.
	NavTimeout time.Duration // Navigation timeout. Default: 30s.
	Settle     time.Duration // Delay after DOMContentLoaded. Default: 2s.
	Timeout    time.Duration // Whole capture budget. Default: 60s.

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 900
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Settle < 0 {
		c.Settle = 0
	} else if c.Settle == 0 {
		c.Settle = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// freezeCSS pauses CSS animations and transitions that the CDP playback
// rate does not cover.
const freezeCSS = `() => {
	const s = document.createElement('style');
	s.textContent = '*,*::before,*::after{animation-play-state:paused!important;transition:none!important;caret-color:transparent!important}';
	(document.head || document.documentElement).appendChild(s);
}`

// Capturer takes screenshots into a Storage.
type Capturer struct {
	cfg     Config
	storage *Storage
	now     func() time.Time

	// Remote mode keeps one DevTools connection for all captures.
	mu       sync.Mutex
	remote   *rod.Browser
	remoteWS *cdp.WebSocket
}

// New creates a Capturer writing into storage.
func New(cfg Config, storage *Storage) *Capturer {
	cfg.defaults()
	return &Capturer{cfg: cfg, storage: storage, now: time.Now}
}

// Close drops the shared remote connection, if any. The remote Chrome
// itself keeps running.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropRemoteLocked()
}

// Storage returns the storage area the capturer writes into.
func (c *Capturer) Storage() *Storage { return c.storage }

// Capture loads url and stores a full-page image named after id. It returns
// the reference path, or "" on failure.
func (c *Capturer) Capture(ctx context.Context, url, id string) (ref string) {
	log := c.cfg.Logger
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Warn("screenshot: capture panicked", "url", url, "id", id, "panic", fmt.Sprint(r))
			ref = ""
		}
	}()

	data, err := c.shoot(ctx, url)
	if err != nil {
		log.Warn("screenshot: capture failed", "url", url, "id", id, "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return ""
	}
	ref, err = c.storage.Save(id, c.now(), data)
	if err != nil {
		log.Warn("screenshot: store failed", "url", url, "id", id, "error", err)
		return ""
	}
	log.Debug("screenshot: captured", "url", url, "ref", ref, "bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())
	return ref
}

func (c *Capturer) shoot(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	b, release, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var page *rod.Page
	if c.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.Width,
		Height:            c.cfg.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	navCtx, navCancel := context.WithTimeout(ctx, c.cfg.NavTimeout)
	defer navCancel()
	nav := page.Context(navCtx)
	wait := nav.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := nav.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	wait()
	if err := navCtx.Err(); err != nil {
		return nil, fmt.Errorf("wait DOMContentLoaded: %w", err)
	}

	if c.cfg.Settle > 0 {
		t := time.NewTimer(c.cfg.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if err := (proto.AnimationEnable{}).Call(page); err == nil {
		_ = proto.AnimationSetPlaybackRate{PlaybackRate: 0}.Call(page)
	}
	if _, err := page.Eval(freezeCSS); err != nil {
		c.cfg.Logger.Debug("screenshot: freeze css failed", "url", url, "error", err)
	}

	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

// open returns an isolated browser and the function that tears it down.
func (c *Capturer) open(ctx context.Context) (*rod.Browser, func(), error) {
	if c.cfg.RemoteURL != "" {
		root, err := c.remoteRoot(ctx)
		if err != nil {
			return nil, nil, err
		}
		inc, err := root.Context(ctx).Incognito()
		if err != nil {
			// A dead connection is replaced on the next capture.
			c.forgetRemote(root)
			return nil, nil, fmt.Errorf("incognito: %w", err)
		}
		return inc, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := inc.Context(dctx).Close(); err != nil {
				c.cfg.Logger.Debug("screenshot: dispose incognito failed", "error", err)
			}
		}, nil
	}

	l := launcher.New().Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("hide-scrollbars")
	if c.cfg.BrowserBin != "" {
		l = l.Bin(c.cfg.BrowserBin)
	}
	u, err := l.Context(ctx).Launch()
	if err != nil {
		abandon(l)
		return nil, nil, fmt.Errorf("launch: %w", err)
	}
	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return b, func() {
		b.Close()
		l.Kill()
		l.Cleanup()
	}, nil
}

// abandon releases what a failed Launch left behind. Cleanup is not used:
// it waits for a process exit that never comes when no process started.
func abandon(l *launcher.Launcher) {
	if l.PID() != 0 {
		l.Kill()
	}
	_ = os.RemoveAll(l.Get(flags.UserDataDir))
}

// remoteRoot connects to the remote browser on first use and returns the
// shared connection afterwards.
func (c *Capturer) remoteRoot(ctx context.Context) (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote != nil {
		return c.remote, nil
	}
	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, c.cfg.RemoteURL, nil); err != nil {
		return nil, fmt.Errorf("connect remote: %w", err)
	}
	root := rod.New().Client(cdp.New().Start(ws))
	if err := root.Connect(); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("connect remote: %w", err)
	}
	c.remote, c.remoteWS = root, ws
	return root, nil
}

func (c *Capturer) forgetRemote(root *rod.Browser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == root {
		_ = c.dropRemoteLocked()
	}
}

func (c *Capturer) dropRemoteLocked() error {
	if c.remoteWS == nil {
		return nil
	}
	err := c.remoteWS.Close()
	c.remote, c.remoteWS = nil, nil
	return err
}
