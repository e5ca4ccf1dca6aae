// Package browser is the live ats.Page backend built on go-rod.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultIdleAfter = 2 * time.Second
)

// Config configures the Chromium instance.
type Config struct {
	Headless  bool          `mapstructure:"headless"`
	Bin       string        `mapstructure:"bin"`
	UserAgent string        `mapstructure:"user-agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Browser owns one launched Chromium process.
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	timeout  time.Duration
	logger   *zap.Logger
}

// Launch starts Chromium and connects to it.
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	if bin := strings.TrimSpace(cfg.Bin); bin != "" {
		l = l.Bin(bin)
	}
	if ua := strings.TrimSpace(cfg.UserAgent); ua != "" {
		l = l.Set("user-agent", ua)
	}

	launchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	controlURL, err := l.Context(launchCtx).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.Debug("browser launched", zap.Bool("headless", cfg.Headless))
	return &Browser{launcher: l, browser: b, timeout: timeout, logger: logger}, nil
}

// Open navigates a new tab to url and waits for it to load.
func (b *Browser) Open(ctx context.Context, url string) (*Page, error) {
	navCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	page, err := b.browser.Context(navCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := rod.Try(func() {
		page.MustNavigate(url).MustWaitLoad()
	}); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	b.logger.Debug("page loaded", zap.String("url", url))
	return &Page{page: page.Context(context.Background()), timeout: b.timeout, logger: b.logger}, nil
}

func (b *Browser) Close() error {
	defer b.launcher.Cleanup()
	if err := b.browser.Close(); err != nil {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}
