// Package browser owns the rod launcher and applies a randomized but
// self-consistent fingerprint to every page it hands out.
package browser

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/yashvoladoddi37/leadflow/internal/config"
	"github.com/yashvoladoddi37/leadflow/internal/logging"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

type Browser struct {
	Rod      *rod.Browser
	cfg      *config.Config
	ua       string
	platform string
	log      *logging.Logger
}

// New launches a browser and picks the fingerprint (user agent, platform,
// viewport range) used for the rest of the run. Leakless is off to avoid
// antivirus false positives on Windows hosts.
func New(cfg *config.Config, log *logging.Logger) (*Browser, error) {
	l := launcher.New().Leakless(false).Headless(cfg.Stealth.Headless)
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	rb := rod.New().ControlURL(url)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	rb = rb.MustIgnoreCertErrors(true)

	ua := cfg.Stealth.UserAgent
	if ua == "" {
		ua = userAgents[rand.Intn(len(userAgents))]
	}
	b := &Browser{Rod: rb, cfg: cfg, ua: ua, platform: platformFromUA(ua), log: log.With("module", "browser")}
	b.log.Info("browser launched", "headless", cfg.Stealth.Headless, "ua", ua)
	return b, nil
}

// NewPage opens a page with the run's fingerprint applied before any
// document script runs. The long default timeout covers humanized typing,
// which can take minutes for a full note.
func (b *Browser) NewPage() (*rod.Page, error) {
	p, err := b.Rod.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	p = p.Timeout(300 * time.Second)

	if err := (proto.EmulationSetUserAgentOverride{UserAgent: b.ua, Platform: b.platform}).Call(p); err != nil {
		return nil, fmt.Errorf("setting user agent: %w", err)
	}
	w := randRange(b.cfg.Stealth.ViewportWidthMin, b.cfg.Stealth.ViewportWidthMax)
	h := randRange(b.cfg.Stealth.ViewportHeightMin, b.cfg.Stealth.ViewportHeightMax)
	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: w, Height: h, DeviceScaleFactor: 1, Mobile: false,
	}); err != nil {
		return nil, fmt.Errorf("setting viewport: %w", err)
	}
	if _, err := p.EvalOnNewDocument(maskScript(w, h, b.platform)); err != nil {
		return nil, fmt.Errorf("installing mask script: %w", err)
	}
	return p, nil
}

func (b *Browser) Close() {
	if b.Rod != nil {
		_ = b.Rod.Close()
	}
}

func platformFromUA(ua string) string {
	switch {
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	case strings.Contains(ua, "Linux"):
		return "Linux x86_64"
	default:
		return "Win32"
	}
}

// maskScript hides the obvious automation giveaways: the webdriver flag,
// the missing chrome object, an empty plugin list, and screen dimensions
// that disagree with the viewport.
func maskScript(width, height int, platform string) string {
	return fmt.Sprintf(`() => {
		Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
		window.chrome = window.chrome || { runtime: {}, loadTimes: function() {}, csi: function() {}, app: {} };
		Object.defineProperty(navigator, 'plugins', {
			get: () => [
				{ name: 'PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
				{ name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' }
			]
		});
		Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
		Object.defineProperty(navigator, 'platform', { get: () => %q });
		Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8 });
		Object.defineProperty(navigator, 'deviceMemory', { get: () => 8 });
		const getParameter = WebGLRenderingContext.prototype.getParameter;
		WebGLRenderingContext.prototype.getParameter = function(parameter) {
			if (parameter === 37445) { return 'Intel Inc.'; }
			if (parameter === 37446) { return 'Intel Iris OpenGL Engine'; }
			return getParameter.apply(this, arguments);
		};
		Object.defineProperty(window.screen, 'width', { get: () => %d + 100 });
		Object.defineProperty(window.screen, 'height', { get: () => %d + 100 });
		Object.defineProperty(window.screen, 'availWidth', { get: () => %d + 100 });
		Object.defineProperty(window.screen, 'availHeight', { get: () => %d + 60 });
	}`, platform, width, height, width, height)
}

func randRange(min, max int) int {
	if min >= max {
		return min
	}
	return min + rand.Intn(max-min+1)
}

// ScreenshotOnError captures the page when an operation fails, for
// after-the-fact selector debugging. It passes err through unchanged.
func ScreenshotOnError(p *rod.Page, prefix string, err error) error {
	if p == nil || err == nil {
		return err
	}
	path := fmt.Sprintf("%s-%d.png", prefix, time.Now().Unix())
	bts, _ := p.Screenshot(true, &proto.PageCaptureScreenshot{})
	_ = os.WriteFile(path, bts, 0o644)
	return err
}
