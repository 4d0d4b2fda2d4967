// Package platform is the only place that knows LinkedIn's DOM. It
// implements the capabilities the stage runners need — find candidates,
// probe a session, send a connection, detect acceptance, send a message,
// read a conversation — on top of a rod browser.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/yashvoladoddi37/leadflow/internal/browser"
	"github.com/yashvoladoddi37/leadflow/internal/config"
	"github.com/yashvoladoddi37/leadflow/internal/logging"
	"github.com/yashvoladoddi37/leadflow/internal/session"
	"github.com/yashvoladoddi37/leadflow/internal/stealth"
)

type Platform struct {
	br   *browser.Browser
	cfg  *config.Config
	sess *session.Session
	log  *logging.Logger
}

func New(br *browser.Browser, cfg *config.Config, log *logging.Logger) *Platform {
	return &Platform{br: br, cfg: cfg, log: log.With("module", "platform")}
}

// Use pins the session whose cookies every subsequent page starts from.
func (pl *Platform) Use(sess *session.Session) {
	pl.sess = sess
}

// newPage opens a fingerprinted page and restores the pinned session's
// cookies into it.
func (pl *Platform) newPage() (*rod.Page, error) {
	p, err := pl.br.NewPage()
	if err != nil {
		return nil, err
	}
	if pl.sess != nil {
		if err := restoreCookies(p, pl.sess); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func restoreCookies(p *rod.Page, sess *session.Session) error {
	if len(sess.Cookies) == 0 {
		return nil
	}
	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(sess.Cookies, &cookies); err != nil {
		return fmt.Errorf("decoding session cookies: %w", err)
	}
	for _, c := range cookies {
		_, _ = proto.NetworkSetCookie{
			Domain:   c.Domain,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}.Call(p)
	}
	return nil
}

func captureCookies(p *rod.Page) (json.RawMessage, error) {
	pp := p.Timeout(20 * time.Second)
	cookies, err := proto.StorageGetCookies{}.Call(pp)
	if err != nil {
		// transient CDP deadline, one retry
		time.Sleep(500 * time.Millisecond)
		cookies, err = proto.StorageGetCookies{}.Call(pp)
		if err != nil {
			return nil, fmt.Errorf("reading cookies: %w", err)
		}
	}
	return json.Marshal(cookies.Cookies)
}

// Probe restores the session into a fresh page and checks the feed still
// recognizes it. Implements session.Prober.
func (pl *Platform) Probe(ctx context.Context, sess *session.Session) error {
	p, err := pl.br.NewPage()
	if err != nil {
		return err
	}
	defer p.Close()
	if err := restoreCookies(p, sess); err != nil {
		return err
	}
	if err := p.Context(ctx).Navigate(pl.cfg.Platform.BaseURL + "feed/"); err != nil {
		return fmt.Errorf("navigating to feed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("loading feed: %w", err)
	}
	if _, err := p.Timeout(10 * time.Second).Element(`a[href*="/feed/"]`); err != nil {
		return errors.New("feed marker not found, session is stale")
	}
	return nil
}

// Login signs in with credentials from the environment and captures the
// resulting cookies as a fresh session. Implements session.Authenticator.
func (pl *Platform) Login(ctx context.Context, identity string) (*session.Session, error) {
	pass := os.Getenv("LINKEDIN_PASSWORD")
	if identity == "" || pass == "" {
		return nil, errors.New("missing LINKEDIN_EMAIL or LINKEDIN_PASSWORD env")
	}

	p, err := pl.br.NewPage()
	if err != nil {
		return nil, err
	}
	defer p.Close()
	p = p.Context(ctx)

	if err := p.Navigate(pl.cfg.Platform.BaseURL + "login"); err != nil {
		return nil, fmt.Errorf("navigating to login page: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("loading login page: %w", err)
	}
	stealth.SleepRandom(800, 1500)

	userInput, err := p.Timeout(5 * time.Second).Element("input#username")
	if err != nil {
		// some regions land on the uas variant
		if err := p.Navigate(pl.cfg.Platform.BaseURL + "uas/login"); err != nil {
			return nil, fmt.Errorf("navigating to alternate login page: %w", err)
		}
		if err := p.WaitLoad(); err != nil {
			return nil, fmt.Errorf("loading alternate login page: %w", err)
		}
		userInput, err = p.Timeout(5 * time.Second).Element("input#username")
		if err != nil {
			return nil, browser.ScreenshotOnError(p, "login_page_fail", fmt.Errorf("username input not found: %w", err))
		}
	}

	if err := stealth.Type(userInput, identity); err != nil {
		return nil, fmt.Errorf("typing email: %w", err)
	}
	stealth.SleepRandom(200, 500)

	passInput, err := p.Timeout(5 * time.Second).Element("input#password")
	if err != nil {
		return nil, fmt.Errorf("password input not found: %w", err)
	}
	if err := stealth.Type(passInput, pass); err != nil {
		return nil, fmt.Errorf("typing password: %w", err)
	}
	stealth.SleepRandom(200, 500)

	submit, err := p.Timeout(5 * time.Second).Element(`button[type="submit"]`)
	if err != nil {
		return nil, fmt.Errorf("submit button not found: %w", err)
	}
	if err := stealth.Click(p, submit); err != nil {
		return nil, fmt.Errorf("clicking submit: %w", err)
	}
	time.Sleep(5 * time.Second)

	if err := pl.verifyLoggedIn(p); err != nil {
		return nil, err
	}

	cookies, err := captureCookies(p)
	if err != nil {
		return nil, err
	}
	pl.log.Info("login succeeded", "identity", identity)
	return &session.Session{Identity: identity, Cookies: cookies}, nil
}

func (pl *Platform) verifyLoggedIn(p *rod.Page) error {
	info, err := p.Info()
	if err != nil {
		return fmt.Errorf("reading page info: %w", err)
	}
	url := info.URL
	if strings.Contains(url, "/feed") {
		return nil
	}

	// header elements that only render when signed in
	for _, sel := range []string{
		`input[placeholder*="Search"], input[aria-label*="Search"]`,
		`nav.global-nav, [class*="global-nav"]`,
		`a[href*="/feed"]`,
	} {
		if _, err := p.Timeout(3 * time.Second).Element(sel); err == nil {
			return nil
		}
	}

	if errEl, err := p.Timeout(2 * time.Second).Element(".alert--error, .form__label--error, .error"); err == nil {
		if text, _ := errEl.Text(); text != "" {
			return browser.ScreenshotOnError(p, "login_error", fmt.Errorf("login rejected: %s", text))
		}
	}
	if _, err := p.Timeout(2 * time.Second).Element(`[data-test-id="checkpoint"], .challenge-dialog`); err == nil {
		return browser.ScreenshotOnError(p, "login_checkpoint", errors.New("login blocked by verification checkpoint, sign in manually once"))
	}
	if strings.Contains(url, "/login") {
		return browser.ScreenshotOnError(p, "login_stuck", errors.New("still on login page after submitting credentials"))
	}
	return browser.ScreenshotOnError(p, "login_unknown", errors.New("could not verify login"))
}
