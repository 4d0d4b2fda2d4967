package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/yashvoladoddi37/leadflow/internal/browser"
	"github.com/yashvoladoddi37/leadflow/internal/models"
	"github.com/yashvoladoddi37/leadflow/internal/stealth"
)

const pageTimeout = 10 * time.Second

// connection notes above this length get rejected by the compose dialog
const maxNoteLen = 280

// SendConnection opens the candidate's profile, fills in any missing
// descriptive fields from the page, and sends an invitation with the note
// produced by note (rendered after extraction, so it sees the fresh
// fields).
func (pl *Platform) SendConnection(ctx context.Context, c *models.Candidate, note func(*models.Candidate) string) error {
	p, err := pl.newPage()
	if err != nil {
		return err
	}
	defer p.Close()
	p = p.Context(ctx)

	if err := pl.openProfile(p, c); err != nil {
		return err
	}

	connectBtn, err := findConnectButton(p)
	if err != nil {
		return browser.ScreenshotOnError(p, "connect_button_fail", fmt.Errorf("connect button not found: %w", err))
	}
	if err := stealth.Click(p, connectBtn); err != nil {
		return fmt.Errorf("clicking connect: %w", err)
	}
	stealth.SleepRandom(800, 1500)

	text := note(c)
	if len(text) > maxNoteLen {
		text = text[:maxNoteLen]
	}
	if addNote, err := p.Timeout(5*time.Second).ElementR("button", "Add a note"); err == nil {
		_ = stealth.Click(p, addNote)
		stealth.SleepRandom(600, 1200)
		if textarea, err := p.Element(`textarea[name="message"]`); err == nil {
			if err := stealth.Type(textarea, text); err != nil {
				return fmt.Errorf("typing note: %w", err)
			}
		} else {
			pl.log.Info("note textarea not found, sending without note", "url", c.ProfileURL)
		}
	} else {
		pl.log.Info("add-a-note button not found, sending without note", "url", c.ProfileURL)
	}
	stealth.SleepRandom(800, 1500)

	sendBtn, err := findSendButton(p, "Send", "Send invitation")
	if err != nil {
		return browser.ScreenshotOnError(p, "send_button_fail", err)
	}
	stealth.Wander(p)
	if err := stealth.Click(p, sendBtn); err != nil {
		return fmt.Errorf("clicking send: %w", err)
	}
	stealth.SleepRandom(800, 1500)

	pl.log.Info("connection request sent", "url", c.ProfileURL)
	return nil
}

// openProfile navigates to the candidate's page with human pacing and
// backfills name, headline, and company from the profile header.
func (pl *Platform) openProfile(p *rod.Page, c *models.Candidate) error {
	if err := p.Navigate(c.ProfileURL); err != nil {
		return fmt.Errorf("navigating to profile: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}
	stealth.Wander(p)
	stealth.ThinkTime()
	stealth.Scroll(p)

	if c.Name == "" || c.Headline == "" || c.Company == "" {
		pl.extractProfileInfo(p, c)
	}
	return nil
}

func (pl *Platform) extractProfileInfo(p *rod.Page, c *models.Candidate) {
	if nameEl, err := p.Timeout(3 * time.Second).Element("h1"); err == nil {
		if name, err := nameEl.Text(); err == nil {
			c.Name = strings.TrimSpace(name)
		}
	}

	for _, sel := range []string{
		`div.text-body-medium`,
		`div[class*="headline"]`,
		`.pv-text-details__left-panel div:nth-child(2)`,
	} {
		headlineEl, err := p.Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		headline, err := headlineEl.Text()
		if err != nil {
			continue
		}
		headline = strings.TrimSpace(headline)
		if headline != "" && headline != c.Name {
			c.Headline = headline
			break
		}
	}

	// "Software Engineer at Company" headlines carry the employer
	if c.Company == "" && c.Headline != "" {
		if idx := strings.Index(strings.ToLower(c.Headline), " at "); idx >= 0 {
			c.Company = strings.TrimSpace(c.Headline[idx+4:])
		}
	}
	if c.Company == "" {
		if companyEl, err := p.Timeout(2 * time.Second).Element(`#experience ~ div span[aria-hidden="true"]`); err == nil {
			if company, err := companyEl.Text(); err == nil {
				c.Company = strings.TrimSpace(company)
			}
		}
	}
	pl.log.Debug("profile fields extracted", "url", c.ProfileURL, "name", c.Name, "company", c.Company)
}

func findConnectButton(p *rod.Page) (*rod.Element, error) {
	if el, err := p.Timeout(5 * time.Second).Element(`button[aria-label*="Invite"][aria-label*="connect"]`); err == nil {
		return el, nil
	}
	if el, err := p.Timeout(5*time.Second).ElementR("button", "^Connect$"); err == nil {
		return el, nil
	}
	// connect sometimes hides behind the More dropdown
	if more, err := p.Timeout(3*time.Second).ElementR("button", "More"); err == nil {
		_ = stealth.Click(p, more)
		stealth.SleepRandom(600, 1200)
		return p.Timeout(5*time.Second).ElementR("div", "^Connect$")
	}
	return nil, fmt.Errorf("no connect affordance on page")
}

func findSendButton(p *rod.Page, labels ...string) (*rod.Element, error) {
	if el, err := p.Timeout(pageTimeout).ElementR("button", "Send"); err == nil {
		return el, nil
	}
	if el, err := p.Timeout(pageTimeout).Element(`button[aria-label*="Send"]`); err == nil {
		return el, nil
	}
	buttons, _ := p.Elements("button")
	for _, btn := range buttons {
		text, _ := btn.Text()
		for _, want := range labels {
			if text == want {
				return btn, nil
			}
		}
	}
	return nil, fmt.Errorf("send button not found")
}
