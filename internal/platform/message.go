package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"github.com/yashvoladoddi37/leadflow/internal/browser"
	"github.com/yashvoladoddi37/leadflow/internal/models"
	"github.com/yashvoladoddi37/leadflow/internal/stealth"
)

// ConnectionAccepted reports whether the candidate has accepted the
// invitation. A Message button on their profile only appears for
// first-degree connections.
func (pl *Platform) ConnectionAccepted(ctx context.Context, c *models.Candidate) (bool, error) {
	p, err := pl.newPage()
	if err != nil {
		return false, err
	}
	defer p.Close()
	p = p.Context(ctx)

	if err := p.Navigate(c.ProfileURL); err != nil {
		return false, fmt.Errorf("navigating to profile: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return false, fmt.Errorf("loading profile: %w", err)
	}
	stealth.SleepRandom(800, 1500)

	if c.Name == "" || c.Headline == "" || c.Company == "" {
		pl.extractProfileInfo(p, c)
	}

	if _, err := p.Timeout(3*time.Second).ElementR("button", "^Message$"); err == nil {
		return true, nil
	}
	if _, err := p.Timeout(2 * time.Second).Element(`button[aria-label*="Message"]`); err == nil {
		return true, nil
	}
	return false, nil
}

// SendMessage opens the candidate's profile and sends text through the
// message composer. The candidate must already be a connection.
func (pl *Platform) SendMessage(ctx context.Context, c *models.Candidate, text string) error {
	p, err := pl.newPage()
	if err != nil {
		return err
	}
	defer p.Close()
	p = p.Context(ctx)

	if err := pl.openProfile(p, c); err != nil {
		return err
	}

	msgBtn, err := p.Timeout(5*time.Second).ElementR("button", "^Message$")
	if err != nil {
		msgBtn, err = p.Timeout(5 * time.Second).Element(`button[aria-label*="Message"]`)
	}
	if err != nil {
		return fmt.Errorf("message button not found: %w", err)
	}
	if err := stealth.Click(p, msgBtn); err != nil {
		return fmt.Errorf("clicking message button: %w", err)
	}
	stealth.SleepRandom(1200, 2000)

	input, err := findMessageInput(p)
	if err != nil {
		return browser.ScreenshotOnError(p, "message_input_fail", err)
	}
	if err := stealth.Type(input, text); err != nil {
		return fmt.Errorf("typing message: %w", err)
	}
	stealth.SleepRandom(800, 1500)

	sendBtn, err := p.Timeout(pageTimeout).Element(`button.msg-form__send-button`)
	if err != nil {
		sendBtn, err = findSendButton(p, "Send")
	}
	if err != nil {
		return browser.ScreenshotOnError(p, "send_message_fail", err)
	}
	stealth.Wander(p)
	if err := stealth.Click(p, sendBtn); err != nil {
		return fmt.Errorf("clicking send: %w", err)
	}
	stealth.SleepRandom(800, 1500)

	pl.log.Info("message sent", "url", c.ProfileURL, "length", len(text))
	return nil
}

func findMessageInput(p *rod.Page) (*rod.Element, error) {
	// probe with a short timeout, then re-acquire on the page default so
	// humanized typing is not cut off mid-note
	if _, err := p.Timeout(8 * time.Second).Element(`div.msg-form__contenteditable`); err == nil {
		return p.Element(`div.msg-form__contenteditable`)
	}
	if _, err := p.Timeout(5 * time.Second).Element(`div[contenteditable="true"]`); err == nil {
		return p.Element(`div[contenteditable="true"]`)
	}
	return nil, fmt.Errorf("message input not found")
}
