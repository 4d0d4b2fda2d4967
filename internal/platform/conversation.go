package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"

	"github.com/yashvoladoddi37/leadflow/internal/models"
	"github.com/yashvoladoddi37/leadflow/internal/stealth"
)

// ReadConversation opens the messaging inbox, finds the thread with the
// candidate, and returns its inbound messages. Unread is false when the
// inbox shows no unread badge for the thread, so re-scans of a quiet
// conversation cost nothing downstream.
func (pl *Platform) ReadConversation(ctx context.Context, c *models.Candidate) (models.Conversation, error) {
	p, err := pl.newPage()
	if err != nil {
		return models.Conversation{}, err
	}
	defer p.Close()
	p = p.Context(ctx)

	if err := p.Navigate(pl.cfg.Platform.BaseURL + "messaging/"); err != nil {
		return models.Conversation{}, fmt.Errorf("navigating to inbox: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return models.Conversation{}, fmt.Errorf("loading inbox: %w", err)
	}
	stealth.SleepRandom(1500, 2500)

	card, err := findConversationCard(p, c.Name)
	if err != nil {
		return models.Conversation{}, err
	}
	if card == nil {
		// no thread yet; the sent message may still be pending delivery
		return models.Conversation{}, nil
	}

	unread := cardIsUnread(card)
	if !unread {
		return models.Conversation{Unread: false}, nil
	}

	if err := stealth.Click(p, card); err != nil {
		return models.Conversation{}, fmt.Errorf("opening conversation: %w", err)
	}
	stealth.SleepRandom(1500, 2500)

	thread, err := p.Timeout(pageTimeout).Element(`ul.msg-s-message-list-content, div.msg-s-message-list`)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("thread list not found: %w", err)
	}
	html, err := thread.HTML()
	if err != nil {
		return models.Conversation{}, fmt.Errorf("reading thread html: %w", err)
	}

	inbound, err := parseInbound(html, c.Name)
	if err != nil {
		return models.Conversation{}, err
	}
	pl.log.Info("conversation read", "url", c.ProfileURL, "inbound", len(inbound))
	return models.Conversation{Unread: true, Inbound: inbound}, nil
}

// findConversationCard scans inbox cards for one whose participant names
// include the candidate. A nil card with nil error means no thread exists.
func findConversationCard(p *rod.Page, name string) (*rod.Element, error) {
	cards, err := p.Timeout(pageTimeout).Elements(`li.msg-conversation-listitem, li[class*="conversation-listitem"]`)
	if err != nil || len(cards) == 0 {
		return nil, fmt.Errorf("no conversation cards found")
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, fmt.Errorf("candidate has no name to match against")
	}
	for _, card := range cards {
		nameEl, err := card.Timeout(2 * time.Second).Element(`h3[class*="participant-names"], .msg-conversation-listitem__participant-names`)
		if err != nil {
			continue
		}
		text, err := nameEl.Text()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(text), needle) {
			return card, nil
		}
	}
	return nil, nil
}

func cardIsUnread(card *rod.Element) bool {
	if _, err := card.Timeout(1 * time.Second).Element(`.msg-conversation-card__unread-count`); err == nil {
		return true
	}
	if cls, err := card.Attribute("class"); err == nil && cls != nil {
		return strings.Contains(*cls, "unread")
	}
	return false
}

// parseInbound pulls the other party's message bodies out of the thread
// markup, oldest first. Consecutive messages from one sender only name the
// sender on the first event, so the last seen sender carries forward.
func parseInbound(html, candidateName string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing thread html: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(candidateName))
	first := strings.ToLower(firstWord(candidateName))

	var inbound []string
	lastSender := ""
	doc.Find(`li.msg-s-message-list__event, li[class*="message-list__event"]`).Each(func(_ int, ev *goquery.Selection) {
		if sender := strings.TrimSpace(ev.Find(`.msg-s-message-group__name`).First().Text()); sender != "" {
			lastSender = strings.ToLower(sender)
		}
		body := strings.TrimSpace(ev.Find(`.msg-s-event-listitem__body`).First().Text())
		if body == "" {
			return
		}
		if strings.Contains(lastSender, needle) || (first != "" && strings.Contains(lastSender, first)) {
			inbound = append(inbound, body)
		}
	})
	return inbound, nil
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
