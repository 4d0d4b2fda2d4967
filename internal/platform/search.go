package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-rod/rod"

	"github.com/yashvoladoddi37/leadflow/internal/browser"
	"github.com/yashvoladoddi37/leadflow/internal/models"
	"github.com/yashvoladoddi37/leadflow/internal/stealth"
)

// FindCandidates runs a people search scoped to one target company and
// returns up to limit profile candidates. The configured role and location
// narrow the keyword query. Results carry only the profile URL and source
// company; descriptive fields get filled in when the profile page is
// visited.
func (pl *Platform) FindCandidates(ctx context.Context, company string, limit int) ([]models.Candidate, error) {
	p, err := pl.newPage()
	if err != nil {
		return nil, err
	}
	defer p.Close()
	p = p.Context(ctx)

	parts := []string{}
	for _, s := range []string{pl.cfg.Targeting.Role, company, pl.cfg.Targeting.Location} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	kw := strings.Join(parts, " ")
	baseURL := fmt.Sprintf("%ssearch/results/people/?keywords=%s&origin=GLOBAL_SEARCH_HEADER",
		pl.cfg.Platform.BaseURL, url.QueryEscape(kw))

	var out []models.Candidate
	seen := map[string]bool{}
	pl.log.Info("searching candidates", "company", company, "keywords", kw, "limit", limit)

	for pageNum := 1; len(out) < limit; pageNum++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := p.Navigate(fmt.Sprintf("%s&page=%d", baseURL, pageNum)); err != nil {
			pl.log.Warn("search page navigation failed", "page", pageNum, "err", err)
			break
		}
		if err := p.WaitLoad(); err != nil {
			pl.log.Warn("search page load failed", "page", pageNum, "err", err)
			break
		}
		if _, err := p.Timeout(pageTimeout).Element(".search-results-container"); err != nil {
			if pageNum == 1 {
				return nil, browser.ScreenshotOnError(p, "search_fail", fmt.Errorf("search results container not found: %w", err))
			}
			break
		}

		stealth.Wander(p)
		stealth.Scroll(p) // trigger lazy loading
		stealth.SleepRandom(2000, 3000)

		links := profileLinks(p)
		pl.log.Info("profile links on page", "page", pageNum, "count", len(links))
		if len(links) == 0 {
			break
		}

		found := 0
		for _, el := range links {
			if len(out) >= limit {
				break
			}
			href, err := el.Attribute("href")
			if err != nil || href == nil {
				continue
			}
			profileURL := normalizeProfileURL(pl.cfg.Platform.BaseURL, *href)
			if !strings.Contains(profileURL, "/in/") || seen[profileURL] {
				continue
			}
			seen[profileURL] = true
			found++
			out = append(out, models.Candidate{
				ProfileURL:    profileURL,
				SourceCompany: company,
			})
		}
		if found == 0 {
			break // end of results
		}
		if len(out) < limit {
			stealth.SleepRandom(2000, 4000)
		}
	}
	return out, nil
}

// profileLinks tries progressively looser selectors; LinkedIn reshuffles
// its search result markup often enough that one strategy never survives.
func profileLinks(p *rod.Page) rod.Elements {
	if links, err := p.Elements(`a[href*="/in/"][data-test-app-aware-link]`); err == nil && len(links) > 0 {
		return links
	}
	if links, err := p.Elements(`.search-results-container a[href*="/in/"]`); err == nil && len(links) > 0 {
		return links
	}
	if items, err := p.Elements(`ul[role="list"] li`); err == nil && len(items) > 0 {
		var links rod.Elements
		for _, item := range items {
			if itemLinks, err := item.Elements(`a[href*="/in/"]`); err == nil && len(itemLinks) > 0 {
				links = append(links, itemLinks[0])
			}
		}
		if len(links) > 0 {
			return links
		}
	}
	links, _ := p.Elements(`a[href*="/in/"]`)
	return links
}

func normalizeProfileURL(base, u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		u = u[:i]
	}
	if !strings.HasPrefix(u, "http") {
		u = strings.TrimRight(base, "/") + u
	}
	return u
}
