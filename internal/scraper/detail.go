package scraper

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/pagetext"
)

const detailSettlePause = 2 * time.Second

// DetailLinks returns the distinct detail-page URLs linked from the current page, in
// document order.
func (p *Page) DetailLinks(ctx context.Context) []string {
	elems, err := p.drv.FindElements(ctx, detailLinkSelector)
	if err != nil {
		p.log.Warn("could not find detail links", zap.Error(err))
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	for _, elem := range elems {
		href, err := elem.Property(ctx, "href")
		if err != nil || !strings.Contains(href, "/details/") || seen[href] {
			continue
		}
		seen[href] = true
		links = append(links, href)
		p.log.Debug("found detail link", zap.String("url", href))
	}
	return links
}

// ClickShowAll clicks the in-page "show all" buttons while budget remains.
func (p *Page) ClickShowAll(ctx context.Context, budget Budget) (int, error) {
	elems, err := p.drv.FindElements(ctx, showAllSelector)
	if err != nil {
		return 0, ctx.Err()
	}
	clicked := 0
	for _, elem := range elems {
		if !budget.Remaining() {
			break
		}
		if err := elem.ScrollIntoView(ctx); err != nil {
			continue
		}
		if err := p.clock.Sleep(ctx, showAllFocusPause); err != nil {
			return clicked, err
		}
		if err := elem.Click(ctx); err != nil {
			continue
		}
		clicked++
		if err := p.clock.Sleep(ctx, showAllClickPause); err != nil {
			return clicked, err
		}
	}
	return clicked, nil
}

// TraverseDetails visits every detail page linked from the profile while budget remains
// and returns their text, each block introduced by a section marker. A failed visit is
// logged and skipped. The browser is sent back to profileURL afterwards.
func (p *Page) TraverseDetails(ctx context.Context, profileURL string, budget Budget) (string, error) {
	links := p.DetailLinks(ctx)
	if _, err := p.ClickShowAll(ctx, budget); err != nil {
		return "", err
	}

	var parts []string
	for i, href := range links {
		if !budget.Remaining() {
			p.log.Info("time budget reached, skipping remaining detail pages",
				zap.Int("skipped", len(links)-i))
			break
		}
		text, err := p.visitDetail(ctx, href)
		if err != nil {
			if ctx.Err() != nil {
				return strings.Join(parts, "\n"), ctx.Err()
			}
			p.log.Warn("detail page failed", zap.String("url", href), zap.Error(err))
			continue
		}
		if charCount(text) <= minDetailChars {
			continue
		}
		name := sectionNameForURL(href)
		parts = append(parts, "\n"+sectionMarker(name)+"\n"+text)
		p.log.Info("extracted detail page", zap.String("section", name), zap.Int("chars", charCount(text)))
	}

	if len(links) > 0 {
		if err := p.drv.Navigate(ctx, profileURL); err != nil {
			p.log.Warn("could not return to profile", zap.String("url", profileURL), zap.Error(err))
		} else if err := p.clock.Sleep(ctx, detailSettlePause); err != nil {
			return strings.Join(parts, "\n"), err
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (p *Page) visitDetail(ctx context.Context, href string) (string, error) {
	if err := p.drv.Navigate(ctx, href); err != nil {
		return "", err
	}
	if err := p.clock.Sleep(ctx, detailSettlePause); err != nil {
		return "", err
	}
	if _, err := p.ProgressiveScroll(ctx, detailScroll); err != nil {
		return "", err
	}
	if _, err := p.ExpandSeeMore(ctx); err != nil {
		return "", err
	}
	html, err := p.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	doc, err := pagetext.Parse(html)
	if err != nil {
		return "", err
	}
	return doc.MainText(), nil
}
