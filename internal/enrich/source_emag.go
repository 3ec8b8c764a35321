package enrich

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const emagBaseURL = "https://www.emag.bg"

// EmagSource 抓取 emag.bg。
//
// 详情页的规格表里常有年龄段和成分两行，是三个源里唯一
// 提供这两个字段的。
type EmagSource struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func NewEmagSource(fetcher Fetcher, logger *slog.Logger) *EmagSource {
	return &EmagSource{fetcher: fetcher, logger: logger}
}

func (s *EmagSource) Name() string { return "emag.bg" }

func (s *EmagSource) SearchBarcode(ctx context.Context, barcode string) (*Candidate, error) {
	return s.search(ctx, barcode, "")
}

func (s *EmagSource) SearchName(ctx context.Context, query string) (*Candidate, error) {
	return s.search(ctx, query, query)
}

func (s *EmagSource) search(ctx context.Context, term, scoreAgainst string) (*Candidate, error) {
	searchURL := emagBaseURL + "/search/" + url.PathEscape(term)
	doc, err := s.fetcher.GetDocument(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	var best *Candidate
	doc.Find(".card-v2-wrapper").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		titleLink := card.Find("a.card-v2-title").First()
		title := strings.TrimSpace(titleLink.Text())
		link, _ := titleLink.Attr("href")
		if title == "" || link == "" {
			return true
		}
		cand := &Candidate{
			Title:     title,
			Source:    s.Name(),
			SourceURL: absoluteURL(emagBaseURL, link),
		}
		if thumb, ok := card.Find(".card-v2-thumb img").First().Attr("src"); ok {
			cand.ImageURLs = append(cand.ImageURLs, thumb)
		}
		if scoreAgainst == "" {
			// 条码检索认首个结果。
			best = cand
			return false
		}
		cand.MatchScore = Similarity(scoreAgainst, title)
		if best == nil || cand.MatchScore > best.MatchScore {
			best = cand
		}
		return true
	})
	if best == nil {
		return nil, nil
	}

	if err := s.fillDetail(ctx, best); err != nil {
		s.logger.Warn("emag detail fetch failed",
			slog.String("url", best.SourceURL),
			slog.String("error", err.Error()))
	}
	return best, nil
}

func (s *EmagSource) fillDetail(ctx context.Context, cand *Candidate) error {
	doc, err := s.fetcher.GetDocument(ctx, cand.SourceURL)
	if err != nil {
		return err
	}

	cand.Description = strings.TrimSpace(doc.Find(".product-page-description-text").First().Text())
	cand.Brand = strings.TrimSpace(doc.Find("[class*=brand] a").First().Text())

	doc.Find(".product-gallery img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			cand.ImageURLs = appendUnique(cand.ImageURLs, src)
		}
	})

	doc.Find(".specifications-table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		key := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		value := strings.TrimSpace(cells.Eq(1).Text())
		if value == "" {
			return
		}
		switch {
		case strings.Contains(key, "възраст") || strings.Contains(key, "age"):
			cand.AgeRange = value
		case strings.Contains(key, "съставки") || strings.Contains(key, "ingredient"):
			cand.Ingredients = value
		}
	})
	return nil
}

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return base + "/" + strings.TrimPrefix(href, "/")
}

var _ Source = (*EmagSource)(nil)
