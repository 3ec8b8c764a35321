package enrich

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const gladenBaseURL = "https://shop.gladen.bg"

// GladenSource 抓取 shop.gladen.bg，兜底数据源。
//
// 该站前端换过几版，商品卡片和标题的选择器各有两套，都要试。
type GladenSource struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func NewGladenSource(fetcher Fetcher, logger *slog.Logger) *GladenSource {
	return &GladenSource{fetcher: fetcher, logger: logger}
}

func (s *GladenSource) Name() string { return "gladen.bg" }

func (s *GladenSource) SearchBarcode(ctx context.Context, barcode string) (*Candidate, error) {
	return s.search(ctx, barcode, "")
}

func (s *GladenSource) SearchName(ctx context.Context, query string) (*Candidate, error) {
	return s.search(ctx, query, query)
}

func (s *GladenSource) search(ctx context.Context, term, scoreAgainst string) (*Candidate, error) {
	searchURL := gladenBaseURL + "/search?q=" + url.QueryEscape(term)
	doc, err := s.fetcher.GetDocument(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	var best *Candidate
	doc.Find(".product-card, .product-item").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		titleSel := card.Find(".product-title, .product-name, h3 a, h4 a").First()
		title := strings.TrimSpace(titleSel.Text())
		if title == "" {
			return true
		}
		link, _ := titleSel.Attr("href")
		if link == "" {
			link, _ = card.Find("a").First().Attr("href")
		}
		if link == "" {
			return true
		}
		cand := &Candidate{
			Title:     title,
			Source:    s.Name(),
			SourceURL: absoluteURL(gladenBaseURL, link),
		}
		img := card.Find("img").First()
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, _ = img.Attr("data-src")
		}
		if src != "" {
			cand.ImageURLs = append(cand.ImageURLs, src)
		}
		if scoreAgainst == "" {
			best = cand
			return false
		}
		cand.MatchScore = Similarity(scoreAgainst, title)
		if best == nil || cand.MatchScore > best.MatchScore {
			best = cand
		}
		return true
	})
	return best, nil
}

var _ Source = (*GladenSource)(nil)
