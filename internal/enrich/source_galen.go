package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const galenBaseURL = "https://galen.bg"

// GalenSource 抓取 galen.bg（Magento 商城）。
//
// 搜索结果页把商品列表塞进 dataLayer 的 dl4Objects 脚本里，
// 从那里取名称和品牌比解析 DOM 更稳。
type GalenSource struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func NewGalenSource(fetcher Fetcher, logger *slog.Logger) *GalenSource {
	return &GalenSource{fetcher: fetcher, logger: logger}
}

func (s *GalenSource) Name() string { return "galen.bg" }

func (s *GalenSource) SearchBarcode(ctx context.Context, barcode string) (*Candidate, error) {
	return s.search(ctx, barcode, "")
}

func (s *GalenSource) SearchName(ctx context.Context, query string) (*Candidate, error) {
	return s.search(ctx, query, query)
}

// search 抓取搜索页。scoreAgainst 非空时按标题相似度打分。
func (s *GalenSource) search(ctx context.Context, term, scoreAgainst string) (*Candidate, error) {
	searchURL := galenBaseURL + "/catalogsearch/result/?q=" + url.QueryEscape(term)
	doc, err := s.fetcher.GetDocument(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	item := extractDataLayerItem(doc)
	link, _ := doc.Find("a.product-item-link").First().Attr("href")
	if link == "" {
		link, _ = doc.Find(".product-item-photo").First().Attr("href")
	}

	title := item.Name
	if title == "" {
		title = strings.TrimSpace(doc.Find("a.product-item-link").First().Text())
	}
	if title == "" || link == "" {
		return nil, nil
	}

	cand := &Candidate{
		Title:     title,
		Brand:     item.Brand,
		Source:    s.Name(),
		SourceURL: link,
	}
	if scoreAgainst != "" {
		cand.MatchScore = Similarity(scoreAgainst, title)
	}

	if err := s.fillDetail(ctx, cand); err != nil {
		// 详情页失败不致命，搜索页已给出标题和品牌。
		s.logger.Warn("galen detail fetch failed",
			slog.String("url", link),
			slog.String("error", err.Error()))
	}
	return cand, nil
}

func (s *GalenSource) fillDetail(ctx context.Context, cand *Candidate) error {
	doc, err := s.fetcher.GetDocument(ctx, cand.SourceURL)
	if err != nil {
		return err
	}

	cand.Description = strings.TrimSpace(doc.Find(".product.attribute.description .value").First().Text())

	doc.Find(".product.media img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if ok && strings.Contains(src, "product") {
			cand.ImageURLs = appendUnique(cand.ImageURLs, src)
		}
	})
	return nil
}

// dataLayerItem 是 galen.bg 搜索页 dl4Objects 脚本里的单个商品。
type dataLayerItem struct {
	Name  string `json:"item_name"`
	Brand string `json:"item_brand"`
	ID    string `json:"item_id"`
}

// extractDataLayerItem 从页面脚本里抠出第一个商品对象。
//
// dl4Objects 的元素是 GTM 事件包装，商品嵌在 ecommerce.items 数组里，
// 所以先定位 "items":[ 再找 {"item_name": 开头的对象。
func extractDataLayerItem(doc *goquery.Document) dataLayerItem {
	var item dataLayerItem
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		start := strings.Index(text, "dl4Objects = [")
		if start < 0 {
			return true
		}
		payload := text[start+len("dl4Objects = ["):]
		if end := strings.Index(payload, "];"); end >= 0 {
			payload = payload[:end+1]
		}

		itemsStart := strings.Index(payload, `"items":[`)
		if itemsStart < 0 {
			return false
		}
		objStart := strings.Index(payload[itemsStart:], `{"item_name":`)
		if objStart < 0 {
			return false
		}
		objStart += itemsStart

		// 找到与首个 { 配对的 }，截出这个商品对象。
		depth := 0
		for i := objStart; i < len(payload); i++ {
			switch payload[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					_ = json.Unmarshal([]byte(payload[objStart:i+1]), &item)
					return false
				}
			}
		}
		return false
	})
	return item
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

var _ Source = (*GalenSource)(nil)
