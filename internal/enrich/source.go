package enrich

import "context"

// Candidate 是某个数据源找到的候选商品信息。
type Candidate struct {
	Title       string
	Description string
	Brand       string
	Ingredients string
	AgeRange    string
	ImageURLs   []string

	Source     string  // 数据源名称
	SourceURL  string  // 命中的商品页 URL
	MatchScore float64 // 与查询词的匹配度 [0,1]
}

// Source 是单个补全数据源。
//
// 未命中返回 (nil, nil)；反爬拦截返回包装了 ErrBlocked 的错误。
type Source interface {
	Name() string
	// SearchBarcode 按条码精确检索。
	SearchBarcode(ctx context.Context, barcode string) (*Candidate, error)
	// SearchName 按名称模糊检索，返回的候选已带相对 query 的 MatchScore。
	SearchName(ctx context.Context, query string) (*Candidate, error)
}
