package enrich

import (
	"regexp"
	"strings"
)

// Similarity 计算两个标题的 Jaccard 词相似度。
//
// 按空白分词、小写化后取 |交集|/|并集|；任一侧为空串或并集为空时为 0。
// 满足对称性，且 Similarity(a, a) == 1。
func Similarity(a, b string) float64 {
	wordsA := tokenize(a)
	wordsB := tokenize(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	union := len(wordsB)
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

var (
	slashCodePattern = regexp.MustCompile(`\d{3,}/\d+`)          // 形如 080/26 的货号
	dotCodePattern   = regexp.MustCompile(`\d{4}\.\d+`)          // 形如 0526.001 的货号
	unitPattern      = regexp.MustCompile(`\d+\s*(бр|мл|гр|кг|л|м)\.*`) // 数量+单位
	trailingComma    = regexp.MustCompile(`,\s*$`)
	spaceRun         = regexp.MustCompile(`\s+`)
)

// CleanSearchQuery 清洗供应商名称，得到更好的搜索词。
//
// 去掉内部货号、数量单位片段，并把已知的品牌别名规范化
// （"Авент 080/26 Залъгалки Ultra Air" → "Philips Avent Залъгалки Ultra Air"）。
func CleanSearchQuery(query string) string {
	if query == "" {
		return ""
	}

	cleaned := slashCodePattern.ReplaceAllString(query, "")
	cleaned = dotCodePattern.ReplaceAllString(cleaned, "")
	cleaned = unitPattern.ReplaceAllString(cleaned, "")
	cleaned = trailingComma.ReplaceAllString(cleaned, "")
	cleaned = spaceRun.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	cleaned = strings.ReplaceAll(cleaned, "Авент", "Philips Avent")
	cleaned = strings.ReplaceAll(cleaned, "авент", "Philips Avent")

	return cleaned
}
