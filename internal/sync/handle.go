package sync

import (
	"regexp"
	"strings"
)

// 保加利亚语西里尔字母到拉丁的简易转写表。
var translitTable = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d",
	'е': "e", 'ж': "zh", 'з': "z", 'и': "i", 'й': "y",
	'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh",
	'щ': "sht", 'ъ': "a", 'ь': "y", 'ю': "yu", 'я': "ya",
}

var (
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	dashRun       = regexp.MustCompile(`-+`)
)

// GenerateHandle 从供应商名称生成 URL slug。
//
// 流程：转写→小写→去非法字符→空白折叠为连字符→拼接供应商编码保证唯一→
// 截断到 100 字符。名称为空时退化为 "product-<code>"。
func GenerateHandle(name, code string) string {
	if strings.TrimSpace(name) == "" {
		return truncate("product-"+code, 100)
	}

	handle := Transliterate(strings.ToLower(name))
	handle = nonSlugChars.ReplaceAllString(handle, "")
	handle = whitespaceRun.ReplaceAllString(handle, "-")
	handle = dashRun.ReplaceAllString(handle, "-")
	handle = strings.Trim(handle, "-")

	if handle == "" {
		handle = "product"
	}

	return truncate(handle+"-"+code, 100)
}

// Transliterate 把西里尔字符逐个替换为拉丁序列，其余字符原样保留。
func Transliterate(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if latin, ok := translitTable[r]; ok {
			b.WriteString(latin)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
