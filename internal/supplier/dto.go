package supplier

import (
	"strconv"
	"strings"
)

// Record 是供应商数据端点返回的一条商品记录。
//
// 字段名与上游 JSON 保持一致。上游把价格和数量都当字符串返回，
// 且偶有脏数据，数值一律通过容错的 helper 读取。
type Record struct {
	UCode         int     `json:"UCode"`
	Code          string  `json:"Code"`
	StoreCode     string  `json:"StoreCode"`
	StoreName     string  `json:"StoreName"`
	Name          string  `json:"Name"`
	Mea           string  `json:"Mea"` // 计量单位
	SalesPrice    string  `json:"SalesPrice"`
	BaseSalePrice float64 `json:"BaseSalePrice"` // 折前价
	Discount      string  `json:"Discount"`
	Qtty          string  `json:"Qtty"` // 在库数量
	Barcode       string  `json:"Barcode"`
	Description   string  `json:"Description"`
	URL           string  `json:"Url"`
	CategoryName  string  `json:"CategoryName"`
	Producer      string  `json:"Producer"`
	Active        int     `json:"Active"`
	KindType      int     `json:"KindType"`
	TagNames      string  `json:"TagNames"`
	TypeMaterial  string  `json:"TypeMaterial"`
	Tax           int     `json:"Tax"`
	MinKol        string  `json:"MinKol"`
	CanSales      string  `json:"CanSales"`
}

// SalesPriceValue 解析销售价，无法解析返回 0。
func (r *Record) SalesPriceValue() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.SalesPrice), 64)
	if err != nil {
		return 0
	}
	return v
}

// QuantityValue 解析在库数量，无法解析返回 0。
func (r *Record) QuantityValue() int {
	v, err := strconv.Atoi(strings.TrimSpace(r.Qtty))
	if err != nil {
		return 0
	}
	return v
}

// BarcodeList 拆分条码字段。上游可能用逗号拼多个条码。
func (r *Record) BarcodeList() []string {
	if strings.TrimSpace(r.Barcode) == "" {
		return nil
	}
	parts := strings.Split(r.Barcode, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
