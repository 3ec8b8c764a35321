package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 商品状态。新建商品默认进入哪个状态由同步策略配置决定。
const (
	StatusDraft     = "draft"     // 草稿，待人工审核
	StatusPublished = "published" // 已发布
)

// Product 表示本地目录中的一个商品条目。
//
// SupplierSKU 是供应商分配的外部编码，存在时全局唯一，是同步的对账键；
// 人工录入的商品该字段为空。Barcodes 与 Images 以 JSON 数组字符串落库。
type Product struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"` // 内部 ID (UUID)
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Handle      string  `gorm:"type:varchar(100);uniqueIndex;not null"` // URL slug (唯一)
	SupplierSKU *string `gorm:"type:varchar(64);uniqueIndex"`           // 供应商编码（对账键，可空）

	Title         string `gorm:"not null"`   // 展示标题（可被补全覆盖）
	SupplierTitle string // 供应商原始名称（不加工）
	Description   string `gorm:"type:text"` // 商品描述
	Brand         string // 品牌
	Ingredients   string `gorm:"type:text"` // 成分
	AgeRange      string // 适用年龄段
	Barcodes      string `gorm:"type:text"` // 条码列表 (JSON 数组)

	Price          float64  `gorm:"type:decimal(10,2)"` // 销售价
	CompareAtPrice *float64 `gorm:"type:decimal(10,2)"` // 划线价（仅原价高于售价时有值）
	Stock          int      `gorm:"default:0"`          // 库存数量

	Images    string `gorm:"type:text"` // 图片链接列表 (JSON 数组)
	Thumbnail string // 主图链接

	EnrichmentMatchScore *float64 // 补全匹配置信度 (0.0–1.0，未补全为空)
	EnrichmentSource     string   // 补全数据来源站点
	ManualEntry          bool     `gorm:"default:false"` // 是否人工维护（限制供应商覆盖）

	LastSyncedAt *time.Time // 上次与供应商同步的时间
	Status       string     `gorm:"type:varchar(16);default:draft;not null"` // draft / published
}

// BeforeCreate 在插入前补齐 UUID 主键。
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// BarcodeList 解析 Barcodes JSON 字段，解析失败或为空返回 nil。
func (p *Product) BarcodeList() []string {
	return decodeStringList(p.Barcodes)
}

// SetBarcodes 序列化条码列表到 Barcodes 字段。
func (p *Product) SetBarcodes(barcodes []string) {
	p.Barcodes = encodeStringList(barcodes)
}

// ImageList 解析 Images JSON 字段，解析失败或为空返回 nil。
func (p *Product) ImageList() []string {
	return decodeStringList(p.Images)
}

// SetImages 序列化图片链接列表到 Images 字段。
func (p *Product) SetImages(urls []string) {
	p.Images = encodeStringList(urls)
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeStringList(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}
