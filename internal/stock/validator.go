package stock

import (
	"context"
	"errors"
	"log/slog"

	"papastore/internal/pkg/metrics"
	"papastore/internal/supplier"
)

// SupplierClient 库存校验只需要单编码的实时查询。
type SupplierClient interface {
	FetchByCode(ctx context.Context, code string) (*supplier.Record, error)
}

// Info 单个商品的实时库存快照，不落库。
//
// Quantity 为 nil 表示查询失败、当前库存未知。
type Info struct {
	SupplierSKU  string   `json:"supplier_sku"`
	Quantity     *int     `json:"quantity"`
	InStock      bool     `json:"in_stock"`
	CurrentPrice *float64 `json:"current_price"`
}

// CartItemCheck 待校验的购物车行。
type CartItemCheck struct {
	SupplierSKU       string `json:"supplier_sku"`
	RequestedQuantity int    `json:"requested_quantity"`
}

// CartItemValidation 单行校验结论。
type CartItemValidation struct {
	SupplierSKU       string   `json:"supplier_sku"`
	RequestedQuantity int      `json:"requested_quantity"`
	AvailableQuantity int      `json:"available_quantity"`
	Available         bool     `json:"available"`
	CurrentPrice      *float64 `json:"current_price"`
}

// CartValidationResult 整车校验结论。请求级临时对象。
type CartValidationResult struct {
	AllAvailable bool                 `json:"all_available"`
	Items        []CartItemValidation `json:"items"`
}

// Validator 面向结账场景的实时库存校验。
//
// 它绕过本地缓存直接打供应商 API，保证看到的是当下库存。
type Validator struct {
	client SupplierClient
	logger *slog.Logger
}

func NewValidator(client SupplierClient, logger *slog.Logger) *Validator {
	return &Validator{client: client, logger: logger}
}

// CheckStockRealTime 逐个 SKU 顺序查询实时库存。
//
// 单个 SKU 查询失败只影响自己的条目（数量未知、视为无货），不影响整批。
func (v *Validator) CheckStockRealTime(ctx context.Context, skus []string) map[string]Info {
	v.logger.Info("real-time stock check", slog.Int("skus", len(skus)))
	result := make(map[string]Info, len(skus))

	for _, sku := range skus {
		record, err := v.client.FetchByCode(ctx, sku)
		if errors.Is(err, supplier.ErrNotFound) {
			zero := 0
			result[sku] = Info{SupplierSKU: sku, Quantity: &zero, InStock: false}
			metrics.StockUpdatesTotal.WithLabelValues("not_found").Inc()
			continue
		}
		if err != nil {
			v.logger.Error("stock check failed",
				slog.String("sku", sku), slog.String("error", err.Error()))
			result[sku] = Info{SupplierSKU: sku, Quantity: nil, InStock: false}
			metrics.StockUpdatesTotal.WithLabelValues("error").Inc()
			continue
		}

		qty := record.QuantityValue()
		price := record.SalesPriceValue()
		result[sku] = Info{
			SupplierSKU:  sku,
			Quantity:     &qty,
			InStock:      qty > 0,
			CurrentPrice: &price,
		}
		metrics.StockUpdatesTotal.WithLabelValues("ok").Inc()
	}
	return result
}

// ValidateCart 校验购物车各行的请求数量是否可满足。
//
// 纯推导，无副作用，可重复调用。任一行不可满足则 AllAvailable 为 false。
func (v *Validator) ValidateCart(ctx context.Context, items []CartItemCheck) CartValidationResult {
	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.SupplierSKU)
	}
	stockBySKU := v.CheckStockRealTime(ctx, skus)

	validations := make([]CartItemValidation, 0, len(items))
	allAvailable := true

	for _, item := range items {
		info, ok := stockBySKU[item.SupplierSKU]
		available := ok && info.Quantity != nil && *info.Quantity >= item.RequestedQuantity
		if !available {
			allAvailable = false
		}

		availableQty := 0
		if info.Quantity != nil {
			availableQty = *info.Quantity
		}
		validations = append(validations, CartItemValidation{
			SupplierSKU:       item.SupplierSKU,
			RequestedQuantity: item.RequestedQuantity,
			AvailableQuantity: availableQty,
			Available:         available,
			CurrentPrice:      info.CurrentPrice,
		})
	}

	return CartValidationResult{AllAvailable: allAvailable, Items: validations}
}
