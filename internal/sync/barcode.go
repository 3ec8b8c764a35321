package sync

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"papastore/internal/model"
	"papastore/internal/pkg/metrics"
)

// BarcodeImportOptions 描述条码 CSV 的列布局。
//
// 默认布局来自供应商导出的文件：sku,name,mea,barcode。
type BarcodeImportOptions struct {
	Delimiter     rune
	HasHeader     bool
	SKUColumn     int
	NameColumn    int
	BarcodeColumn int
	CreateMissing bool
}

// DefaultBarcodeImportOptions 返回供应商导出文件的默认列布局。
func DefaultBarcodeImportOptions() BarcodeImportOptions {
	return BarcodeImportOptions{
		Delimiter:     ',',
		HasHeader:     true,
		SKUColumn:     0,
		NameColumn:    1,
		BarcodeColumn: 3,
	}
}

// ImportBarcodes 从 CSV 批量导入条码并合并进目录。
//
// 同一 SKU 的多行条码先在内存里聚合，已有商品做去重前插（新条码排前面，
// 补全检索优先试它们）；本地不存在的 SKU 按 CreateMissing 决定是否以
// 草稿价格 0 创建，否则计为 Skipped。计数单位：解析失败和空行按行计，
// 落库结果按唯一 SKU 计。
func (r *Reconciler) ImportBarcodes(ctx context.Context, reader io.Reader, opts BarcodeImportOptions) (*Result, error) {
	start := time.Now()
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}

	result := &Result{}
	order, barcodesBySKU, namesBySKU := r.parseBarcodeCSV(reader, opts, result)
	r.logger.Info("barcode csv parsed",
		slog.Int("unique_skus", len(order)),
		slog.Int("row_errors", result.Errors))

	existing, err := r.store.FindByExternalSKUs(ctx, order)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("barcode_import", "error").Inc()
		return nil, err
	}

	notFound := 0
	for _, sku := range order {
		if ctx.Err() != nil {
			break
		}
		result.Total++
		newBarcodes := barcodesBySKU[sku]

		product, ok := existing[sku]
		if !ok {
			if !opts.CreateMissing {
				notFound++
				result.Skipped++
				continue
			}
			created, err := r.createFromBarcodeRow(ctx, sku, namesBySKU[sku], newBarcodes)
			if err != nil {
				r.logger.Error("barcode import create failed",
					slog.String("sku", sku), slog.String("error", err.Error()))
				result.Errors++
				continue
			}
			existing[sku] = created
			result.Created++
			metrics.SyncProductsTotal.WithLabelValues("created").Inc()
			continue
		}

		merged, changed := mergeBarcodes(product.BarcodeList(), newBarcodes)
		if !changed {
			result.Skipped++
			continue
		}
		product.SetBarcodes(merged)
		if err := r.store.Upsert(ctx, product); err != nil {
			r.logger.Error("barcode import update failed",
				slog.String("sku", sku), slog.String("error", err.Error()))
			result.Errors++
			continue
		}
		result.Updated++
		metrics.SyncProductsTotal.WithLabelValues("updated").Inc()
	}

	if notFound > 0 {
		r.logger.Warn("barcode import skipped unknown skus", slog.Int("count", notFound))
	}
	r.finishRun("barcode_import", result, start)
	return result, nil
}

// parseBarcodeCSV 逐行解析并按 SKU 聚合。返回保持文件顺序的 SKU 列表、
// sku→条码列表 和 sku→名称（首次出现为准）。行级问题直接计入 result。
func (r *Reconciler) parseBarcodeCSV(reader io.Reader, opts BarcodeImportOptions, result *Result) ([]string, map[string][]string, map[string]string) {
	cr := csv.NewReader(reader)
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var order []string
	barcodesBySKU := make(map[string][]string)
	namesBySKU := make(map[string]string)

	line := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Total++
			result.Errors++
			continue
		}
		if opts.HasHeader && line == 1 {
			continue
		}

		maxCol := opts.SKUColumn
		if opts.BarcodeColumn > maxCol {
			maxCol = opts.BarcodeColumn
		}
		if len(fields) <= maxCol {
			result.Total++
			result.Errors++
			continue
		}

		sku := strings.TrimSpace(fields[opts.SKUColumn])
		barcode := strings.TrimSpace(fields[opts.BarcodeColumn])
		if sku == "" || barcode == "" {
			result.Total++
			result.Skipped++
			continue
		}

		if _, seen := barcodesBySKU[sku]; !seen {
			order = append(order, sku)
		}
		barcodesBySKU[sku] = append(barcodesBySKU[sku], barcode)

		if opts.NameColumn < len(fields) {
			if name := strings.TrimSpace(fields[opts.NameColumn]); name != "" {
				if _, ok := namesBySKU[sku]; !ok {
					namesBySKU[sku] = name
				}
			}
		}
	}
	return order, barcodesBySKU, namesBySKU
}

func (r *Reconciler) createFromBarcodeRow(ctx context.Context, sku, name string, barcodes []string) (*model.Product, error) {
	title := name
	if title == "" {
		title = fmt.Sprintf("Product %s", sku)
	}
	skuCopy := sku
	product := &model.Product{
		SupplierSKU: &skuCopy,
		Handle:      GenerateHandle(name, sku),
		Title:       title,
		Status:      model.StatusDraft,
	}
	product.SetBarcodes(barcodes)
	if err := r.store.Upsert(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// mergeBarcodes 把新条码去重后插到已有列表前面，保持原有顺序。
func mergeBarcodes(existing, incoming []string) ([]string, bool) {
	known := make(map[string]struct{}, len(existing))
	for _, bc := range existing {
		known[bc] = struct{}{}
	}

	var fresh []string
	for _, bc := range incoming {
		if _, ok := known[bc]; ok {
			continue
		}
		known[bc] = struct{}{}
		fresh = append(fresh, bc)
	}
	if len(fresh) == 0 {
		return existing, false
	}
	return append(fresh, existing...), true
}
