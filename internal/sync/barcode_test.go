package sync

import (
	"context"
	"strings"
	"testing"

	"papastore/internal/config"
	"papastore/internal/model"
)

func newBarcodeReconciler(store *fakeStore) *Reconciler {
	return NewReconciler(&fakeSupplier{}, store, config.SyncConfig{}, testLogger())
}

func TestImportBarcodes_MergesIntoExisting(t *testing.T) {
	store := newFakeStore()
	sku := "100"
	existing := &model.Product{SupplierSKU: &sku, Handle: "p-100", Title: "Шише"}
	existing.SetBarcodes([]string{"111"})
	store.products["100"] = existing

	csv := "sku,name,mea,barcode\n" +
		"100,Шише,бр,222\n" +
		"100,Шише,бр,111\n" // 已有条码不重复插入
	r := newBarcodeReconciler(store)

	result, err := r.ImportBarcodes(context.Background(), strings.NewReader(csv), DefaultBarcodeImportOptions())
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if result.Updated != 1 {
		t.Errorf("updated = %d, want 1", result.Updated)
	}
	got := store.products["100"].BarcodeList()
	// 新条码排在前面，原有顺序保持
	if len(got) != 2 || got[0] != "222" || got[1] != "111" {
		t.Errorf("barcodes = %v", got)
	}
	if sum := result.Created + result.Updated + result.Skipped + result.Errors; sum != result.Total {
		t.Errorf("conservation violated: %+v", result)
	}
}

func TestImportBarcodes_UnchangedCountsSkipped(t *testing.T) {
	store := newFakeStore()
	sku := "100"
	existing := &model.Product{SupplierSKU: &sku, Handle: "p-100"}
	existing.SetBarcodes([]string{"111"})
	store.products["100"] = existing

	csv := "sku,name,mea,barcode\n100,Шише,бр,111\n"
	r := newBarcodeReconciler(store)

	result, err := r.ImportBarcodes(context.Background(), strings.NewReader(csv), DefaultBarcodeImportOptions())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Skipped != 1 || result.Updated != 0 {
		t.Errorf("result = %+v, want 1 skipped", result)
	}
}

func TestImportBarcodes_CreateMissing(t *testing.T) {
	store := newFakeStore()
	csv := "sku,name,mea,barcode\n200,Къща Щъркел,бр,333\n"

	opts := DefaultBarcodeImportOptions()
	opts.CreateMissing = true
	r := newBarcodeReconciler(store)

	result, err := r.ImportBarcodes(context.Background(), strings.NewReader(csv), opts)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}

	created := store.products["200"]
	if created == nil {
		t.Fatal("product not created")
	}
	if created.Title != "Къща Щъркел" {
		t.Errorf("title = %q", created.Title)
	}
	if created.Handle != "kashta-shtarkel-200" {
		t.Errorf("handle = %q", created.Handle)
	}
	if created.Status != model.StatusDraft {
		t.Errorf("status = %q, want draft", created.Status)
	}
	if got := created.BarcodeList(); len(got) != 1 || got[0] != "333" {
		t.Errorf("barcodes = %v", got)
	}
}

func TestImportBarcodes_UnknownSkuSkippedByDefault(t *testing.T) {
	store := newFakeStore()
	csv := "sku,name,mea,barcode\n999,Непознат,бр,444\n"
	r := newBarcodeReconciler(store)

	result, err := r.ImportBarcodes(context.Background(), strings.NewReader(csv), DefaultBarcodeImportOptions())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Skipped != 1 || result.Created != 0 {
		t.Errorf("result = %+v, want 1 skipped", result)
	}
	if len(store.products) != 0 {
		t.Errorf("products created without create_missing: %d", len(store.products))
	}
}

func TestImportBarcodes_RowProblemsCounted(t *testing.T) {
	store := newFakeStore()
	sku := "100"
	store.products["100"] = &model.Product{SupplierSKU: &sku, Handle: "p-100"}

	csv := "sku,name,mea,barcode\n" +
		"100,Шише\n" + // 列数不足
		"100,Шише,бр,\n" + // 条码为空
		"100,Шише,бр,555\n"
	r := newBarcodeReconciler(store)

	result, err := r.ImportBarcodes(context.Background(), strings.NewReader(csv), DefaultBarcodeImportOptions())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Errors != 1 {
		t.Errorf("errors = %d, want 1", result.Errors)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if result.Updated != 1 {
		t.Errorf("updated = %d, want 1", result.Updated)
	}
	if sum := result.Created + result.Updated + result.Skipped + result.Errors; sum != result.Total {
		t.Errorf("conservation violated: %+v", result)
	}
}

func TestImportBarcodes_QuotedFieldsAndDelimiter(t *testing.T) {
	store := newFakeStore()
	csv := "sku;name;mea;barcode\n" +
		"300;\"Шише; 240 мл\";бр;666\n"

	opts := DefaultBarcodeImportOptions()
	opts.Delimiter = ';'
	opts.CreateMissing = true
	r := newBarcodeReconciler(store)

	result, err := r.ImportBarcodes(context.Background(), strings.NewReader(csv), opts)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}
	if store.products["300"].Title != "Шише; 240 мл" {
		t.Errorf("title = %q", store.products["300"].Title)
	}
}
