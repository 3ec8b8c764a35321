package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"papastore/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.SupplierConfig{
		BaseURL:        baseURL,
		Username:       "store",
		Password:       "secret",
		LocationID:     "1",
		PriceID:        "2",
		FanOutWorkers:  4,
		RequestTimeout: 5 * time.Second,
		RateLimit:      1000,
		RateBurst:      1000,
	}, testLogger())
}

func tokenHandler(tokenCalls *atomic.Int32, expiresIn int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostFormValue("Username") != "store" ||
			r.PostFormValue("Password") != "secret" ||
			r.PostFormValue("grant_type") != "password" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "bearer",
			"expires_in":   expiresIn,
		})
	}
}

func TestClient_AuthenticateCachesToken(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls, 3600))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		token, err := c.Authenticate(ctx)
		if err != nil {
			t.Fatalf("authenticate: %v", err)
		}
		if token != "tok-123" {
			t.Fatalf("token = %q", token)
		}
	}

	if n := tokenCalls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want 1", n)
	}
}

func TestClient_AuthenticateRejectsBadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Authenticate(context.Background()); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestClient_FetchBySearch(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls, 3600))
	mux.HandleFunc("/api/GetAllData", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("locationid") != "1" || q.Get("priceid") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode([]Record{
			{Code: q.Get("search"), Name: "Продукт", SalesPrice: "12.50", Qtty: "4"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	records, err := c.FetchBySearch(context.Background(), "100")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 || records[0].Code != "100" {
		t.Fatalf("records = %+v", records)
	}
	if records[0].SalesPriceValue() != 12.50 {
		t.Errorf("price = %v", records[0].SalesPriceValue())
	}
}

func TestClient_FetchByCodeExactMatch(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls, 3600))
	mux.HandleFunc("/api/GetAllData", func(w http.ResponseWriter, r *http.Request) {
		// 搜索是模糊的，返回前缀命中的多条记录
		_ = json.NewEncoder(w).Encode([]Record{
			{Code: "1001", Name: "близък"},
			{Code: "100", Name: "точен"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	rec, err := c.FetchByCode(context.Background(), "100")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.Name != "точен" {
		t.Errorf("matched %q, want exact code match", rec.Name)
	}

	if _, err := c.FetchByCode(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_UnauthorizedInvalidatesToken(t *testing.T) {
	var tokenCalls atomic.Int32
	var dataCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls, 3600))
	mux.HandleFunc("/api/GetAllData", func(w http.ResponseWriter, r *http.Request) {
		if dataCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]Record{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	if _, err := c.FetchBySearch(ctx, "x"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication on 401, got %v", err)
	}

	// 401 后缓存令牌必须作废，下一次调用重新交换
	if _, err := c.FetchBySearch(ctx, "x"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if n := tokenCalls.Load(); n != 2 {
		t.Errorf("token endpoint called %d times, want 2", n)
	}
}

func TestClient_FetchByCodeRangeFanOut(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls, 3600))
	mux.HandleFunc("/api/GetAllData", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("search")
		if code == "3" {
			// 单个编码失败只跳过，不中断整个区间
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode([]Record{{Code: code, Name: "N" + code}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	records, err := c.FetchByCodeRange(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("fetch range: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4 (code 3 failed)", len(records))
	}

	seen := map[string]bool{}
	for _, rec := range records {
		seen[rec.Code] = true
	}
	if seen["3"] {
		t.Error("failed code should be absent")
	}
}

func TestClient_FetchByRowRange(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls, 3600))
	mux.HandleFunc("/api/GetAllDataByPart", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("fromrow") != "1" || q.Get("torow") != "1000" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `null`) // 上游偶尔回 null 而不是 []
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	records, err := c.FetchByRowRange(context.Background(), 1, 1000)
	if err != nil {
		t.Fatalf("fetch rows: %v", err)
	}
	if records == nil {
		t.Fatal("expected empty slice, got nil")
	}

	if _, err := c.FetchByRowRange(context.Background(), 0, 10); err == nil {
		t.Error("expected error for fromrow < 1")
	}
}
