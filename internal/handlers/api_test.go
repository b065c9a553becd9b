package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sales-insights/internal/engine"
	"sales-insights/internal/models"
	"sales-insights/internal/services"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func createTestDashboard() *services.Dashboard {
	records := []models.Record{
		{Date: day(2024, 1, 5), CustomerID: "7", Gender: "Female", Age: 17, ProductVariant: "Mango", Location: "Delhi", Channel: "Online", PaymentType: "Card", UnitsPurchased: 2, UnitPrice: 5, TotalSaleValue: 10, FeedbackScore: 4},
		{Date: day(2024, 1, 6), CustomerID: "9", Gender: "Male", Age: 18, ProductVariant: "Berry", Location: "Mumbai", Channel: "Retail", PaymentType: "Cash", UnitsPurchased: 4, UnitPrice: 5, TotalSaleValue: 20, FeedbackScore: 3},
		{Date: day(2024, 2, 1), CustomerID: "7", Gender: "", Age: 60, ProductVariant: "Mango", Location: "Delhi", Channel: "Online", PaymentType: "UPI", UnitsPurchased: 1, UnitPrice: 5, TotalSaleValue: 5, FeedbackScore: 5},
		{Date: day(2024, 3, 10), CustomerID: "11", Gender: "Female", Age: 42, ProductVariant: "Citrus", Location: "Pune", Channel: "Retail", PaymentType: "Card", UnitsPurchased: 3, UnitPrice: 6, TotalSaleValue: 18, FeedbackScore: 2},
	}
	return services.NewDashboard(engine.NewDataset(records), "test.csv", services.DashboardOptions{}, testLogger())
}

type envelope struct {
	Success bool                `json:"success"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if data != nil && env.Success {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}

func TestNewAPIHandlers(t *testing.T) {
	dashboard := createTestDashboard()
	handlers := NewAPIHandlers(dashboard, testLogger())

	if handlers.dashboard != dashboard {
		t.Error("NewAPIHandlers() should set dashboard field")
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var data map[string]string
	env := decodeEnvelope(t, w, &data)
	if !env.Success || data["status"] != "healthy" {
		t.Errorf("unexpected health response: %+v", data)
	}
	if _, err := time.Parse(time.RFC3339, data["timestamp"]); err != nil {
		t.Errorf("timestamp should be RFC3339: %v", err)
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	var stats models.DatasetStats
	decodeEnvelope(t, w, &stats)
	if stats.Records != 4 || stats.Source != "test.csv" || len(stats.Tabs) != 6 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestAPIHandlers_HandleFilters(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleFilters(w, httptest.NewRequest(http.MethodGet, "/api/filters", nil))

	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=300" {
		t.Errorf("expected cache-control 'public, max-age=300', got %q", cc)
	}

	var data struct {
		Options  models.FilterOptions  `json:"options"`
		Defaults models.FilterCriteria `json:"defaults"`
	}
	decodeEnvelope(t, w, &data)
	if strings.Join(data.Options.Products, ",") != "Mango,Berry,Citrus" {
		t.Errorf("products = %v", data.Options.Products)
	}
	if !data.Defaults.IncludeUnknownGender {
		t.Error("defaults should include unknown gender when the data has some")
	}
}

func TestAPIHandlers_HandleSummary(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	tests := []struct {
		name         string
		query        string
		wantStatus   int
		wantSales    float64
		wantRows     int
		wantErrorKey string
	}{
		{"defaults", "", http.StatusOK, 53, 4, ""},
		{"one product", "?product=Mango", http.StatusOK, 15, 2, ""},
		{"two products comma separated", "?product=Mango,Citrus", http.StatusOK, 33, 3, ""},
		{"repeated keys", "?channel=Online&channel=Retail", http.StatusOK, 53, 4, ""},
		{"empty selection", "?payment=", http.StatusOK, 0, 0, ""},
		{"date range", "?start=2024-01-06&end=2024-02-01", http.StatusOK, 25, 2, ""},
		{"inverted range", "?start=2024-03-01&end=2024-01-01", http.StatusOK, 0, 0, ""},
		{"bad date", "?start=05/01/2024", http.StatusBadRequest, 0, 0, "VALIDATION_ERROR"},
		{"bad number", "?feedback_min=high", http.StatusBadRequest, 0, 0, "VALIDATION_ERROR"},
		{"bad bool", "?unknown_gender=maybe", http.StatusBadRequest, 0, 0, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handlers.HandleSummary(w, httptest.NewRequest(http.MethodGet, "/api/summary"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			var summary models.Summary
			env := decodeEnvelope(t, w, &summary)
			if tt.wantErrorKey != "" {
				if env.Error == nil || env.Error.Code != tt.wantErrorKey {
					t.Errorf("expected error code %s, got %+v", tt.wantErrorKey, env.Error)
				}
				return
			}
			if summary.TotalSales != tt.wantSales || summary.Transactions != tt.wantRows {
				t.Errorf("sales = %v rows = %d, want %v and %d", summary.TotalSales, summary.Transactions, tt.wantSales, tt.wantRows)
			}
		})
	}
}

func TestAPIHandlers_HandleView(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/views/sales_by_location?location=Delhi,Pune", nil)
	req.SetPathValue("name", "sales_by_location")
	w := httptest.NewRecorder()

	handlers.HandleView(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, max-age=60" {
		t.Errorf("expected cache-control 'private, max-age=60', got %q", cc)
	}

	var view models.ViewResult
	decodeEnvelope(t, w, &view)
	if view.Kind != models.KindAggregate || view.Aggregate == nil {
		t.Fatalf("unexpected view: %+v", view)
	}
	rows := view.Aggregate.Rows
	if len(rows) != 2 || rows[0].Key[0] != "Delhi" || rows[0].Value != 15 || rows[1].Value != 18 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestAPIHandlers_HandleView_Unknown(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/views/nope", nil)
	req.SetPathValue("name", "nope")
	w := httptest.NewRecorder()

	handlers.HandleView(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	env := decodeEnvelope(t, w, nil)
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("unexpected error: %+v", env.Error)
	}
}

func TestAPIHandlers_HandleTab(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/tabs/executive?gender=Female&unknown_gender=false", nil)
	req.SetPathValue("tab", services.TabExecutive)
	w := httptest.NewRecorder()

	handlers.HandleTab(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var tab models.TabResult
	decodeEnvelope(t, w, &tab)
	if tab.Rows != 2 || tab.Summary == nil || tab.Summary.TotalSales != 28 {
		t.Errorf("unexpected tab: rows=%d summary=%+v", tab.Rows, tab.Summary)
	}
	if len(tab.Views) != 3 {
		t.Errorf("expected 3 views, got %d", len(tab.Views))
	}
}

func TestAPIHandlers_HandleTab_Timeout(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/tabs/advanced", nil).WithContext(ctx)
	req.SetPathValue("tab", services.TabAdvanced)
	w := httptest.NewRecorder()

	handlers.HandleTab(w, req)

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status %d, got %d", http.StatusGatewayTimeout, w.Code)
	}
}

func TestAPIHandlers_HandleReport(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantRows   int
	}{
		{"empty body uses defaults", "", http.StatusOK, 4},
		{"absent fields use defaults", `{}`, http.StatusOK, 4},
		{"product filter", `{"products":["Mango"]}`, http.StatusOK, 2},
		{"empty list selects nothing", `{"channels":[]}`, http.StatusOK, 0},
		{"feedback range", `{"feedback_min":3,"feedback_max":4}`, http.StatusOK, 2},
		{"unknown field", `{"colour":"red"}`, http.StatusBadRequest, 0},
		{"malformed json", `{"products":`, http.StatusBadRequest, 0},
		{"bad date", `{"end":"March"}`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			handlers.HandleReport(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var report models.Report
			decodeEnvelope(t, w, &report)
			if report.Rows != tt.wantRows {
				t.Errorf("rows = %d, want %d", report.Rows, tt.wantRows)
			}
			if len(report.Tabs) != 6 {
				t.Errorf("expected 6 tabs, got %d", len(report.Tabs))
			}
		})
	}
}

func TestAPIHandlers_HandleAggregate(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(), testLogger())

	body := `{"criteria":{"genders":["Female"]},"spec":{"group_by":["product_variant"],"metric":"customer_id","reducer":"count_distinct"}}`
	w := httptest.NewRecorder()
	handlers.HandleAggregate(w, httptest.NewRequest(http.MethodPost, "/api/aggregate", strings.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var res models.AggregateResult
	decodeEnvelope(t, w, &res)
	if len(res.Rows) != 2 || res.Rows[0].Key[0] != "Mango" || res.Rows[0].Value != 1 {
		t.Errorf("unexpected rows: %+v", res.Rows)
	}

	invalid := `{"spec":{"group_by":["product_variant"],"metric":"channel","reducer":"mean"}}`
	w = httptest.NewRecorder()
	handlers.HandleAggregate(w, httptest.NewRequest(http.MethodPost, "/api/aggregate", strings.NewReader(invalid)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	env := decodeEnvelope(t, w, nil)
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("unexpected error: %+v", env.Error)
	}
}
