package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sales-insights/internal/config"
	"sales-insights/internal/engine"
	"sales-insights/internal/models"
	"sales-insights/internal/server"
	"sales-insights/internal/services"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Test helper to create a dashboard over a small dataset
func newTestDashboard() *services.Dashboard {
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }
	records := []models.Record{
		{Date: day(1, 5), CustomerID: "7", Gender: "Female", Age: 17, ProductVariant: "Mango", Location: "Delhi", Channel: "Online", PaymentType: "Card", UnitsPurchased: 2, UnitPrice: 5, TotalSaleValue: 10, FeedbackScore: 4},
		{Date: day(1, 6), CustomerID: "9", Gender: "Male", Age: 18, ProductVariant: "Berry", Location: "Mumbai", Channel: "Retail", PaymentType: "Cash", UnitsPurchased: 4, UnitPrice: 5, TotalSaleValue: 20, FeedbackScore: 3},
		{Date: day(2, 1), CustomerID: "7", Gender: "", Age: 60, ProductVariant: "Mango", Location: "Delhi", Channel: "Online", PaymentType: "UPI", UnitsPurchased: 1, UnitPrice: 5, TotalSaleValue: 5, FeedbackScore: 5},
	}
	return services.NewDashboard(engine.NewDataset(records), "test.csv", services.DashboardOptions{}, testLogger())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Security: config.SecurityConfig{
			EnableCSRF:      true,
			EnableRateLimit: true,
			RateLimitRPS:    1000,
			RateLimitBurst:  1000,
			AllowedOrigins:  []string{"http://localhost:8084"},
			TrustedProxies:  []string{"127.0.0.1"},
		},
	}
}

// Integration tests for HTTP routes
func TestServer_Routes(t *testing.T) {
	handler := newHandler(testConfig(), newTestDashboard(), testLogger())

	tests := []struct {
		method         string
		path           string
		body           string
		expectedStatus int
		contentType    string
	}{
		{"GET", "/", "", http.StatusOK, "text/html"},
		{"GET", "/health", "", http.StatusOK, "application/json"},
		{"GET", "/admin/stats", "", http.StatusOK, "application/json"},
		{"GET", "/api/filters", "", http.StatusOK, "application/json"},
		{"GET", "/api/summary?product=Mango", "", http.StatusOK, "application/json"},
		{"GET", "/api/views/monthly_sales", "", http.StatusOK, "application/json"},
		{"GET", "/api/views/unknown", "", http.StatusNotFound, "application/json"},
		{"GET", "/api/tabs/customers", "", http.StatusOK, "application/json"},
		{"POST", "/api/report", `{"channels":["Online"]}`, http.StatusOK, "application/json"},
		{"POST", "/api/aggregate", `{"spec":{"group_by":["gender"],"metric":"total_sale_value","reducer":"sum"}}`, http.StatusOK, "application/json"},
		{"GET", "/api/summary?start=yesterday", "", http.StatusBadRequest, "application/json"},
		{"GET", "/sse/tabs/advanced", "", http.StatusOK, "text/event-stream"},
		{"GET", "/sse/refresh-all", "", http.StatusOK, "text/event-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))

			handler.ServeHTTP(w, r)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.expectedStatus, w.Body.String())
			}

			ct := w.Header().Get("Content-Type")
			if !strings.Contains(ct, tt.contentType) {
				t.Errorf("content-type = %q, want %q", ct, tt.contentType)
			}

			if w.Header().Get("X-Request-ID") == "" {
				t.Error("every response should carry a request id")
			}

			// Validate JSON responses
			if tt.contentType == "application/json" {
				var result any
				if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
					t.Errorf("invalid json: %v", err)
				}
			}
		})
	}
}

// Test JSON API responses
func TestServer_JSONResponse(t *testing.T) {
	handler := newHandler(testConfig(), newTestDashboard(), testLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/views/sales_by_variant", nil)
	handler.ServeHTTP(w, r)

	var response struct {
		Success bool              `json:"success"`
		Data    models.ViewResult `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}

	if !response.Success {
		t.Error("expected success=true in response")
	}

	view := response.Data
	if view.Name != "sales_by_variant" || view.Title != "Sales by Product Variant" {
		t.Errorf("unexpected view header: %q %q", view.Name, view.Title)
	}
	if view.Aggregate == nil || len(view.Aggregate.Rows) != 2 {
		t.Fatalf("expected two product rows, got %+v", view.Aggregate)
	}
	if row := view.Aggregate.Rows[0]; row.Key[0] != "Mango" || row.Value != 15 {
		t.Errorf("first row = %+v, want Mango 15", row)
	}
}

// Test error handling for invalid methods
func TestServer_ErrorHandling(t *testing.T) {
	srv := server.NewServer(newTestDashboard(), testLogger(), &server.TemplateHandlers{
		Dashboard: newDashboardHandler(newTestDashboard()),
	})

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"POST", "/api/summary", http.StatusMethodNotAllowed},
		{"PUT", "/", http.StatusMethodNotAllowed},
		{"DELETE", "/health", http.StatusMethodNotAllowed},
		{"GET", "/api/report", http.StatusMethodNotAllowed},
		{"GET", "/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, tt.path, nil)

			srv.ServeHTTP(w, r)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestServer_CrossOriginPostRejected(t *testing.T) {
	handler := newHandler(testConfig(), newTestDashboard(), testLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/report", strings.NewReader(`{}`))
	r.Header.Set("Origin", "http://evil.example")

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// Test dashboard template rendering
func TestDashboardTemplate(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	// Test the template handler directly
	newDashboardHandler(newTestDashboard())(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cc := w.Header().Get("Cache-Control"); cc != cacheMaxAge {
		t.Errorf("cache-control = %q, want %q", cc, cacheMaxAge)
	}

	body := w.Body.String()
	if !strings.Contains(body, pageTitle) {
		t.Error("dashboard should contain title")
	}

	// Check for every tab and the filter sidebar
	expectedComponents := []string{
		"Executive Summary",
		"Sales Trends",
		"Product Insights",
		"Customer Insights",
		"Channel Analysis",
		"Advanced Analytics",
		"filters.products",
		`<option value="Mango">`,
		"Include unknown gender",
	}

	for _, component := range expectedComponents {
		if !strings.Contains(body, component) {
			t.Errorf("dashboard should contain '%s'", component)
		}
	}
}
