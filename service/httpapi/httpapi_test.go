package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/weftwork/weft/service"
)

func newTestBackend(t *testing.T, cfg service.Config, handler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.Target = server.URL
	b, err := New("api", cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b.(*Backend)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"UserProfile", "user-profile"},
		{"user_profile", "user-profile"},
		{"HTMLReport", "htmlreport"},
		{"café_menu", "cafe-menu"},
		{"weather.today", "weather-today"},
		{"already-kebab", "already-kebab"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCall_DeclaredOperationWins(t *testing.T) {
	var gotMethod, gotPath string
	b := newTestBackend(t, service.Config{
		Operations: []service.APIOperation{
			{ID: "getForecast", Method: "GET", Path: "/v2/forecast/{city}"},
		},
	}, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"high": 21})
	})

	got, err := b.Call(context.Background(), "getForecast", map[string]any{"city": "Oslo", "units": "c"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !got.Success {
		t.Fatalf("Call() = %+v, want success", got)
	}
	if gotMethod != http.MethodGet || gotPath != "/v2/forecast/Oslo" {
		t.Errorf("request = %s %s, want GET /v2/forecast/Oslo", gotMethod, gotPath)
	}
}

func TestCall_VerbInference(t *testing.T) {
	tests := []struct {
		procedure string
		method    string
		path      string
	}{
		{"getUserProfile", http.MethodGet, "/user-profile"},
		{"listOrders", http.MethodGet, "/orders"},
		{"fetch_report", http.MethodGet, "/report"},
		{"createOrder", http.MethodPost, "/order"},
		{"addItem", http.MethodPost, "/item"},
		{"updateSettings", http.MethodPut, "/settings"},
		{"setTheme", http.MethodPut, "/theme"},
		{"deleteOrder", http.MethodDelete, "/order"},
		{"removeItem", http.MethodDelete, "/item"},
		{"calculateTotals", http.MethodPost, "/calculate-totals"},
		// "settings" starts with "set" but has no word boundary
		{"settings", http.MethodPost, "/settings"},
	}
	b := &Backend{name: "api"}
	for _, tt := range tests {
		method, path := b.resolve(tt.procedure)
		if method != tt.method || path != tt.path {
			t.Errorf("resolve(%q) = %s %s, want %s %s", tt.procedure, method, path, tt.method, tt.path)
		}
	}
}

func TestCall_GetSendsLeftoversAsQuery(t *testing.T) {
	var gotQuery string
	b := newTestBackend(t, service.Config{}, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	})

	if _, err := b.Call(context.Background(), "listOrders", map[string]any{"page": 2, "status": "open"}); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if gotQuery != "page=2&status=open" {
		t.Errorf("query = %q, want page=2&status=open", gotQuery)
	}
}

func TestCall_PostSendsLeftoversAsBody(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	b := newTestBackend(t, service.Config{}, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		payload, _ := io.ReadAll(r.Body)
		json.Unmarshal(payload, &gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"o-1"}`))
	})

	got, err := b.Call(context.Background(), "createOrder", map[string]any{"sku": "A1", "qty": 3})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !got.Success {
		t.Fatalf("Call() = %+v, want success", got)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotBody["sku"] != "A1" {
		t.Errorf("body = %#v, want sku passed through", gotBody)
	}
}

func TestCall_MissingPathParameterIsFailure(t *testing.T) {
	b := newTestBackend(t, service.Config{
		Operations: []service.APIOperation{
			{ID: "getOrder", Method: "GET", Path: "/orders/{id}"},
		},
	}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server reached despite missing path parameter")
	})

	got, err := b.Call(context.Background(), "getOrder", map[string]any{})
	if err != nil {
		t.Fatalf("Call() error = %v, want failure result instead", err)
	}
	if got.Success {
		t.Fatal("Call() succeeded without the path parameter")
	}
}

func TestCall_RateLimitedIsFailureNotRetried(t *testing.T) {
	hits := 0
	b := newTestBackend(t, service.Config{}, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	got, err := b.Call(context.Background(), "listOrders", nil)
	if err != nil {
		t.Fatalf("Call() error = %v, want failure result instead", err)
	}
	if got.Success {
		t.Fatal("Call() succeeded on 429")
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want exactly 1 (no retry)", hits)
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["retryAfter"] != "120" {
		t.Errorf("Data = %#v, want retryAfter hint", got.Data)
	}
}

func TestCall_ErrorStatusCarriesBody(t *testing.T) {
	b := newTestBackend(t, service.Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no such order"}`))
	})

	got, err := b.Call(context.Background(), "getOrder", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got.Success {
		t.Fatal("Call() succeeded on 404")
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["message"] != "no such order" {
		t.Errorf("Data = %#v, want decoded error body", got.Data)
	}
}

func TestCall_BearerAuth(t *testing.T) {
	var gotAuth string
	b := newTestBackend(t, service.Config{
		Auth: &service.AuthConfig{Type: "bearer", EnvVar: "API_TOKEN"},
	}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	})
	b.credential = func(name string) string {
		if name != "API_TOKEN" {
			t.Errorf("credential lookup = %q, want API_TOKEN", name)
		}
		return "s3cret"
	}

	if _, err := b.Call(context.Background(), "listOrders", nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want Bearer s3cret", gotAuth)
	}
}

func TestCall_MissingCredentialIsFailure(t *testing.T) {
	b := newTestBackend(t, service.Config{
		Auth: &service.AuthConfig{Type: "bearer", EnvVar: "NOPE"},
	}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server reached without a credential")
	})
	b.credential = func(string) string { return "" }

	got, err := b.Call(context.Background(), "listOrders", nil)
	if err != nil {
		t.Fatalf("Call() error = %v, want failure result instead", err)
	}
	if got.Success {
		t.Fatal("Call() succeeded without the credential")
	}
}
