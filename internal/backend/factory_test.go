package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eaccountant/internal/config"
	"eaccountant/internal/source/memory"
	"eaccountant/internal/source/rest"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	cfg := &config.Config{
		SourceBackend:      config.BackendREST,
		SourceBaseURL:      "https://erp.example.com",
		SourceToken:        "secret",
		SourceTimeout:      3 * time.Second,
		SalesFieldAmount:   "revenue",
		GoogleSalesSheet:   "Sales",
		DataDir:            "/srv/data",
		SalesFieldCategory: "product",
	}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if got.Type != RESTBackend || got.BaseURL != cfg.SourceBaseURL || got.Timeout != 3*time.Second {
		t.Errorf("config = %+v", got)
	}
	if got.Fields.Amount != "revenue" || got.Fields.Category != "product" {
		t.Errorf("fields = %+v", got.Fields)
	}

	cfg.SourceBackend = "sqlite"
	if _, err := FromAppConfig(cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"rest", Config{Type: RESTBackend, BaseURL: "http://localhost:8000"}, false},
		{"rest without url", Config{Type: RESTBackend}, true},
		{"sheets without spreadsheet", Config{Type: SheetsBackend}, true},
		{"unknown", Config{Type: "ftp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	dir := t.TempDir()
	seed := `[{"product":"Sugar","month":"2024-01","total_sales":"1500.00","total_quantity":3}]`
	if err := os.WriteFile(filepath.Join(dir, "monthly_sales.json"), []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if _, ok := res.Reader.(*memory.Store); !ok {
		t.Fatalf("Reader = %T, want *memory.Store", res.Reader)
	}
	if res.Publisher == nil {
		t.Error("memory backend should publish to itself without a spreadsheet")
	}

	batch, err := res.Reader.MonthlySales(context.Background())
	if err != nil {
		t.Fatalf("MonthlySales: %v", err)
	}
	if batch.Len() != 1 {
		t.Errorf("records = %d, want 1", batch.Len())
	}
}

func TestCreateBackend_REST(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:    RESTBackend,
		BaseURL: "http://localhost:8000",
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if _, ok := res.Reader.(*rest.Client); !ok {
		t.Fatalf("Reader = %T, want *rest.Client", res.Reader)
	}
	if res.Publisher != nil {
		t.Errorf("Publisher = %T, want nil without a spreadsheet", res.Publisher)
	}
}

func TestCreateBackend_Invalid(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "nope"}); err == nil {
		t.Error("expected error for invalid backend")
	}
}
