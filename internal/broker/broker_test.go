package broker

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

func sampleDocument() []byte {
	return []byte(`{
		"brokers": [
			{
				"id": "ACME",
				"name": "Acme Execution",
				"certifications": [{"kind": "MiFID-II", "valid_from": "2020-01-01T00:00:00Z"}],
				"cost_model": {
					"default": {"Fixed": "1", "RateGross": "0.001", "PerContract": "0"},
					"overrides": {"7": {"Fixed": "0", "RateGross": "0.0005", "PerContract": "0.01"}}
				}
			}
		]
	}`)
}

func TestRegistryLoadFromFile(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/brokers.json"
	if err := os.WriteFile(path, sampleDocument(), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	meta, ok := r.Get("ACME")
	if !ok || meta.Name != "Acme Execution" {
		t.Fatalf("Get(ACME) = %+v, ok=%v", meta, ok)
	}
}

func TestCostModelResolveUsesOverride(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.loadFromJSON(sampleDocument()); err != nil {
		t.Fatalf("loadFromJSON: %v", err)
	}

	formula, ok := r.CostFormula("ACME", types.InstrumentIndex(7))
	if !ok {
		t.Fatal("CostFormula(ACME, 7) not found")
	}
	if !formula.PerContract.Equal(fixedpoint.MustParse("0.01")) {
		t.Errorf("PerContract = %s, want the override's 0.01", formula.PerContract)
	}
}

func TestCostModelResolveFallsBackToDefault(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.loadFromJSON(sampleDocument()); err != nil {
		t.Fatalf("loadFromJSON: %v", err)
	}

	formula, ok := r.CostFormula("ACME", types.InstrumentIndex(99))
	if !ok {
		t.Fatal("CostFormula(ACME, 99) not found")
	}
	if !formula.Fixed.Equal(fixedpoint.MustParse("1")) {
		t.Errorf("Fixed = %s, want the default's 1", formula.Fixed)
	}
}

func TestCostFormulaApplyIsIdempotent(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.loadFromJSON(sampleDocument()); err != nil {
		t.Fatalf("loadFromJSON: %v", err)
	}
	formula, _ := r.CostFormula("ACME", types.InstrumentIndex(99))

	gross := fixedpoint.MustParse("1000")
	contracts := fixedpoint.MustParse("5")
	a := formula.Apply(gross, contracts)
	b := formula.Apply(gross, contracts)
	if !a.Equal(b) {
		t.Fatalf("Apply is not idempotent: %s != %s", a, b)
	}
}

func TestCertificationActive(t *testing.T) {
	t.Parallel()
	validTo := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := Certification{
		Kind:      "MiFID-II",
		ValidFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:   &validTo,
	}
	if !cert.Active(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected cert active within its validity window")
	}
	if cert.Active(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected cert inactive after ValidTo")
	}
}

func TestRegistryLoadFromURL(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(sampleDocument())
	}))
	defer srv.Close()

	r := NewRegistry()
	if err := r.LoadFromURL(t.Context(), srv.URL); err != nil {
		t.Fatalf("LoadFromURL: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

