package refs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinResolution(t *testing.T) {
	tbl := Builtin()
	if got := tbl.TradeMethod(2); got != "Запрос ценовых предложений" {
		t.Fatalf("trade method 2 = %q", got)
	}
	if got := tbl.LotStatus(210); got != "Опубликован" {
		t.Fatalf("status 210 = %q", got)
	}
}

func TestNumericFallback(t *testing.T) {
	tbl := Builtin()
	if got := tbl.TradeMethod(9999); got != "9999" {
		t.Fatalf("unknown trade method = %q", got)
	}
	if got := tbl.LotStatus(1); got != "1" {
		t.Fatalf("unknown status = %q", got)
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.json")
	payload := `{"trade_methods":{"1":"Метод один","7":"Метод семь"},"lot_statuses":{"210":"Открыт"}}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write refs file: %v", err)
	}

	tbl := Builtin()
	if err := tbl.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := tbl.TradeMethod(7); got != "Метод семь" {
		t.Fatalf("trade method 7 = %q", got)
	}
	if got := tbl.LotStatus(210); got != "Открыт" {
		t.Fatalf("status 210 = %q", got)
	}
	// The override replaced the whole table; dropped entries fall back.
	if got := tbl.TradeMethod(2); got != "2" {
		t.Fatalf("trade method 2 = %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tbl := Builtin()
	if err := tbl.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file must fail")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(bad, []byte(`{"trade_methods":{"x":"oops"}}`), 0o644)
	if err := tbl.Load(bad); err == nil {
		t.Fatal("non-numeric id must fail")
	}
	// A failed load leaves the builtin table intact.
	if got := tbl.TradeMethod(1); got != "Открытый конкурс" {
		t.Fatalf("trade method 1 = %q", got)
	}
}
