// Package refs holds the static reference tables that resolve upstream
// trade-method and lot-status identifiers to display names. The tables are
// bundled with the binary and can be replaced from a JSON file so updates
// do not require a rebuild.
package refs

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Table resolves reference IDs to Russian display names. Safe for
// concurrent use; the maps are replaced wholesale on Load.
type Table struct {
	mu           sync.RWMutex
	tradeMethods map[int]string
	lotStatuses  map[int]string
}

// Builtin returns a table seeded with the identifiers the goszakup APIs
// commonly return.
func Builtin() *Table {
	return &Table{
		tradeMethods: map[int]string{
			1:   "Открытый конкурс",
			2:   "Запрос ценовых предложений",
			3:   "Из одного источника по несостоявшимся закупкам",
			5:   "Аукцион",
			6:   "Из одного источника путем прямого заключения договора",
			7:   "Через товарные биржи",
			31:  "Конкурс с предварительным квалификационным отбором",
			32:  "Закупки жилища",
			50:  "Открытый конкурс (строительство)",
			121: "Специальный порядок",
		},
		lotStatuses: map[int]string{
			110: "Проект",
			210: "Опубликован",
			220: "Опубликован (прием заявок)",
			230: "Опубликован (дополнение заявок)",
			240: "Рассмотрение заявок",
			250: "Завершен",
			260: "Отменен",
			310: "Не состоялся",
			340: "Завершен (итоги подведены)",
			350: "Действует договор",
		},
	}
}

type fileSchema struct {
	TradeMethods map[string]string `json:"trade_methods"`
	LotStatuses  map[string]string `json:"lot_statuses"`
}

// Load replaces both tables from a JSON file of the shape
// {"trade_methods": {"1": "..."}, "lot_statuses": {"210": "..."}}.
func (t *Table) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read refs file: %w", err)
	}
	var schema fileSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fmt.Errorf("decode refs file: %w", err)
	}
	tm := make(map[int]string, len(schema.TradeMethods))
	for k, v := range schema.TradeMethods {
		id, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("trade method id %q: %w", k, err)
		}
		tm[id] = v
	}
	ls := make(map[int]string, len(schema.LotStatuses))
	for k, v := range schema.LotStatuses {
		id, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("lot status id %q: %w", k, err)
		}
		ls[id] = v
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(tm) > 0 {
		t.tradeMethods = tm
	}
	if len(ls) > 0 {
		t.lotStatuses = ls
	}
	return nil
}

// TradeMethod resolves a trade-method ID; unknown IDs fall back to the
// numeric form so the value stays displayable.
func (t *Table) TradeMethod(id int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.tradeMethods[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// LotStatus resolves a lot-status ID with the same fallback.
func (t *Table) LotStatus(id int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.lotStatuses[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}
