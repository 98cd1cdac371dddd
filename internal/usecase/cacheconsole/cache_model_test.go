package cacheconsole

import (
	"strings"
	"testing"
)

func TestKeysLoadedClampsSelection(t *testing.T) {
	m := &cacheModel{selectedIndex: 5}

	updated, _ := m.Update(keysLoadedMsg{keys: []string{"ep:a", "ep:b"}})
	model := updated.(*cacheModel)

	if model.selectedIndex != 1 {
		t.Fatalf("selectedIndex = %d, want 1", model.selectedIndex)
	}
	if !strings.Contains(model.status, "2 keys") {
		t.Fatalf("status = %q", model.status)
	}
}

func TestKeysLoadedEmptyClearsDetail(t *testing.T) {
	m := &cacheModel{
		keys:      []string{"ep:a"},
		hasDetail: true,
	}

	updated, _ := m.Update(keysLoadedMsg{})
	model := updated.(*cacheModel)

	if model.hasDetail {
		t.Fatal("detail should be cleared when the store is empty")
	}
	if model.status != "store is empty" {
		t.Fatalf("status = %q", model.status)
	}
}

func TestValueLoadedIgnoresStaleSelection(t *testing.T) {
	m := &cacheModel{
		keys:          []string{"ep:a", "ep:b"},
		selectedIndex: 0,
	}

	updated, _ := m.Update(valueLoadedMsg{key: "ep:b", value: `{"x":1}`, found: true})
	model := updated.(*cacheModel)

	if model.hasDetail {
		t.Fatal("value for a no longer selected key must be dropped")
	}
}

func TestValueLoadedForCurrentSelection(t *testing.T) {
	m := &cacheModel{
		keys:          []string{"ep:a"},
		selectedIndex: 0,
	}

	updated, _ := m.Update(valueLoadedMsg{key: "ep:a", value: `{"x":1}`, found: true})
	model := updated.(*cacheModel)

	if !model.hasDetail || model.detailKey != "ep:a" {
		t.Fatalf("detail = %v %q", model.hasDetail, model.detailKey)
	}
}

func TestTruncateValue(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := truncateValue(long, 10)
	if !strings.HasPrefix(got, "xxxxxxxxxx") || !strings.Contains(got, "truncated") {
		t.Fatalf("truncateValue = %q", got)
	}

	if truncateValue("short", 10) != "short" {
		t.Fatal("short values must pass through")
	}
}

func TestPrettyJSONFallsBackOnInvalidInput(t *testing.T) {
	if got := prettyJSON("not json"); got != "not json" {
		t.Fatalf("prettyJSON = %q", got)
	}
	if got := prettyJSON(`{"a":1}`); !strings.Contains(got, "\"a\": 1") {
		t.Fatalf("prettyJSON = %q", got)
	}
}
