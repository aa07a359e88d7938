package report

import (
	"strings"
	"testing"
	"time"
)

func TestStoreSaveAndRead(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := s.Save("NVDA", "2026-08-28", SectionTraderDecision, "FINAL TRANSACTION PROPOSAL: **BUY**"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Read("NVDA", "2026-08-28", SectionTraderDecision)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "FINAL TRANSACTION PROPOSAL: **BUY**" {
		t.Errorf("Read = %q", got)
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Save("NVDA", "2026-08-28", SectionFinalDecision, "hold"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("NVDA", "2026-08-28", SectionFinalDecision, "buy"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Read("NVDA", "2026-08-28", SectionFinalDecision)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "buy" {
		t.Errorf("Read = %q, want latest content", got)
	}
}

func TestStoreSections(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sections := map[string]string{
		SectionMarketReport:  "uptrend",
		SectionFinalDecision: "buy",
	}
	if err := s.SaveAll("AAPL", "2026-08-28", sections); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	got, err := s.Sections("AAPL", "2026-08-28")
	if err != nil {
		t.Fatalf("Sections: %v", err)
	}
	want := []string{SectionFinalDecision, SectionMarketReport}
	if len(got) != len(want) {
		t.Fatalf("Sections = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sections[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStoreSectionsEmptyForUnknownDate(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, err := s.Sections("TSLA", "2026-01-01")
	if err != nil {
		t.Fatalf("Sections: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Sections = %v, want empty", got)
	}
}

func TestStoreRejectsPathTraversal(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, bad := range []string{"..", "a/b", "x y", ""} {
		if err := s.Save(bad, "2026-08-28", SectionFinalDecision, "x"); err == nil {
			t.Errorf("Save accepted subject %q", bad)
		}
		if _, err := s.Read("NVDA", bad, SectionFinalDecision); err == nil {
			t.Errorf("Read accepted date %q", bad)
		}
	}
}

func TestRender(t *testing.T) {
	out := Render("NVDA", "2026-08-28", map[string]string{
		SectionMarketReport:  "strong uptrend",
		SectionFinalDecision: "BUY with a trailing stop",
	})
	for _, want := range []string{"NVDA", "2026-08-28", "MARKET ANALYSIS", "strong uptrend", "FINAL DECISION", "BUY with a trailing stop"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render missing %q", want)
		}
	}
	if strings.Contains(out, "SENTIMENT ANALYSIS") {
		t.Error("Render should skip missing sections")
	}
}

func TestFormatDuration(t *testing.T) {
	for _, tt := range []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30.0s"},
		{90 * time.Second, "1.5m"},
		{2 * time.Hour, "2.0h"},
	} {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
