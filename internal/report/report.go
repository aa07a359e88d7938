// Package report persists the textual artifacts of a debate session (analyst
// reports, investment plan, trader decision, final verdict) under a
// per-subject, per-date directory, and renders a terminal-friendly summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Section names for the standard artifacts of one session.
const (
	SectionMarketReport       = "market_report"
	SectionSentimentReport    = "sentiment_report"
	SectionNewsReport         = "news_report"
	SectionFundamentalsReport = "fundamentals_report"
	SectionInvestmentPlan     = "investment_plan"
	SectionTraderDecision     = "trader_decision"
	SectionFinalDecision      = "final_decision"
)

// AllSections returns the standard sections in display order.
func AllSections() []string {
	return []string{
		SectionMarketReport,
		SectionSentimentReport,
		SectionNewsReport,
		SectionFundamentalsReport,
		SectionInvestmentPlan,
		SectionTraderDecision,
		SectionFinalDecision,
	}
}

var sectionTitles = map[string]string{
	SectionMarketReport:       "MARKET ANALYSIS",
	SectionSentimentReport:    "SENTIMENT ANALYSIS",
	SectionNewsReport:         "NEWS ANALYSIS",
	SectionFundamentalsReport: "FUNDAMENTALS ANALYSIS",
	SectionInvestmentPlan:     "INVESTMENT PLAN",
	SectionTraderDecision:     "TRADER DECISION",
	SectionFinalDecision:      "FINAL DECISION",
}

// Store persists report sections as Markdown files under
// <dir>/<subject>/<date>/<section>.md.
type Store struct {
	dir string
}

// NewStore creates the report store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("report: empty store directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: creating store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes one section's content for a subject and date.
func (s *Store) Save(subject, date, section, content string) error {
	p, err := s.path(subject, date, section)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("report: creating report directory: %w", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("report: writing %s: %w", section, err)
	}
	return nil
}

// SaveAll writes every section in the map, stopping at the first failure.
func (s *Store) SaveAll(subject, date string, sections map[string]string) error {
	for section, content := range sections {
		if err := s.Save(subject, date, section, content); err != nil {
			return err
		}
	}
	return nil
}

// Read returns one section's content for a subject and date.
func (s *Store) Read(subject, date, section string) (string, error) {
	p, err := s.path(subject, date, section)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("report: reading %s: %w", section, err)
	}
	return string(data), nil
}

// Sections lists the section names saved for a subject and date, sorted.
func (s *Store) Sections(subject, date string) ([]string, error) {
	if err := validateKey(subject); err != nil {
		return nil, err
	}
	if err := validateKey(date); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, subject, date))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("report: listing sections: %w", err)
	}
	sections := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".md"); ok && !e.IsDir() {
			sections = append(sections, name)
		}
	}
	sort.Strings(sections)
	return sections, nil
}

func (s *Store) path(subject, date, section string) (string, error) {
	for _, key := range []string{subject, date, section} {
		if err := validateKey(key); err != nil {
			return "", err
		}
	}
	return filepath.Join(s.dir, subject, date, section+".md"), nil
}

// validateKey rejects path components that could escape the store directory.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("report: empty path component")
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("report: invalid character %q in %q", r, key)
		}
	}
	if key == "." || key == ".." {
		return fmt.Errorf("report: invalid path component %q", key)
	}
	return nil
}

// Render produces a terminal-friendly summary of a session's sections.
func Render(subject, date string, sections map[string]string) string {
	var sb strings.Builder
	line := strings.Repeat("═", 60)
	thinLine := strings.Repeat("─", 60)

	sb.WriteString("\n" + line + "\n")
	sb.WriteString(fmt.Sprintf("  %s — Trading Analysis\n", subject))
	sb.WriteString(fmt.Sprintf("  Date: %s\n", date))
	sb.WriteString(line + "\n")

	for _, section := range AllSections() {
		content, ok := sections[section]
		if !ok || content == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n  ■ %s\n", sectionTitles[section]))
		for _, l := range strings.Split(strings.TrimSpace(content), "\n") {
			sb.WriteString("  " + l + "\n")
		}
		sb.WriteString(thinLine + "\n")
	}

	sb.WriteString("\n" + line + "\n")
	sb.WriteString("  Disclaimer: This report is AI-generated for educational purposes.\n")
	sb.WriteString("  Not financial advice.\n")
	sb.WriteString(line + "\n")

	return sb.String()
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
