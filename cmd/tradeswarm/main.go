// TradeSwarm — Multi-Agent LLM Debate Framework for Trading Decisions
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/tradeswarm/api"
	"github.com/seenimoa/tradeswarm/internal/config"
	"github.com/seenimoa/tradeswarm/internal/memory"
	"github.com/seenimoa/tradeswarm/internal/reflection"
	"github.com/seenimoa/tradeswarm/internal/report"
	"github.com/seenimoa/tradeswarm/internal/trading"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tradeswarm",
	Short: "TradeSwarm — Multi-Agent LLM Debate Framework for Trading Decisions",
	Long: `TradeSwarm
A Go-based multi-agent LLM system that runs analyst research, bull/bear
debates, and risk evaluation to produce a reviewed trading decision, with
situational memory that learns from past outcomes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reflectCmd)
	rootCmd.AddCommand(memoriesCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("TradeSwarm %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [ticker]",
	Short: "Run the full multi-agent analysis pipeline on a stock",
	Long: `Run the full pipeline: analyst fan-out, bull/bear research debate,
trading decision, and risk debate. Reports are saved per ticker and date.

Examples:
  tradeswarm analyze NVDA
  tradeswarm analyze NVDA --date 2026-08-28 --strategy handoff
  tradeswarm analyze AAPL --mode competitive --rounds 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.ToUpper(args[0])

		tradeDate, _ := cmd.Flags().GetString("date")
		if tradeDate == "" {
			tradeDate = time.Now().Format("2006-01-02")
		}
		if _, err := time.Parse("2006-01-02", tradeDate); err != nil {
			return fmt.Errorf("invalid date %q; use YYYY-MM-DD", tradeDate)
		}
		if strategy, _ := cmd.Flags().GetString("strategy"); strategy != "" {
			cfg.Debate.Strategy = strategy
		}
		if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
			cfg.Debate.Mode = mode
		}
		if rounds, _ := cmd.Flags().GetInt("rounds"); rounds > 0 {
			cfg.Debate.Rounds = rounds
		}

		ctx := context.Background()
		env, err := trading.BuildEnv(ctx, cfg)
		if err != nil {
			return err
		}

		fmt.Printf("🔍 Analyzing %s for %s (%s strategy, %s mode)\n",
			ticker, tradeDate, cfg.Debate.Strategy, cfg.Debate.Mode)

		out, err := env.Graph.Propagate(ctx, ticker, tradeDate)
		if err != nil {
			return err
		}

		fmt.Println(report.Render(ticker, tradeDate, sectionsOf(out)))
		fmt.Printf("Completed in %s\n", report.FormatDuration(out.Duration))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("date", "", "trade date (YYYY-MM-DD, default today)")
	analyzeCmd.Flags().String("strategy", "", "debate strategy override (swarm, handoff)")
	analyzeCmd.Flags().String("mode", "", "coordination mode override (collaborative, competitive, hybrid)")
	analyzeCmd.Flags().Int("rounds", 0, "refinement rounds override")
}

// sectionsOf maps a pipeline outcome to its standard report sections.
func sectionsOf(out *trading.Outcome) map[string]string {
	return map[string]string{
		report.SectionMarketReport:       out.State.MarketReport,
		report.SectionSentimentReport:    out.State.SentimentReport,
		report.SectionNewsReport:         out.State.NewsReport,
		report.SectionFundamentalsReport: out.State.FundamentalsReport,
		report.SectionInvestmentPlan:     out.State.InvestmentDebate.Judge,
		report.SectionTraderDecision:     out.State.TraderPlan,
		report.SectionFinalDecision:      out.FinalDecision,
	}
}

// --- Reflect Command ---

var reflectCmd = &cobra.Command{
	Use:   "reflect [ticker] [date]",
	Short: "Reflect on a past decision and store the lessons",
	Long: `Load the saved reports for a ticker and date, reflect on each
decision component against the realized outcome, and append the lessons
to the matching situational memory collections.

Example:
  tradeswarm reflect NVDA 2026-08-28 --outcome "returns: -3.2% over 5 days"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.ToUpper(args[0])
		tradeDate := args[1]
		outcome, _ := cmd.Flags().GetString("outcome")
		if outcome == "" {
			return fmt.Errorf("--outcome is required")
		}

		ctx := context.Background()
		env, err := trading.BuildEnv(ctx, cfg)
		if err != nil {
			return err
		}

		state, err := stateFromReports(env.Reports, ticker, tradeDate)
		if err != nil {
			return err
		}

		fmt.Printf("🧠 Reflecting on %s (%s)\n\n", ticker, tradeDate)
		reflections := env.Reflection.ReflectOnAll(ctx, state, outcome)
		for _, component := range reflection.Components {
			fmt.Printf("── %s ──\n%s\n\n", strings.ToUpper(component), reflections[component])
		}
		return nil
	},
}

func init() {
	reflectCmd.Flags().String("outcome", "", "realized performance results (required)")
}

// stateFromReports reconstructs the decision state from saved report sections.
func stateFromReports(store *report.Store, ticker, tradeDate string) (reflection.State, error) {
	var state reflection.State

	sections, err := store.Sections(ticker, tradeDate)
	if err != nil {
		return state, err
	}
	if len(sections) == 0 {
		return state, fmt.Errorf("no saved reports for %s on %s; run analyze first", ticker, tradeDate)
	}

	slots := map[string]*string{
		report.SectionMarketReport:       &state.MarketReport,
		report.SectionSentimentReport:    &state.SentimentReport,
		report.SectionNewsReport:         &state.NewsReport,
		report.SectionFundamentalsReport: &state.FundamentalsReport,
		report.SectionInvestmentPlan:     &state.InvestmentDebate.Judge,
		report.SectionTraderDecision:     &state.TraderPlan,
		report.SectionFinalDecision:      &state.RiskDebate.Judge,
	}
	for _, section := range sections {
		slot, ok := slots[section]
		if !ok {
			continue
		}
		content, err := store.Read(ticker, tradeDate, section)
		if err != nil {
			return state, err
		}
		*slot = content
	}
	return state, nil
}

// --- Memories Command ---

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Inspect and manage situational memory collections",
}

var memoriesQueryCmd = &cobra.Command{
	Use:   "query [collection] [situation]",
	Short: "Find past situations similar to the given one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		if k <= 0 {
			k = cfg.Reflection.MaxMatches
		}

		ctx := context.Background()
		env, err := trading.BuildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		store, ok := env.Stores[args[0]]
		if !ok {
			return fmt.Errorf("unknown memory collection %q (have: %s)", args[0], collectionNames(env))
		}

		matches, err := store.Query(ctx, args[1], k)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No similar situations found.")
			return nil
		}
		for i, m := range matches {
			fmt.Printf("%d. [%.3f] %s\n   → %s\n", i+1, m.SimilarityScore, m.MatchedSituation, m.Recommendation)
		}
		return nil
	},
}

var memoriesAddCmd = &cobra.Command{
	Use:   "add [collection] [situation] [recommendation]",
	Short: "Append a situation/recommendation pair to a collection",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		env, err := trading.BuildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		store, ok := env.Stores[args[0]]
		if !ok {
			return fmt.Errorf("unknown memory collection %q (have: %s)", args[0], collectionNames(env))
		}

		inserted, err := store.Append(ctx, []memory.Pair{{Situation: args[1], Recommendation: args[2]}})
		if err != nil {
			return err
		}
		total, err := store.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Inserted %d record(s) into %s (total: %d)\n", inserted, args[0], total)
		return nil
	},
}

var memoriesCountCmd = &cobra.Command{
	Use:   "count [collection]",
	Short: "Show record counts, for one collection or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		env, err := trading.BuildEnv(ctx, cfg)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			store, ok := env.Stores[args[0]]
			if !ok {
				return fmt.Errorf("unknown memory collection %q (have: %s)", args[0], collectionNames(env))
			}
			n, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d\n", args[0], n)
			return nil
		}
		for name, store := range env.Stores {
			n, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-20s %d\n", name, n)
		}
		return nil
	},
}

func init() {
	memoriesQueryCmd.Flags().Int("k", 0, "number of matches to return")
	memoriesCmd.AddCommand(memoriesQueryCmd)
	memoriesCmd.AddCommand(memoriesAddCmd)
	memoriesCmd.AddCommand(memoriesCountCmd)
}

func collectionNames(env *trading.Env) string {
	names := make([]string, 0, len(env.Stores))
	for name := range env.Stores {
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// --- Report Command ---

var reportCmd = &cobra.Command{
	Use:   "report [ticker] [date]",
	Short: "Show the saved report for a ticker and date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.ToUpper(args[0])
		tradeDate := args[1]

		store, err := report.NewStore(cfg.Report.Dir)
		if err != nil {
			return err
		}
		names, err := store.Sections(ticker, tradeDate)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return fmt.Errorf("no saved reports for %s on %s", ticker, tradeDate)
		}

		sections := make(map[string]string, len(names))
		for _, name := range names {
			content, err := store.Read(ticker, tradeDate, name)
			if err != nil {
				return err
			}
			sections[name] = content
		}
		fmt.Println(report.Render(ticker, tradeDate, sections))
		return nil
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := api.NewServer(cfg)
		if err != nil {
			return err
		}
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 Starting TradeSwarm API server on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  TradeSwarm — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		// Config summary
		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Provider:   %s (quick: %s, deep: %s)\n",
			cfg.LLM.Primary, cfg.LLM.QuickModel, cfg.LLM.DeepModel)
		fmt.Printf("    Embedding:      %s (model: %s)\n", cfg.Embedding.Primary, cfg.Embedding.Model)
		fmt.Printf("    Memory Backend: %s\n", cfg.Memory.Backend)
		fmt.Printf("    Debate:         %s strategy, %s mode, %d round(s)\n",
			cfg.Debate.Strategy, cfg.Debate.Mode, cfg.Debate.Rounds)
		fmt.Printf("    Report Dir:     %s\n", cfg.Report.Dir)
		fmt.Printf("    API Server:     %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		// API keys status
		fmt.Println("  API Keys:")
		keys := config.CheckAPIKeys(cfg)
		for _, k := range keys {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
