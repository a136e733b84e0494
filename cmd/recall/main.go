package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/lumehq/recall/internal/config"
	"github.com/lumehq/recall/internal/consolidate"
	"github.com/lumehq/recall/internal/events"
	"github.com/lumehq/recall/internal/extract"
	"github.com/lumehq/recall/internal/llm"
	"github.com/lumehq/recall/internal/mcp"
	"github.com/lumehq/recall/internal/memory"
	"github.com/lumehq/recall/internal/policy"
	"github.com/lumehq/recall/internal/sanitize"
	"github.com/lumehq/recall/internal/schedule"
	"github.com/lumehq/recall/internal/score"
	"github.com/lumehq/recall/internal/store"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "remember":
		err = runRemember(args)
	case "facts":
		err = runFacts(args)
	case "get":
		err = runGet(args)
	case "suggestions":
		err = runSuggestions(args)
	case "confirm":
		err = runResolve(args, true)
	case "reject":
		err = runResolve(args, false)
	case "forget":
		err = runForget(args)
	case "export":
		err = runExport(args)
	case "consolidate":
		err = runConsolidate(args)
	case "sweep":
		err = runSweep(args)
	case "stats":
		err = runStats(args)
	case "serve":
		err = runServe(args)
	case "version", "--version", "-v":
		fmt.Printf("recall %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`recall — policy-gated personal memory

Usage: recall <command> [args]

Commands:
  remember <person> <utterance>   Evaluate an utterance for memorable facts
  facts <person>                  List active memories
  get <person> <key>              Look up one fact by key
  suggestions <person>            List pending consent suggestions
  confirm <id>                    Approve a pending suggestion
  reject <id>                     Decline a pending suggestion
  forget <person>                 Erase every record about a person
  export <person>                 Export all records as JSON
  consolidate [person]            Summarize and archive old memories
  sweep                           Remove expired memories now
  stats                           Show store counters
  serve                           Run the MCP server on stdio
  version                         Print the version

Config is read from ~/.recall/config.yaml; RECALL_* environment
variables override it.`)
}

// app bundles the wired subsystem for one command invocation.
type app struct {
	cfg    config.Config
	store  *store.Store
	engine *memory.Engine
	cons   *consolidate.Consolidator
	logger *zap.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	st, err := store.Open(store.Config{
		Path:        cfg.StorePath(),
		ArchivePath: cfg.ArchivePath(),
	})
	if err != nil {
		logger.Sync()
		return nil, err
	}

	opts := []extract.Option{}
	if cfg.LLM.Enabled {
		client := llm.New(cfg.LLM.Config)
		opts = append(opts, extract.WithAssisted(extract.NewLLMExtractor(client), extract.NewLimiter(cfg.Limiter)))
	}
	pipeline := extract.NewPipeline(opts...)

	log := events.Open(cfg.EventLogPath())
	engine, err := memory.New(memory.Config{
		Store:            st,
		Pipeline:         pipeline,
		Sanitizer:        sanitize.New(cfg.Sanitize),
		Classifier:       policy.NewClassifier(cfg.Policy.Classifier),
		Scorer:           score.New(cfg.Weights),
		Events:           log,
		Logger:           logger,
		Bands:            cfg.Policy.Bands,
		ConsentRetention: cfg.ConsentRetention(),
	})
	if err != nil {
		st.Close()
		logger.Sync()
		return nil, err
	}

	cons := consolidate.New(st, cfg.Consolidation, log, logger)
	return &app{cfg: cfg, store: st, engine: engine, cons: cons, logger: logger}, nil
}

func (a *app) close() {
	a.store.Close()
	a.logger.Sync()
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runRemember(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: recall remember <person> <utterance>")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	person, utterance := args[0], strings.Join(args[1:], " ")
	result, err := a.engine.EvaluateAndMaybeStore(context.Background(), person, utterance)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runFacts(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: recall facts <person>")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	facts := a.store.ListByPerson(args[0])
	if len(facts) == 0 {
		fmt.Printf("No memories for %s\n", args[0])
		return nil
	}
	return printJSON(facts)
}

func runGet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: recall get <person> <key>")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	fact, err := a.store.FindFact(args[0], args[1])
	if err != nil {
		return fmt.Errorf("no fact %q for %s", args[1], args[0])
	}
	return printJSON(fact)
}

func runSuggestions(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: recall suggestions <person>")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	pending := a.store.ListSuggestions(args[0])
	if len(pending) == 0 {
		fmt.Printf("No pending suggestions for %s\n", args[0])
		return nil
	}
	return printJSON(pending)
}

func runResolve(args []string, confirm bool) error {
	verb := "reject"
	if confirm {
		verb = "confirm"
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: recall %s <id>", verb)
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	if confirm {
		m, promoted, err := a.engine.Confirm(ctx, args[0])
		if err != nil {
			return err
		}
		if !promoted {
			fmt.Println("Already resolved")
			return nil
		}
		return printJSON(m)
	}

	rejected, err := a.engine.Reject(ctx, args[0])
	if err != nil {
		return err
	}
	if !rejected {
		fmt.Println("Already resolved")
		return nil
	}
	fmt.Println("Rejected")
	return nil
}

func runForget(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: recall forget <person>")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	removed, err := a.store.DeleteAll(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d records for %s\n", removed, args[0])
	return nil
}

func runExport(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: recall export <person>")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	export, err := a.store.ExportAll(context.Background(), args[0])
	if err != nil {
		return err
	}
	return store.WriteExport(os.Stdout, export)
}

func runConsolidate(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	var report consolidate.Report
	if len(args) > 0 {
		report, err = a.cons.SummarizeUserMemories(ctx, args[0])
	} else {
		report, err = a.cons.RunAll(ctx)
	}
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runSweep(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: recall sweep")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	removed, err := a.engine.Sweep(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired memories\n", removed)
	return nil
}

func runStats(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: recall stats")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.store.Stats(context.Background())
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runServe(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: recall serve")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := schedule.New(a.logger)
	sched.Add(schedule.Job{
		Name: "ttl-sweep",
		Next: schedule.DailyAt(a.cfg.Sweep.Hour, a.cfg.Sweep.Minute),
		Run: func(ctx context.Context) error {
			_, err := a.engine.Sweep(ctx)
			return err
		},
	})
	sched.Add(schedule.Job{
		Name: "consolidation",
		Next: schedule.DailyAt(a.cfg.Sweep.Hour+1, a.cfg.Sweep.Minute),
		Run: func(ctx context.Context) error {
			_, err := a.cons.RunAll(ctx)
			return err
		},
	})
	sched.Start(ctx)
	defer sched.Wait()

	srv := mcp.NewServer(mcp.ServerConfig{
		Engine:       a.engine,
		Consolidator: a.cons,
		Version:      version,
	})
	a.logger.Info("mcp server listening on stdio", zap.String("version", version))
	return mcp.ServeStdio(srv)
}
