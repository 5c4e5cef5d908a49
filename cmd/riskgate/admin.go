package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"text/tabwriter"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/riskgate/riskgate/internal/adapter/postgres"
	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/research"
	"github.com/riskgate/riskgate/internal/scoring"
)

// runAdmin dispatches admin subcommands (train, hash-key, summary, migrate).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "train":
		return runAdminTrain(args[1:])
	case "hash-key":
		return runAdminHashKey(args[1:])
	case "summary":
		return runAdminSummary(args[1:])
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	case "rollback":
		return runAdminRollback(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: riskgate admin <command> [options]

Commands:
  train            Train a scoring model from a labeled CSV
  hash-key         Produce a bcrypt hash for the API key config
  summary          Print aggregate statistics from the evaluation log
  migrate-status   Print the current migration version
  rollback         Roll back database migrations
  help             Show this help message

Examples:
  riskgate admin train --data loans.csv --out models/gbm.bin --rounds 200
  riskgate admin hash-key
  riskgate admin summary
  riskgate admin rollback --steps 1
`)
}

func runAdminTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	data := fs.String("data", "", "labeled training CSV (required)")
	out := fs.String("out", "models/gbm.bin", "output artifact path")
	rounds := fs.Int("rounds", 100, "boosting rounds")
	depth := fs.Int("depth", 3, "max tree depth")
	lr := fs.Float64("lr", 0.1, "learning rate")
	seed := fs.Int64("seed", 42, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *data == "" {
		return fmt.Errorf("--data is required")
	}

	X, y, err := loadTrainingCSV(*data)
	if err != nil {
		return fmt.Errorf("load training data: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Loaded %d rows, %d features\n", len(X), scoring.NumFeatures())

	e := &scoring.Ensemble{Features: scoring.FeatureNames()}
	if err := e.Fit(X, y, scoring.FitOptions{
		Rounds:       *rounds,
		MaxDepth:     *depth,
		LearningRate: *lr,
		Seed:         *seed,
	}); err != nil {
		return fmt.Errorf("fit: %w", err)
	}

	if err := e.Save(*out); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Model saved: %s (%d trees)\n", *out, e.Rounds())
	return nil
}

// loadTrainingCSV reads a CSV whose columns are the feature layout in
// order, with a final 0/1 "defaulted" label column. A header row is
// required and checked against the expected layout.
func loadTrainingCSV(path string) ([][]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("no data rows in %s", path)
	}

	names := scoring.FeatureNames()
	head := records[0]
	if len(head) != len(names)+1 {
		return nil, nil, fmt.Errorf("expected %d columns (features + label), got %d", len(names)+1, len(head))
	}
	for i, name := range names {
		if head[i] != name {
			return nil, nil, fmt.Errorf("column %d: expected %q, got %q", i, name, head[i])
		}
	}

	X := make([][]float64, 0, len(records)-1)
	y := make([]int, 0, len(records)-1)
	for rowNum, rec := range records[1:] {
		row := make([]float64, len(names))
		for i := range names {
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %q: %w", rowNum+2, names[i], err)
			}
			row[i] = v
		}
		label, err := strconv.Atoi(rec[len(names)])
		if err != nil {
			return nil, nil, fmt.Errorf("row %d label: %w", rowNum+2, err)
		}
		X = append(X, row)
		y = append(y, label)
	}
	return X, y, nil
}

func runAdminHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	key := fs.String("key", "", "API key to hash (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	k := *key
	if k == "" {
		var err error
		k, err = promptSecret("API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		confirm, err := promptSecret("Confirm API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if k != confirm {
			return fmt.Errorf("keys do not match")
		}
	}
	if k == "" {
		return fmt.Errorf("key must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(k), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}

func runAdminSummary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	path := fs.String("log", "", "evaluation log path (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logPath := *path
	if logPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logPath = cfg.Research.CSVPath
	}

	evalLog, err := research.NewLog(logPath)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	sum, err := evalLog.Summarize()
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "decisions\t%d\n", sum.Rows)
	_, _ = fmt.Fprintf(w, "escalated\t%d (%.1f%%)\n", sum.Escalated, sum.EscalationRate*100)
	_, _ = fmt.Fprintf(w, "tokens in\t%d\n", sum.TotalTokensIn)
	_, _ = fmt.Fprintf(w, "tokens out\t%d\n", sum.TotalTokensOut)
	_, _ = fmt.Fprintf(w, "cost (USD)\t%.4f\n", sum.TotalCostUSD)
	_, _ = fmt.Fprintf(w, "avg latency (ms)\t%.0f\n", sum.AvgLatencyMs)
	_, _ = fmt.Fprintf(w, "key switches\t%d\n", sum.KeySwitches)
	_, _ = fmt.Fprintf(w, "fairness checks\t%d\n", sum.FairnessChecks)
	_, _ = fmt.Fprintf(w, "changed by check\t%d\n", sum.ChangedByCheck)
	return w.Flush()
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	version, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Printf("migration version: %d\n", version)
	return nil
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := postgres.RollbackMigrations(context.Background(), cfg.Postgres.DSN, *steps); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s)\n", *steps)
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
