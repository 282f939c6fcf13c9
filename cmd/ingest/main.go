// Command ingest runs one-off pipeline and report jobs against the
// configured store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/app"
	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/observability"
)

func main() {
	var (
		once           = pflag.Bool("once", false, "poll the inbox once and exit")
		limit          = pflag.Int("limit", 0, "maximum messages per poll (default INGEST_BATCH_SIZE)")
		recomputeDay   = pflag.String("recompute-day", "", "recompute the daily report for YYYY-MM-DD")
		rebuildReports = pflag.Bool("rebuild-reports", false, "recompute every daily report")
		issueToken     = pflag.String("issue-token", "", "print a bearer token for the user with this email")
	)
	pflag.Parse()

	if !*once && *recomputeDay == "" && !*rebuildReports && *issueToken == "" {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer c.Close()

	if err := run(ctx, c, *once, *limit, *recomputeDay, *rebuildReports, *issueToken); err != nil {
		logger.Error("ingest command failed", zap.Error(err))
		c.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, c *app.Container, once bool, limit int, recomputeDay string, rebuild bool, issueToken string) error {
	if once {
		result, err := c.Ingestion.Poll(ctx, limit)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if err := printJSON(result); err != nil {
			return err
		}
	}

	if recomputeDay != "" {
		day, err := time.Parse("2006-01-02", recomputeDay)
		if err != nil {
			return fmt.Errorf("invalid --recompute-day %q: %w", recomputeDay, err)
		}
		report, err := c.Reports.RecomputeDay(ctx, day)
		if err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}
	}

	if rebuild {
		n, err := c.Reports.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("rebuild reports after %d days: %w", n, err)
		}
		c.Logger.Info("reports rebuilt", zap.Int("days", n))
	}

	if issueToken != "" {
		token, exp, err := c.Auth.IssueToken(ctx, issueToken)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		return printJSON(map[string]any{"token": token, "expires_at": exp})
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
