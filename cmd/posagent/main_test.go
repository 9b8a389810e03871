package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"udpadijaya/posagent/internal/config"
	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/store/memory"
)

func validBase() config.Config {
	return config.Config{APIBaseURL: "https://backoffice.example/api", LogFormat: "json"}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"missing api":       func(c *config.Config) { c.APIBaseURL = "" },
		"relative api":      func(c *config.Config) { c.APIBaseURL = "backoffice/api" },
		"two journals":      func(c *config.Config) { c.DatabaseURL = "postgres://x"; c.MongoURI = "mongodb://x" },
		"token no terminal": func(c *config.Config) { c.ServiceToken = "tok" },
		"log format":        func(c *config.Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		cfg := validBase()
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestValidateConfigAcceptsGoodValues(t *testing.T) {
	cfg := validBase()
	cfg.ServiceToken = "tok"
	cfg.DefaultTerminalID = "till-1"
	cfg.LogFormat = "console"
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("expected config to pass, got %v", err)
	}
}

func TestReportInterruptedLogsPendingSubmissions(t *testing.T) {
	journal := memory.New()
	ctx := context.Background()
	now := time.Now()
	if err := journal.Begin(ctx, domain.Submission{ID: "s-1", TerminalID: "till-1", Kind: domain.CartKindSales, Status: domain.SubmissionStatusPending, StartedAt: now}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := journal.Begin(ctx, domain.Submission{ID: "s-2", TerminalID: "till-2", Kind: domain.CartKindSales, Status: domain.SubmissionStatusPending, StartedAt: now}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := journal.Finish(ctx, "s-2", domain.SubmissionStatusCompleted, "", now); err != nil {
		t.Fatalf("finish: %v", err)
	}

	core, logs := observer.New(zap.WarnLevel)
	reportInterrupted(ctx, journal, zap.New(core))

	entries := logs.FilterMessage("interrupted submission").All()
	if len(entries) != 1 || entries[0].ContextMap()["submission_id"] != "s-1" {
		t.Fatalf("expected one interrupted submission s-1, got %+v", entries)
	}
}
