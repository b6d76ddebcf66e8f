//go:build sqlite

package main

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var runIDPattern = regexp.MustCompile(`run_id=(\S+)`)

func TestEvaluateCommandSQLiteLoadsStoredAgents(t *testing.T) {
	workdir := chdirTemp(t)
	dbPath := filepath.Join(workdir, "heist.db")

	out := trainSmall(t, "--store", "sqlite", "--db-path", dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite db at %s: %v", dbPath, err)
	}
	m := runIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("train output missing run id: %s", out)
	}
	runID := m[1]

	// Bundles are removed so the agents can only come from the store.
	if err := os.RemoveAll("models"); err != nil {
		t.Fatalf("remove models: %v", err)
	}

	evalOut, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"evaluate",
			"--store", "sqlite",
			"--db-path", dbPath,
			"--episodes", "4",
			"--max-steps", "30",
			"--thief-agent", runID + ":thief",
			"--guard-agent", runID + ":guard",
			"--log-level", "error",
		})
	})
	if err != nil {
		t.Fatalf("evaluate command: %v", err)
	}
	if !strings.Contains(evalOut, "thief=store:"+runID+":thief") || !strings.Contains(evalOut, "guard=store:"+runID+":guard") {
		t.Fatalf("expected store sources, got %s", evalOut)
	}
}

func TestEvaluateCommandSQLiteRejectsSwappedRoles(t *testing.T) {
	workdir := chdirTemp(t)
	dbPath := filepath.Join(workdir, "heist.db")

	out := trainSmall(t, "--store", "sqlite", "--db-path", dbPath)
	m := runIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("train output missing run id: %s", out)
	}

	err := run(context.Background(), []string{
		"evaluate",
		"--store", "sqlite",
		"--db-path", dbPath,
		"--episodes", "2",
		"--thief-agent", m[1] + ":guard",
		"--log-level", "error",
	})
	if err == nil {
		t.Fatal("expected role mismatch error")
	}
}
