package platform

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"heist/internal/action"
	"heist/internal/agent"
	"heist/internal/storage"
)

func trainedGuard(t *testing.T, p *Polis) TrainResult {
	t.Helper()
	res, err := p.Train(context.Background(), TrainConfig{RunID: "guard-run", Role: "guard", Episodes: 10, MaxSteps: 30, Seed: 5, Agent: testAgentConfig})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return res
}

func TestEvaluateWorkerCountDoesNotChangeResults(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	trained := trainedGuard(t, p)

	run := func(id string, workers int) EvaluateResult {
		res, err := p.Evaluate(ctx, EvaluateConfig{
			RunID:    id,
			Episodes: 12,
			MaxSteps: 40,
			Workers:  workers,
			Seed:     9,
			Greedy:   true,
			Guard:    trained.Guard,
		})
		if err != nil {
			t.Fatalf("evaluate with %d workers: %v", workers, err)
		}
		return res
	}
	serial := run("serial", 1)
	parallel := run("parallel", 4)
	if !reflect.DeepEqual(serial.Episodes, parallel.Episodes) {
		t.Fatal("parallel evaluation diverged from serial evaluation")
	}
	if serial.Summary.Episodes != 12 || serial.Summary.ThiefWins+serial.Summary.GuardWins+serial.Summary.Draws != 12 {
		t.Fatalf("unexpected summary: %+v", serial.Summary)
	}
	if serial.Summary.GuardStates != trained.Guard.States() {
		t.Fatalf("summary guard states %d, want %d", serial.Summary.GuardStates, trained.Guard.States())
	}
	if trained.Guard.Config().Epsilon != testAgentConfig.Epsilon {
		t.Fatal("greedy evaluation must not change the caller's learner")
	}

	stored, ok, err := p.Store().GetEpisodes(ctx, "parallel")
	if err != nil || !ok || len(stored) != 12 {
		t.Fatalf("expected 12 stored episodes, ok=%t err=%v n=%d", ok, err, len(stored))
	}
}

func TestEvaluateDoesNotLearn(t *testing.T) {
	p := newTestPolis(t)
	trained := trainedGuard(t, p)
	before := trained.Guard.Updates()
	if _, err := p.Evaluate(context.Background(), EvaluateConfig{Episodes: 3, MaxSteps: 20, Guard: trained.Guard}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if trained.Guard.Updates() != before {
		t.Fatal("evaluation updated the learner")
	}
}

func TestEvaluateRejectsSwappedRoles(t *testing.T) {
	p := newTestPolis(t)
	guard := agent.NewRandom(action.Guard, rand.New(rand.NewSource(1)))
	_, err := p.Evaluate(context.Background(), EvaluateConfig{Episodes: 1, MaxSteps: 5, Thief: guard})
	if !errors.Is(err, storage.ErrRoleMismatch) {
		t.Fatalf("expected role mismatch, got %v", err)
	}
}

func TestEvaluateRender(t *testing.T) {
	p := newTestPolis(t)
	var buf bytes.Buffer
	if _, err := p.Evaluate(context.Background(), EvaluateConfig{Episodes: 2, MaxSteps: 3, Workers: 2, Render: &buf}); err == nil {
		t.Fatal("expected render with several workers to fail")
	}
	if _, err := p.Evaluate(context.Background(), EvaluateConfig{Episodes: 2, MaxSteps: 3, Render: &buf}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"episode=1\n", "episode=2\n", "step=1 "} {
		if !strings.Contains(out, want) {
			t.Fatalf("render output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "G") == 0 || strings.Count(out, "T") == 0 {
		t.Fatalf("render output has no board:\n%s", out)
	}
}

func TestLoadAgent(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	trained := trainedGuard(t, p)

	got, ok, err := p.LoadAgent(ctx, trained.GuardAgentID, action.Guard, rand.New(rand.NewSource(1)))
	if err != nil || !ok {
		t.Fatalf("load agent: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(got.Keys(), trained.Guard.Keys()) {
		t.Fatal("loaded table differs from the trained one")
	}

	if _, _, err := p.LoadAgent(ctx, trained.GuardAgentID, action.Thief, rand.New(rand.NewSource(1))); !errors.Is(err, storage.ErrRoleMismatch) {
		t.Fatalf("expected role mismatch, got %v", err)
	}
	if _, ok, err := p.LoadAgent(ctx, "missing", action.Guard, rand.New(rand.NewSource(1))); err != nil || ok {
		t.Fatalf("expected missing agent, ok=%t err=%v", ok, err)
	}
}
