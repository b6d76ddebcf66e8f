package platform

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"heist/internal/action"
	"heist/internal/agent"
	"heist/internal/storage"
)

var testAgentConfig = agent.Config{Alpha: 0.2, Gamma: 0.9, Epsilon: 0.2}

func TestTrainPersistsAgentsRunAndEpisodes(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	res, err := p.Train(ctx, TrainConfig{
		RunID:    "run-both",
		Role:     RoleBoth,
		Episodes: 20,
		MaxSteps: 30,
		Seed:     7,
		Agent:    testAgentConfig,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.ThiefAgentID != AgentID("run-both", action.Thief) || res.GuardAgentID != AgentID("run-both", action.Guard) {
		t.Fatalf("unexpected agent ids: %q %q", res.ThiefAgentID, res.GuardAgentID)
	}
	if res.Thief.States() == 0 || res.Guard.States() == 0 {
		t.Fatal("expected both learners to visit states")
	}

	rec, ok, err := p.Store().GetAgent(ctx, res.GuardAgentID)
	if err != nil || !ok {
		t.Fatalf("get guard agent: ok=%t err=%v", ok, err)
	}
	if rec.Role != "guard" || rec.SchemaVersion != storage.CurrentSchemaVersion {
		t.Fatalf("unexpected guard record: role=%s schema=%d", rec.Role, rec.SchemaVersion)
	}
	if rec.Metadata["run_id"] != "run-both" || rec.Metadata["episodes"] != "20" {
		t.Fatalf("unexpected metadata: %+v", rec.Metadata)
	}
	if len(rec.Table) != res.Guard.States() {
		t.Fatalf("stored table has %d states, learner has %d", len(rec.Table), res.Guard.States())
	}

	run, ok, err := p.Store().GetRun(ctx, "run-both")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if run.Episodes != 20 || run.ThiefWins+run.GuardWins+run.Draws != 20 {
		t.Fatalf("unexpected run tallies: %+v", run)
	}
	if run.Phase != PhaseTrain || run.Alpha != testAgentConfig.Alpha {
		t.Fatalf("unexpected run metadata: %+v", run)
	}

	episodes, ok, err := p.Store().GetEpisodes(ctx, "run-both")
	if err != nil || !ok {
		t.Fatalf("get episodes: ok=%t err=%v", ok, err)
	}
	if len(episodes) != 20 || episodes[0].Episode != 1 || episodes[19].Episode != 20 {
		t.Fatalf("unexpected episode history: %d records", len(episodes))
	}
	for _, ep := range episodes {
		if ep.Steps < 1 || ep.Steps > 30 {
			t.Fatalf("episode %d ran %d steps", ep.Episode, ep.Steps)
		}
		if ep.Result == "" && ep.Steps != 30 {
			t.Fatalf("draw in episode %d ended early at %d", ep.Episode, ep.Steps)
		}
	}
}

func TestTrainSingleRoleUsesRandomOpponent(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	res, err := p.Train(ctx, TrainConfig{RunID: "guard-only", Role: "guard", Episodes: 5, MaxSteps: 20, Seed: 3, Agent: testAgentConfig})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.Thief != nil || res.ThiefAgentID != "" {
		t.Fatal("thief should not be trained")
	}
	if res.Guard == nil || res.GuardAgentID == "" {
		t.Fatal("guard should be trained")
	}
	if _, ok, _ := p.Store().GetAgent(ctx, AgentID("guard-only", action.Thief)); ok {
		t.Fatal("no thief agent should be stored")
	}
}

func TestTrainIsReproducible(t *testing.T) {
	cfg := TrainConfig{RunID: "repro", Role: RoleBoth, Episodes: 15, MaxSteps: 25, Seed: 11, Agent: testAgentConfig}
	a, err := newTestPolis(t).Train(context.Background(), cfg)
	if err != nil {
		t.Fatalf("train a: %v", err)
	}
	b, err := newTestPolis(t).Train(context.Background(), cfg)
	if err != nil {
		t.Fatalf("train b: %v", err)
	}
	if !reflect.DeepEqual(a.Episodes, b.Episodes) {
		t.Fatal("same seed produced different episode histories")
	}
	if !reflect.DeepEqual(a.Guard.Keys(), b.Guard.Keys()) {
		t.Fatal("same seed produced different guard tables")
	}
}

func TestTrainContinuesFromWarmLearner(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	first, err := p.Train(ctx, TrainConfig{RunID: "first", Role: "thief", Episodes: 5, MaxSteps: 20, Seed: 1, Agent: testAgentConfig})
	if err != nil {
		t.Fatalf("first train: %v", err)
	}
	second, err := p.Train(ctx, TrainConfig{RunID: "second", Role: "thief", Episodes: 5, MaxSteps: 20, Seed: 2, Agent: testAgentConfig, Thief: first.Thief})
	if err != nil {
		t.Fatalf("second train: %v", err)
	}
	if second.Thief.States() < first.Thief.States() {
		t.Fatalf("warm start lost states: %d < %d", second.Thief.States(), first.Thief.States())
	}
	if second.Thief == first.Thief {
		t.Fatal("warm start must not mutate the caller's learner")
	}

	_, err = p.Train(ctx, TrainConfig{RunID: "bad", Role: "guard", Episodes: 1, MaxSteps: 5, Agent: testAgentConfig, Guard: first.Thief})
	if !errors.Is(err, storage.ErrRoleMismatch) {
		t.Fatalf("expected role mismatch, got %v", err)
	}
}

func TestTrainValidatesInput(t *testing.T) {
	p := newTestPolis(t)
	cases := []TrainConfig{
		{Role: "pirate", Episodes: 1, MaxSteps: 1, Agent: testAgentConfig},
		{Role: RoleBoth, Episodes: 0, MaxSteps: 1, Agent: testAgentConfig},
		{Role: RoleBoth, Episodes: 1, MaxSteps: 0, Agent: testAgentConfig},
		{Role: RoleBoth, Episodes: 1, MaxSteps: 1, Agent: agent.Config{Alpha: 0}},
	}
	for i, cfg := range cases {
		if _, err := p.Train(context.Background(), cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if _, err := p.Train(context.Background(), cases[0]); !errors.Is(err, action.ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
}

func TestTrainRoles(t *testing.T) {
	for role, want := range map[string][2]bool{
		"":      {true, true},
		"both":  {true, true},
		"thief": {true, false},
		"guard": {false, true},
	} {
		thief, guard, err := TrainRoles(role)
		if err != nil || thief != want[0] || guard != want[1] {
			t.Fatalf("TrainRoles(%q) = %t,%t,%v", role, thief, guard, err)
		}
	}
}
