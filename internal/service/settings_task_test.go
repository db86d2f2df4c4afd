package service

import (
	"context"
	"errors"
	"testing"

	"wagerledger/internal/apperr"
	"wagerledger/internal/model"
)

func TestSettingsUpdate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")

	if got := env.svc.Settings.Get(); got != testPlatformConfig() {
		t.Fatalf("expected restored config, got %+v", got)
	}

	bias := 70
	notice := "maintenance tonight"
	cfg, err := env.svc.Settings.Update(ctx, testOperatorID, model.SettingsPatch{BiasPercentage: &bias, NoticeText: &notice})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	want := testPlatformConfig()
	want.BiasPercentage = 70
	want.NoticeText = notice
	if cfg != want || env.svc.Settings.Get() != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
	if env.persister.count(model.RecordConfig) != 1 {
		t.Fatal("update must mark config dirty")
	}

	tooHigh := 101
	negative := int64(-1)
	oneMinor := int64(1)
	tests := []struct {
		name     string
		operator string
		patch    model.SettingsPatch
		want     error
	}{
		{name: "bias above 100", operator: testOperatorID, patch: model.SettingsPatch{BiasPercentage: &tooHigh}, want: apperr.ErrValidation},
		{name: "negative minimum", operator: testOperatorID, patch: model.SettingsPatch{MinWithdraw: &negative}, want: apperr.ErrValidation},
		{name: "min bet below floor", operator: testOperatorID, patch: model.SettingsPatch{MinBet: &oneMinor}, want: apperr.ErrValidation},
		{name: "standard caller", operator: user.ID, patch: model.SettingsPatch{BiasPercentage: &bias}, want: apperr.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.Settings.Update(ctx, tt.operator, tt.patch); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	if env.svc.Settings.Get() != want {
		t.Fatal("rejected update must leave config unchanged")
	}
}

func TestSettingsRestoreFallsBackOnInvalidConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	bad := testPlatformConfig()
	bad.BiasPercentage = 150
	env.svc.Settings.Restore(bad)
	if got := env.svc.Settings.Get(); got != model.DefaultPlatformConfig() {
		t.Fatalf("invalid snapshot config must fall back to defaults, got %+v", got)
	}

	bad = testPlatformConfig()
	bad.MinBet = 1
	env.svc.Settings.Restore(bad)
	if got := env.svc.Settings.Get(); got != model.DefaultPlatformConfig() {
		t.Fatalf("min bet below floor must fall back to defaults, got %+v", got)
	}

	env.svc.Settings.Restore(testPlatformConfig())
	if got := env.svc.Settings.Get(); got != testPlatformConfig() {
		t.Fatalf("valid config must be kept, got %+v", got)
	}
}

func TestTaskBoard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")

	first, err := env.svc.Tasks.AddTask(ctx, testOperatorID, AddTaskRequest{Title: "verify deposits"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.Priority != model.TaskPriorityMedium || first.Status != model.TaskStatusPending {
		t.Fatalf("unexpected defaults %+v", first)
	}
	second, err := env.svc.Tasks.AddTask(ctx, testOperatorID, AddTaskRequest{Title: "rotate notice", Priority: "high"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	tasks, err := env.svc.Tasks.ListTasks(ctx, testOperatorID)
	if err != nil || len(tasks) != 2 || tasks[0].ID != second.ID {
		t.Fatalf("expected newest first: %+v %v", tasks, err)
	}

	updated, err := env.svc.Tasks.UpdateTaskStatus(ctx, testOperatorID, first.ID, model.TaskStatusInProgress)
	if err != nil || updated.Status != model.TaskStatusInProgress {
		t.Fatalf("update: %+v %v", updated, err)
	}
	if err := env.svc.Tasks.DeleteTask(ctx, testOperatorID, second.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := len(env.svc.Tasks.AllTasks()); n != 1 {
		t.Fatalf("expected 1 task, got %d", n)
	}

	if _, err := env.svc.Tasks.AddTask(ctx, testOperatorID, AddTaskRequest{Title: "  "}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty title: %v", err)
	}
	if _, err := env.svc.Tasks.AddTask(ctx, testOperatorID, AddTaskRequest{Title: "x", Priority: "URGENT"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad priority: %v", err)
	}
	if _, err := env.svc.Tasks.UpdateTaskStatus(ctx, testOperatorID, first.ID, "DONE"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad status: %v", err)
	}
	if err := env.svc.Tasks.DeleteTask(ctx, testOperatorID, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}
	if _, err := env.svc.Tasks.ListTasks(ctx, user.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("standard caller: %v", err)
	}
}
