package service

import (
	"context"
	"sync"
	"testing"

	"wagerledger/internal/config"
	"wagerledger/internal/engine"
	"wagerledger/internal/model"
	"wagerledger/internal/repository"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const testOperatorID = "op_test"

// fixedRand 每次返回同样的值
type fixedRand struct {
	f float64
	i int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Intn(n int) int {
	if r.i >= n {
		return n - 1
	}
	return r.i
}

// testPlatformConfig 测试里用小额的最低限额，金额读起来更直观
func testPlatformConfig() model.PlatformConfig {
	cfg := model.DefaultPlatformConfig()
	cfg.MinDeposit = 500
	cfg.MinWithdraw = 1000
	cfg.MinBet = 10
	return cfg
}

type recordingPersister struct {
	mu    sync.Mutex
	marks map[model.SnapshotRecord]int
}

func newRecordingPersister() *recordingPersister {
	return &recordingPersister{marks: make(map[model.SnapshotRecord]int)}
}

func (p *recordingPersister) MarkDirty(records ...model.SnapshotRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range records {
		p.marks[r]++
	}
}

func (p *recordingPersister) count(r model.SnapshotRecord) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marks[r]
}

type testEnv struct {
	svc       *Services
	outbox    *repository.OutboxRepository
	persister *recordingPersister
}

func newTestEnv(t *testing.T, rng engine.Rand) *testEnv {
	t.Helper()
	outbox := repository.NewOutboxRepository(100)
	persister := newRecordingPersister()
	infra := Infra{
		Events:    outbox,
		Persister: persister,
		Logger:    zaptest.NewLogger(t),
		Topics:    config.KafkaTopicConfig{LedgerEvent: "ledger", BetSettled: "bets"},
	}
	if rng == nil {
		rng = engine.NewLockedRand(1)
	}
	svc := NewServices(infra, Options{
		BcryptCost:   bcrypt.MinCost,
		FeedCapacity: 50,
		Engine:       engine.NewEngine(rng),
	})

	svc.Settings.Restore(testPlatformConfig())

	_, err := svc.Sessions.EnsureOperator(context.Background(), OperatorSeed{
		ID:          testOperatorID,
		DisplayName: "Operator",
		Phone:       "000",
		Secret:      "op-secret",
	})
	if err != nil {
		t.Fatalf("ensure operator: %v", err)
	}
	return &testEnv{svc: svc, outbox: outbox, persister: persister}
}

func (e *testEnv) register(t *testing.T, phone, name string) *model.Account {
	t.Helper()
	a, err := e.svc.Sessions.Register(context.Background(), RegisterRequest{
		Phone:       phone,
		DisplayName: name,
		Secret:      "secret-" + phone,
	})
	if err != nil {
		t.Fatalf("register %s: %v", phone, err)
	}
	return a
}

func (e *testEnv) fund(t *testing.T, accountID string, balance int64) {
	t.Helper()
	if _, err := e.svc.Ledger.AdjustBalance(context.Background(), testOperatorID, accountID, balance); err != nil {
		t.Fatalf("fund %s: %v", accountID, err)
	}
}

func (e *testEnv) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	b, err := e.svc.Ledger.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("balance %s: %v", accountID, err)
	}
	return b
}
