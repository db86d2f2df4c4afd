package repository

import (
	"context"
	"testing"
	"time"

	"wagerledger/internal/config"
	"wagerledger/internal/infrastructure/database"
	"wagerledger/internal/model"

	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestLoadEmptySnapshotUsesDefaults(t *testing.T) {
	repo := NewSnapshotRepository(newTestDB(t))

	snap, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Config != model.DefaultPlatformConfig() {
		t.Fatalf("expected default config, got %+v", snap.Config)
	}
	if len(snap.Accounts) != 0 || len(snap.Transactions) != 0 || snap.SessionAccountID != "" {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotRepository(newTestDB(t))
	now := time.Now().Truncate(time.Second)

	accounts := []model.Account{
		{ID: "A1", Phone: "0101", DisplayName: "alice", SecretHash: "h1", Balance: 1500, Role: model.RoleStandard, Status: model.AccountStatusActive, CreatedAt: now},
		{ID: "A2", Phone: "0102", DisplayName: "bob", SecretHash: "h2", Balance: 0, Role: model.RoleStandard, Status: model.AccountStatusSuspended, CreatedAt: now.Add(time.Second)},
	}
	if err := repo.SaveAccounts(ctx, accounts); err != nil {
		t.Fatalf("save accounts: %v", err)
	}

	// 余额变化后再次写入走 upsert
	accounts[0].Balance = 900
	if err := repo.SaveAccounts(ctx, accounts); err != nil {
		t.Fatalf("upsert accounts: %v", err)
	}

	txns := []model.Transaction{
		{ID: "T2", AccountID: "A1", Type: model.TransactionTypeWithdraw, Amount: 600, Status: model.TransactionStatusPending, BalanceBefore: 1500, BalanceAfter: 900, Seq: 2, CreatedAt: now},
		{ID: "T1", AccountID: "A1", Type: model.TransactionTypeDeposit, Amount: 1500, Status: model.TransactionStatusApproved, BalanceBefore: 0, BalanceAfter: 1500, Seq: 1, CreatedAt: now},
	}
	if err := repo.SaveTransactions(ctx, txns); err != nil {
		t.Fatalf("save transactions: %v", err)
	}

	feed := []model.FeedEntry{
		{GameID: "G2", Game: model.GameDice, DisplayName: "alice", Stake: 50, Payout: 250, Win: true, Label: "3", Timestamp: now},
		{GameID: "G1", Game: model.GameCoin, DisplayName: "bob", Stake: 20, Label: model.CoinTail, Simulated: true, Timestamp: now},
	}
	if err := repo.SaveFeed(ctx, feed); err != nil {
		t.Fatalf("save feed: %v", err)
	}
	// 整表替换，旧条目不残留
	if err := repo.SaveFeed(ctx, feed[:1]); err != nil {
		t.Fatalf("replace feed: %v", err)
	}

	tasks := []model.Task{{ID: "K1", Title: "check deposits", Status: model.TaskStatusPending, Priority: model.TaskPriorityHigh, CreatedAt: now}}
	if err := repo.SaveTasks(ctx, tasks); err != nil {
		t.Fatalf("save tasks: %v", err)
	}

	cfg := model.DefaultPlatformConfig()
	cfg.BiasPercentage = 30
	cfg.FeedSimulationEnabled = false
	if err := repo.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := repo.SaveSession(ctx, "A1"); err != nil {
		t.Fatalf("save session: %v", err)
	}

	snap, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(snap.Accounts) != 2 || snap.Accounts[0].Balance != 900 || snap.Accounts[1].Status != model.AccountStatusSuspended {
		t.Fatalf("accounts not restored: %+v", snap.Accounts)
	}
	if snap.Accounts[0].SecretHash != "h1" {
		t.Fatal("secret hash must persist")
	}
	if len(snap.Transactions) != 2 || snap.Transactions[0].ID != "T2" {
		t.Fatalf("transactions not newest-first: %+v", snap.Transactions)
	}
	if len(snap.Feed) != 1 || snap.Feed[0].GameID != "G2" || !snap.Feed[0].Win {
		t.Fatalf("feed not replaced: %+v", snap.Feed)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].Priority != model.TaskPriorityHigh {
		t.Fatalf("tasks not restored: %+v", snap.Tasks)
	}
	if snap.Config != cfg {
		t.Fatalf("config mismatch: %+v", snap.Config)
	}
	if snap.SessionAccountID != "A1" {
		t.Fatalf("session = %q", snap.SessionAccountID)
	}

	if err := repo.SaveSession(ctx, ""); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	snap, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if snap.SessionAccountID != "" {
		t.Fatalf("session should be cleared, got %q", snap.SessionAccountID)
	}
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSnapshotRepository(db)

	// 旧版本快照只有部分字段
	row := &model.SnapshotRow{Name: model.SnapshotKeyPlatformConfig, Payload: `{"bias_percentage":70}`}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("insert row: %v", err)
	}

	snap, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := model.DefaultPlatformConfig()
	want.BiasPercentage = 70
	if snap.Config != want {
		t.Fatalf("got %+v, want %+v", snap.Config, want)
	}
}
