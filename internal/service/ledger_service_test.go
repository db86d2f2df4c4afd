package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"wagerledger/internal/apperr"
	"wagerledger/internal/model"
)

func TestWithdrawRejectRestoresBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")
	env.fund(t, user.ID, 1000)

	txn, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{
		AccountID: user.ID,
		Type:      model.TransactionTypeWithdraw,
		Amount:    1000,
		Method:    "Bkash",
		Number:    "01711111111",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if txn.Status != model.TransactionStatusPending || txn.BalanceBefore != 1000 || txn.BalanceAfter != 0 {
		t.Fatalf("unexpected withdraw row %+v", txn)
	}
	if got := env.balance(t, user.ID); got != 0 {
		t.Fatalf("withdraw must earmark immediately, balance=%d", got)
	}

	reviewed, err := env.svc.Ledger.ReviewTransaction(ctx, testOperatorID, txn.ID, model.TransactionStatusRejected)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if reviewed.Status != model.TransactionStatusRejected || reviewed.ReviewedAt == nil {
		t.Fatalf("unexpected reviewed row %+v", reviewed)
	}
	if got := env.balance(t, user.ID); got != 1000 {
		t.Fatalf("reject must refund, balance=%d", got)
	}
}

func TestWithdrawApproveKeepsDebit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")
	env.fund(t, user.ID, 3000)

	txn, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeWithdraw, Amount: 1200})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := env.svc.Ledger.ReviewTransaction(ctx, testOperatorID, txn.ID, model.TransactionStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := env.balance(t, user.ID); got != 1800 {
		t.Fatalf("approve keeps debit, balance=%d", got)
	}
}

func TestDepositReview(t *testing.T) {
	tests := []struct {
		name     string
		decision string
		want     int64
	}{
		{name: "approve credits", decision: model.TransactionStatusApproved, want: 2500},
		{name: "reject changes nothing", decision: model.TransactionStatusRejected, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t, nil)
			user := env.register(t, "0101", "alice")

			txn, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 2500, ExternalRef: "BK123"})
			if err != nil {
				t.Fatalf("deposit: %v", err)
			}
			if got := env.balance(t, user.ID); got != 0 {
				t.Fatalf("pending deposit must not credit, balance=%d", got)
			}

			if _, err := env.svc.Ledger.ReviewTransaction(ctx, testOperatorID, txn.ID, tt.decision); err != nil {
				t.Fatalf("review: %v", err)
			}
			if got := env.balance(t, user.ID); got != tt.want {
				t.Fatalf("balance=%d, want %d", got, tt.want)
			}
		})
	}
}

func TestReviewIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")

	txn, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 800})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	first, err := env.svc.Ledger.ReviewTransaction(ctx, testOperatorID, txn.ID, model.TransactionStatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	second, err := env.svc.Ledger.ReviewTransaction(ctx, testOperatorID, txn.ID, model.TransactionStatusApproved)
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	third, err := env.svc.Ledger.ReviewTransaction(ctx, testOperatorID, txn.ID, model.TransactionStatusRejected)
	if err != nil {
		t.Fatalf("reject after approve: %v", err)
	}

	if got := env.balance(t, user.ID); got != 800 {
		t.Fatalf("deposit credited more than once, balance=%d", got)
	}
	if second.Status != model.TransactionStatusApproved || third.Status != model.TransactionStatusApproved {
		t.Fatalf("terminal status changed: %s %s", second.Status, third.Status)
	}
	if !first.ReviewedAt.Equal(*third.ReviewedAt) {
		t.Fatal("no-op review must not restamp")
	}
}

func TestReviewErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")
	txn, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 600})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	tests := []struct {
		name     string
		operator string
		id       string
		decision string
		want     error
	}{
		{name: "standard caller", operator: user.ID, id: txn.ID, decision: model.TransactionStatusApproved, want: apperr.ErrForbidden},
		{name: "unknown transaction", operator: testOperatorID, id: "missing", decision: model.TransactionStatusApproved, want: apperr.ErrNotFound},
		{name: "bad decision", operator: testOperatorID, id: txn.ID, decision: model.TransactionStatusCompleted, want: apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Ledger.ReviewTransaction(ctx, tt.operator, tt.id, tt.decision)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequestTransactionValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")
	env.fund(t, user.ID, 1500)
	frozen := env.register(t, "0102", "bob")
	if _, err := env.svc.Sessions.SetUserSuspension(ctx, testOperatorID, frozen.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	tests := []struct {
		name string
		req  TransactionRequest
		want error
	}{
		{name: "unknown account", req: TransactionRequest{AccountID: "nobody", Type: model.TransactionTypeDeposit, Amount: 600}, want: apperr.ErrNotFound},
		{name: "suspended account", req: TransactionRequest{AccountID: frozen.ID, Type: model.TransactionTypeDeposit, Amount: 600}, want: apperr.ErrSuspended},
		{name: "wrong type", req: TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeBetWin, Amount: 600}, want: apperr.ErrValidation},
		{name: "zero amount", req: TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 0}, want: apperr.ErrValidation},
		{name: "below min deposit", req: TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 499}, want: apperr.ErrValidation},
		{name: "below min withdraw", req: TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeWithdraw, Amount: 999}, want: apperr.ErrValidation},
		{name: "withdraw above balance", req: TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeWithdraw, Amount: 1501}, want: apperr.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Ledger.RequestTransaction(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if got := env.balance(t, user.ID); got != 1500 {
		t.Fatalf("failed requests must not touch balance, got %d", got)
	}
}

func TestSettleBetDiceWin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")
	env.fund(t, user.ID, 1000)

	txn, balance, err := env.svc.Ledger.SettleBet(ctx, user.ID, model.BetOutcome{
		GameID:    "BET1",
		Game:      model.GameDice,
		Stake:     50,
		Payout:    250,
		Win:       true,
		Label:     "4",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 1200 || env.balance(t, user.ID) != 1200 {
		t.Fatalf("balance=%d, want 1200", balance)
	}
	if txn.Type != model.TransactionTypeBetWin || txn.Amount != 200 || txn.Status != model.TransactionStatusCompleted {
		t.Fatalf("unexpected settlement row %+v", txn)
	}
}

func TestSettleBetLossAndClamp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")
	env.fund(t, user.ID, 30)

	txn, balance, err := env.svc.Ledger.SettleBet(ctx, user.ID, model.BetOutcome{Game: model.GameCoin, Stake: 20, Label: model.CoinTail})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 10 || txn.Type != model.TransactionTypeBetLoss || txn.Amount != 20 {
		t.Fatalf("loss settled wrong: balance=%d txn=%+v", balance, txn)
	}

	// 输的比余额多时截断到 0
	_, balance, err = env.svc.Ledger.SettleBet(ctx, user.ID, model.BetOutcome{Game: model.GameCoin, Stake: 50})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 0 {
		t.Fatalf("balance must clamp at 0, got %d", balance)
	}
}

func TestSettleBetRejectsZeroNetWin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")
	env.fund(t, user.ID, 100)

	// 下注 1 分的硬币赢面赔付截断后仍是 1 分，净额为 0
	_, _, err := env.svc.Ledger.SettleBet(ctx, user.ID, model.BetOutcome{Game: model.GameCoin, Stake: 1, Payout: 1, Win: true, Label: model.CoinHead})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("zero net win: %v", err)
	}
	if got := env.balance(t, user.ID); got != 100 {
		t.Fatalf("balance=%d, want 100", got)
	}
	for _, txn := range env.svc.Ledger.AllTransactions() {
		if txn.Amount <= 0 {
			t.Fatalf("non-positive amount recorded: %+v", txn)
		}
		if txn.AccountID == user.ID && txn.Type == model.TransactionTypeBetWin {
			t.Fatalf("zero net win must not be journaled: %+v", txn)
		}
	}
}

func TestAdjustBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")

	res, err := env.svc.Ledger.AdjustBalance(ctx, testOperatorID, user.ID, 700)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if res.Balance != 700 || res.Transaction == nil || res.Transaction.Amount != 700 || res.Transaction.Type != model.TransactionTypeAdminAdjustment {
		t.Fatalf("unexpected adjust result %+v", res)
	}

	res, err = env.svc.Ledger.AdjustBalance(ctx, testOperatorID, user.ID, 200)
	if err != nil {
		t.Fatalf("adjust down: %v", err)
	}
	if res.Transaction.Amount != 500 || res.Transaction.BalanceBefore != 700 || res.Transaction.BalanceAfter != 200 {
		t.Fatalf("unexpected downward adjustment %+v", res.Transaction)
	}

	res, err = env.svc.Ledger.AdjustBalance(ctx, testOperatorID, user.ID, 200)
	if err != nil || res.Transaction != nil {
		t.Fatalf("unchanged balance must not record, res=%+v err=%v", res, err)
	}

	if _, err := env.svc.Ledger.AdjustBalance(ctx, testOperatorID, user.ID, -1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("negative balance: %v", err)
	}
	if _, err := env.svc.Ledger.AdjustBalance(ctx, user.ID, user.ID, 10); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("standard caller: %v", err)
	}
	if _, err := env.svc.Ledger.AdjustBalance(ctx, testOperatorID, "nobody", 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown account: %v", err)
	}
}

func TestListTransactionsNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	alice := env.register(t, "0101", "alice")
	bob := env.register(t, "0102", "bob")

	var ids []string
	for i := 0; i < 5; i++ {
		txn, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: alice.ID, Type: model.TransactionTypeDeposit, Amount: int64(500 + i)})
		if err != nil {
			t.Fatalf("deposit: %v", err)
		}
		ids = append(ids, txn.ID)
	}
	if _, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: bob.ID, Type: model.TransactionTypeDeposit, Amount: 900}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	page, total, err := env.svc.Ledger.ListTransactions(ctx, TransactionFilter{AccountID: alice.ID}, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 2 || page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Fatalf("page 1 wrong: total=%d %+v", total, page)
	}

	page, _, _ = env.svc.Ledger.ListTransactions(ctx, TransactionFilter{AccountID: alice.ID}, 3, 2)
	if len(page) != 1 || page[0].ID != ids[0] {
		t.Fatalf("last page wrong: %+v", page)
	}

	page, total, err = env.svc.Ledger.ListTransactions(ctx, TransactionFilter{AccountID: alice.ID}, math.MaxInt, 100)
	if err != nil || len(page) != 0 || total != 5 {
		t.Fatalf("huge page must be empty: len=%d total=%d err=%v", len(page), total, err)
	}

	pending, total, _ := env.svc.Ledger.ListTransactions(ctx, TransactionFilter{Status: model.TransactionStatusPending, Type: model.TransactionTypeDeposit}, 1, 100)
	if total != 6 || len(pending) != 6 {
		t.Fatalf("status filter total=%d", total)
	}

	all := env.svc.Ledger.AllTransactions()
	for i := 1; i < len(all); i++ {
		if all[i-1].Seq <= all[i].Seq {
			t.Fatalf("log not newest-first at %d", i)
		}
	}
}

func TestLedgerEventsAndDirtyMarks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")

	txn, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 600})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.svc.Ledger.ReviewTransaction(ctx, testOperatorID, txn.ID, model.TransactionStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	msgs, _ := env.outbox.GetPendingMessages(ctx, 0)
	if len(msgs) != 2 || msgs[0].Topic != "ledger" || msgs[0].MessageKey != txn.ID {
		t.Fatalf("unexpected outbox %+v", msgs)
	}
	if env.persister.count(model.RecordTransactions) < 2 || env.persister.count(model.RecordAccounts) < 2 {
		t.Fatal("ledger mutations must mark accounts and transactions dirty")
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")
	env.fund(t, user.ID, 10000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeWithdraw, Amount: 1000})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, apperr.ErrInsufficientFunds) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 10 {
		t.Fatalf("expected exactly 10 withdrawals, got %d", accepted)
	}
	if got := env.balance(t, user.ID); got != 0 {
		t.Fatalf("balance=%d", got)
	}
}

func TestLedgerRestoreContinuesSequence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	user := env.register(t, "0101", "alice")

	env.svc.Ledger.Restore([]model.Transaction{
		{ID: "T9", AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 600, Status: model.TransactionStatusPending, Seq: 9},
		{ID: "T3", AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 700, Status: model.TransactionStatusApproved, Seq: 3},
	})

	txn, err := env.svc.Ledger.RequestTransaction(ctx, TransactionRequest{AccountID: user.ID, Type: model.TransactionTypeDeposit, Amount: 800})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if txn.Seq != 10 {
		t.Fatalf("seq = %d, want 10", txn.Seq)
	}

	// 恢复出来的待审核申请可以继续审核
	if _, err := env.svc.Ledger.ReviewTransaction(ctx, testOperatorID, "T9", model.TransactionStatusApproved); err != nil {
		t.Fatalf("review restored: %v", err)
	}
	if got := env.balance(t, user.ID); got != 600 {
		t.Fatalf("balance=%d", got)
	}
}
