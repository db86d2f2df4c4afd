package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"wagerledger/internal/apperr"
	"wagerledger/internal/infrastructure/metrics"
	"wagerledger/internal/model"
	"wagerledger/pkg/idgen"
	"wagerledger/pkg/money"

	"go.uber.org/zap"
)

// ============================================================================
// 账本
// ============================================================================
//
// 余额的唯一写入方。所有"读余额-判断-写余额"都在账户锁内完成：
//
//   提现申请：立即扣减（冻结），驳回时退回
//   充值申请：审核通过时才入账
//   投注结算：赢记净额 BET_WIN，输记本金 BET_LOSS
//
// 余额任何时候都不小于 0，写入前统一截断。
//
// ============================================================================

type LedgerService struct {
	mu   sync.RWMutex
	log  []*model.Transaction // 追加顺序，越靠后越新
	byID map[string]*model.Transaction
	seq  int64

	directory *SessionService
	settings  *SettingsService
	infra     Infra
	now       func() time.Time
}

func NewLedgerService(directory *SessionService, settings *SettingsService, infra Infra) *LedgerService {
	return &LedgerService{
		byID:      make(map[string]*model.Transaction),
		directory: directory,
		settings:  settings,
		infra:     infra.withDefaults(),
		now:       time.Now,
	}
}

// TransactionRequest 充值/提现申请
type TransactionRequest struct {
	AccountID   string
	Type        string
	Amount      int64
	Method      string
	Number      string
	ExternalRef string
}

// TransactionFilter 空字段不过滤
type TransactionFilter struct {
	AccountID string
	Type      string
	Status    string
}

// AdjustResult 运营调整余额的结果，余额未变化时 Transaction 为空
type AdjustResult struct {
	AccountID   string             `json:"account_id"`
	Balance     int64              `json:"balance"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

// ledgerEvent 发件箱消息体
type ledgerEvent struct {
	Event       string            `json:"event"`
	Transaction model.Transaction `json:"transaction"`
	Balance     int64             `json:"balance"`
	OperatorID  string            `json:"operator_id,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Restore 用快照恢复流水，txns 按从新到旧排列
func (s *LedgerService) Restore(txns []model.Transaction) {
	ordered := make([]model.Transaction, len(txns))
	copy(ordered, txns)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = make([]*model.Transaction, 0, len(ordered))
	s.byID = make(map[string]*model.Transaction, len(ordered))
	s.seq = 0
	for i := range ordered {
		t := ordered[i]
		if t.Seq <= s.seq {
			t.Seq = s.seq + 1
		}
		s.seq = t.Seq
		s.log = append(s.log, &t)
		s.byID[t.ID] = &t
	}
}

// appendLocked 调用方持有 s.mu 写锁
func (s *LedgerService) appendLocked(t *model.Transaction) {
	s.seq++
	t.Seq = s.seq
	s.log = append(s.log, t)
	s.byID[t.ID] = t
}

func (s *LedgerService) record(t *model.Transaction) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(t)
	return *t
}

// withAccountLock 在账户锁内执行 fn，不可重入
func (s *LedgerService) withAccountLock(ctx context.Context, accountID string, fn func() error) error {
	release, err := s.infra.lockAccount(ctx, accountID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (s *LedgerService) markDirty() {
	s.infra.Persister.MarkDirty(model.RecordAccounts, model.RecordTransactions)
}

// RequestTransaction 提交充值/提现申请，状态为 PENDING 等待运营审核
func (s *LedgerService) RequestTransaction(ctx context.Context, req TransactionRequest) (*model.Transaction, error) {
	var created model.Transaction
	var balance int64

	err := s.withAccountLock(ctx, req.AccountID, func() error {
		account, err := s.directory.GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if account.IsSuspended() {
			return apperr.New(apperr.KindSuspended, "账户已被冻结")
		}
		if !model.IsWalletRequestType(req.Type) {
			return apperr.Newf(apperr.KindValidation, "不支持的申请类型: %s", req.Type)
		}
		if req.Amount <= 0 {
			return apperr.New(apperr.KindValidation, "金额必须大于0")
		}

		cfg := s.settings.Get()
		before := account.Balance
		after := before
		switch req.Type {
		case model.TransactionTypeDeposit:
			if req.Amount < cfg.MinDeposit {
				return apperr.Newf(apperr.KindValidation, "最低充值金额为 %s", money.Format(cfg.MinDeposit))
			}
		case model.TransactionTypeWithdraw:
			if req.Amount < cfg.MinWithdraw {
				return apperr.Newf(apperr.KindValidation, "最低提现金额为 %s", money.Format(cfg.MinWithdraw))
			}
			if req.Amount > before {
				return apperr.New(apperr.KindInsufficientFunds, "余额不足")
			}
			// 提现申请立即冻结，驳回时退回
			after = money.ClampNonNegative(before - req.Amount)
			if err := s.directory.setBalance(req.AccountID, after); err != nil {
				return err
			}
		}

		created = s.record(&model.Transaction{
			ID:            idgen.GenerateTransactionNo(),
			AccountID:     req.AccountID,
			Type:          req.Type,
			Amount:        req.Amount,
			Method:        req.Method,
			Number:        req.Number,
			ExternalRef:   req.ExternalRef,
			Status:        model.TransactionStatusPending,
			BalanceBefore: before,
			BalanceAfter:  after,
			CreatedAt:     s.now(),
		})
		balance = after
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.markDirty()
	metrics.Transactions.WithLabelValues(created.Type, created.Status).Inc()
	s.infra.publish(ctx, s.infra.Topics.LedgerEvent, created.ID, ledgerEvent{
		Event:       model.EventTransactionRequested,
		Transaction: created,
		Balance:     balance,
		OccurredAt:  created.CreatedAt,
	})
	s.infra.Logger.Info("收到资金申请",
		zap.String("transaction_id", created.ID),
		zap.String("account_id", created.AccountID),
		zap.String("type", created.Type),
		zap.Int64("amount", created.Amount),
	)
	return &created, nil
}

// SettleBet 结算一局，自行获取账户锁
func (s *LedgerService) SettleBet(ctx context.Context, accountID string, outcome model.BetOutcome) (*model.Transaction, int64, error) {
	var (
		txn     model.Transaction
		balance int64
	)
	err := s.withAccountLock(ctx, accountID, func() error {
		var err error
		txn, balance, err = s.settleLocked(ctx, accountID, outcome)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return &txn, balance, nil
}

// settleLocked 调用方持有账户锁
func (s *LedgerService) settleLocked(ctx context.Context, accountID string, outcome model.BetOutcome) (model.Transaction, int64, error) {
	before, err := s.directory.balanceOf(accountID)
	if err != nil {
		return model.Transaction{}, 0, err
	}

	net := outcome.Payout - outcome.Stake
	if outcome.Win && net <= 0 {
		return model.Transaction{}, 0, apperr.Newf(apperr.KindInvalidArgument, "中奖净额必须为正: 下注 %d 赔付 %d", outcome.Stake, outcome.Payout)
	}
	if !outcome.Win && net >= 0 {
		return model.Transaction{}, 0, apperr.Newf(apperr.KindInvalidArgument, "未中奖的赔付不能覆盖下注: 下注 %d 赔付 %d", outcome.Stake, outcome.Payout)
	}

	txn := &model.Transaction{
		ID:            idgen.GenerateTransactionNo(),
		AccountID:     accountID,
		Status:        model.TransactionStatusCompleted,
		BalanceBefore: before,
		ExternalRef:   outcome.GameID,
		Remark:        string(outcome.Game) + ":" + outcome.Label,
		CreatedAt:     s.now(),
	}
	if outcome.Win {
		txn.Type = model.TransactionTypeBetWin
		txn.Amount = money.ClampNonNegative(net)
	} else {
		txn.Type = model.TransactionTypeBetLoss
		txn.Amount = money.ClampNonNegative(-net)
	}
	after := money.ClampNonNegative(before + net)
	txn.BalanceAfter = after

	if err := s.directory.setBalance(accountID, after); err != nil {
		return model.Transaction{}, 0, err
	}
	created := s.record(txn)

	s.markDirty()
	metrics.Transactions.WithLabelValues(created.Type, created.Status).Inc()
	s.infra.publish(ctx, s.infra.Topics.BetSettled, created.ID, ledgerEvent{
		Event:       model.EventBetSettled,
		Transaction: created,
		Balance:     after,
		OccurredAt:  created.CreatedAt,
	})
	return created, after, nil
}

// ReviewTransaction 运营审核，已是终态的申请直接返回当前记录
func (s *LedgerService) ReviewTransaction(ctx context.Context, operatorID, transactionID, decision string) (*model.Transaction, error) {
	if err := s.directory.RequireOperator(ctx, operatorID); err != nil {
		return nil, err
	}
	if decision != model.TransactionStatusApproved && decision != model.TransactionStatusRejected {
		return nil, apperr.Newf(apperr.KindValidation, "审核结果只能是 APPROVED 或 REJECTED: %s", decision)
	}

	s.mu.RLock()
	t, ok := s.byID[transactionID]
	var accountID string
	if ok {
		accountID = t.AccountID
	}
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "流水不存在: %s", transactionID)
	}

	var (
		reviewed model.Transaction
		balance  int64
		changed  bool
	)
	err := s.withAccountLock(ctx, accountID, func() error {
		s.mu.RLock()
		current := *s.byID[transactionID]
		s.mu.RUnlock()

		if !model.CanTransitionTo(current.Status, decision) {
			// 重复审核不做任何处理
			reviewed = current
			return nil
		}

		before, err := s.directory.balanceOf(accountID)
		if err != nil {
			return err
		}
		after := before
		switch {
		case current.Type == model.TransactionTypeDeposit && decision == model.TransactionStatusApproved:
			after = before + current.Amount
		case current.Type == model.TransactionTypeWithdraw && decision == model.TransactionStatusRejected:
			after = before + current.Amount
		}
		after = money.ClampNonNegative(after)
		if after != before {
			if err := s.directory.setBalance(accountID, after); err != nil {
				return err
			}
		}

		now := s.now()
		s.mu.Lock()
		t := s.byID[transactionID]
		t.Status = decision
		t.ReviewedAt = &now
		reviewed = *t
		s.mu.Unlock()

		balance = after
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &reviewed, nil
	}

	s.markDirty()
	metrics.Reviews.WithLabelValues(decision).Inc()
	s.infra.publish(ctx, s.infra.Topics.LedgerEvent, reviewed.ID, ledgerEvent{
		Event:       model.EventTransactionReviewed,
		Transaction: reviewed,
		Balance:     balance,
		OperatorID:  operatorID,
		OccurredAt:  *reviewed.ReviewedAt,
	})
	s.infra.Logger.Info("资金申请已审核",
		zap.String("operator_id", operatorID),
		zap.String("transaction_id", reviewed.ID),
		zap.String("type", reviewed.Type),
		zap.String("decision", decision),
		zap.Int64("balance", balance),
	)
	return &reviewed, nil
}

// AdjustBalance 运营直接设置余额，有变化时记一笔 ADMIN_ADJUSTMENT
func (s *LedgerService) AdjustBalance(ctx context.Context, operatorID, accountID string, newBalance int64) (*AdjustResult, error) {
	if err := s.directory.RequireOperator(ctx, operatorID); err != nil {
		return nil, err
	}
	if newBalance < 0 {
		return nil, apperr.New(apperr.KindValidation, "余额不能为负数")
	}

	result := &AdjustResult{AccountID: accountID, Balance: newBalance}
	err := s.withAccountLock(ctx, accountID, func() error {
		before, err := s.directory.balanceOf(accountID)
		if err != nil {
			return err
		}
		if before == newBalance {
			return nil
		}
		if err := s.directory.setBalance(accountID, newBalance); err != nil {
			return err
		}

		diff := newBalance - before
		if diff < 0 {
			diff = -diff
		}
		created := s.record(&model.Transaction{
			ID:            idgen.GenerateTransactionNo(),
			AccountID:     accountID,
			Type:          model.TransactionTypeAdminAdjustment,
			Amount:        diff,
			Status:        model.TransactionStatusCompleted,
			BalanceBefore: before,
			BalanceAfter:  newBalance,
			Remark:        "operator:" + operatorID,
			CreatedAt:     s.now(),
		})
		result.Transaction = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Transaction == nil {
		return result, nil
	}

	s.markDirty()
	metrics.Transactions.WithLabelValues(result.Transaction.Type, result.Transaction.Status).Inc()
	s.infra.publish(ctx, s.infra.Topics.LedgerEvent, result.Transaction.ID, ledgerEvent{
		Event:       model.EventBalanceAdjusted,
		Transaction: *result.Transaction,
		Balance:     newBalance,
		OperatorID:  operatorID,
		OccurredAt:  result.Transaction.CreatedAt,
	})
	s.infra.Logger.Info("运营调整余额",
		zap.String("operator_id", operatorID),
		zap.String("account_id", accountID),
		zap.Int64("before", result.Transaction.BalanceBefore),
		zap.Int64("after", newBalance),
	)
	return result, nil
}

// ============================================================================
// 查询
// ============================================================================

func (s *LedgerService) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return s.directory.balanceOf(accountID)
}

func (s *LedgerService) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[transactionID]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "流水不存在: %s", transactionID)
	}
	out := *t
	return &out, nil
}

// ListTransactions 从新到旧分页，返回当前页和总数
func (s *LedgerService) ListTransactions(ctx context.Context, filter TransactionFilter, page, pageSize int) ([]model.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// 页码超出日志长度时直接给空页，同时避免乘法溢出
	offset := len(s.log)
	if page-1 <= len(s.log)/pageSize {
		offset = (page - 1) * pageSize
	}
	var (
		total int64
		list  = make([]model.Transaction, 0, pageSize)
	)
	for i := len(s.log) - 1; i >= 0; i-- {
		t := s.log[i]
		if filter.AccountID != "" && t.AccountID != filter.AccountID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if total >= int64(offset) && len(list) < pageSize {
			list = append(list, *t)
		}
		total++
	}
	return list, total, nil
}

// AllTransactions 从新到旧的完整日志
func (s *LedgerService) AllTransactions() []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Transaction, 0, len(s.log))
	for i := len(s.log) - 1; i >= 0; i-- {
		out = append(out, *s.log[i])
	}
	return out
}
