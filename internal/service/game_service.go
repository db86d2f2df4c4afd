package service

import (
	"context"

	"wagerledger/internal/apperr"
	"wagerledger/internal/engine"
	"wagerledger/internal/feed"
	"wagerledger/internal/infrastructure/metrics"
	"wagerledger/internal/model"
	"wagerledger/pkg/money"

	"go.uber.org/zap"
)

// GameService 下注入口：余额校验 -> 开奖 -> 结算 -> 播报
type GameService struct {
	engine    *engine.Engine
	ledger    *LedgerService
	directory *SessionService
	settings  *SettingsService
	feed      *feed.Feed
	infra     Infra
}

func NewGameService(eng *engine.Engine, ledger *LedgerService, directory *SessionService, settings *SettingsService, results *feed.Feed, infra Infra) *GameService {
	return &GameService{
		engine:    eng,
		ledger:    ledger,
		directory: directory,
		settings:  settings,
		feed:      results,
		infra:     infra.withDefaults(),
	}
}

type PlayRequest struct {
	AccountID string
	Game      model.GameKind
	Stake     int64
	Pick      string
}

type PlayResult struct {
	Outcome     model.BetOutcome  `json:"outcome"`
	Transaction model.Transaction `json:"transaction"`
	Balance     int64             `json:"balance"`
}

// Play 下注并结算，整个过程持有账户锁
func (s *GameService) Play(ctx context.Context, req PlayRequest) (*PlayResult, error) {
	var (
		result      PlayResult
		displayName string
	)

	err := s.ledger.withAccountLock(ctx, req.AccountID, func() error {
		account, err := s.directory.GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if account.IsSuspended() {
			return apperr.New(apperr.KindSuspended, "账户已被冻结")
		}

		cfg := s.settings.Get()
		if req.Stake <= 0 {
			return apperr.New(apperr.KindValidation, "投注金额必须大于0")
		}
		if req.Stake < cfg.MinBet {
			return apperr.Newf(apperr.KindValidation, "最低投注金额为 %s", money.Format(cfg.MinBet))
		}
		if req.Stake > account.Balance {
			return apperr.New(apperr.KindInsufficientFunds, "余额不足")
		}

		outcome, err := s.engine.Resolve(engine.Bet{Game: req.Game, Stake: req.Stake, Pick: req.Pick}, cfg.BiasPercentage)
		if err != nil {
			return err
		}

		txn, balance, err := s.ledger.settleLocked(ctx, req.AccountID, outcome)
		if err != nil {
			return err
		}

		result = PlayResult{Outcome: outcome, Transaction: txn, Balance: balance}
		displayName = account.DisplayName
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 播报在锁外写入，不影响结算
	s.feed.Push(model.FeedEntry{
		GameID:      result.Outcome.GameID,
		Game:        result.Outcome.Game,
		DisplayName: displayName,
		Stake:       result.Outcome.Stake,
		Payout:      result.Outcome.Payout,
		Win:         result.Outcome.Win,
		Label:       result.Outcome.Label,
		Timestamp:   result.Outcome.Timestamp,
	})
	s.infra.Persister.MarkDirty(model.RecordFeed)

	label := "loss"
	if result.Outcome.Win {
		label = "win"
	}
	metrics.BetsSettled.WithLabelValues(string(result.Outcome.Game), label).Inc()
	s.infra.Logger.Debug("对局结算",
		zap.String("account_id", req.AccountID),
		zap.String("game_id", result.Outcome.GameID),
		zap.String("game", string(result.Outcome.Game)),
		zap.Int64("stake", result.Outcome.Stake),
		zap.Int64("payout", result.Outcome.Payout),
		zap.Int64("balance", result.Balance),
	)
	return &result, nil
}

// Feed 最近的战绩，从新到旧
func (s *GameService) Feed() []model.FeedEntry {
	return s.feed.List()
}
