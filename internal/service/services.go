package service

import (
	"wagerledger/internal/engine"
	"wagerledger/internal/feed"
	"wagerledger/internal/model"
)

// Services 进程内的全部业务服务
type Services struct {
	Sessions *SessionService
	Settings *SettingsService
	Ledger   *LedgerService
	Games    *GameService
	Tasks    *TaskService
	Feed     *feed.Feed
}

type Options struct {
	BcryptCost   int
	FeedCapacity int
	Engine       *engine.Engine // 为空时使用默认随机源
}

func NewServices(infra Infra, opts Options) *Services {
	infra = infra.withDefaults()
	eng := opts.Engine
	if eng == nil {
		eng = engine.NewEngine(nil)
	}

	sessions := NewSessionService(infra, opts.BcryptCost)
	settings := NewSettingsService(sessions, infra)
	ledger := NewLedgerService(sessions, settings, infra)
	results := feed.New(opts.FeedCapacity)

	return &Services{
		Sessions: sessions,
		Settings: settings,
		Ledger:   ledger,
		Games:    NewGameService(eng, ledger, sessions, settings, results, infra),
		Tasks:    NewTaskService(sessions, infra),
		Feed:     results,
	}
}

// Restore 启动时用快照覆盖内存状态
func (s *Services) Restore(snap *model.Snapshot) {
	if snap == nil {
		return
	}
	s.Sessions.Restore(snap.Accounts, snap.SessionAccountID)
	s.Ledger.Restore(snap.Transactions)
	s.Settings.Restore(snap.Config)
	s.Feed.Restore(snap.Feed)
	s.Tasks.Restore(snap.Tasks)
}
