package job

import (
	"context"
	"strconv"
	"time"

	"wagerledger/internal/engine"
	"wagerledger/internal/model"
	"wagerledger/pkg/idgen"
	"wagerledger/pkg/money"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	simulatedNames   = []string{"King_01", "LuckyBoy", "Dhaka_Don", "WinMaster", "BetLover", "Rony_XXX", "Tania_Q", "Boss_BD"}
	simulatedGames   = []model.GameKind{model.GameCoin, model.GameDice, model.GameWheel}
	simulatedAmounts = []int64{100, 200, 500, 1000, 50, 2000} // 整元
	coinPayoutRatio  = decimal.RequireFromString("1.9")
)

// FeedPusher 播报写入
type FeedPusher interface {
	Push(entry model.FeedEntry)
}

// FeedSimulator 开启模拟播报时，定时往播报里写一条虚构的中奖记录
//
// 只写播报，不碰账户和流水。
type FeedSimulator struct {
	feed     FeedPusher
	config   func() model.PlatformConfig
	onPush   func()
	rng      engine.Rand
	log      *zap.Logger
	stopCh   chan struct{}
	interval time.Duration
	now      func() time.Time
}

// NewFeedSimulator onPush 在每次写入后调用，可为空
func NewFeedSimulator(feed FeedPusher, config func() model.PlatformConfig, onPush func(), rng engine.Rand, interval time.Duration, log *zap.Logger) *FeedSimulator {
	if rng == nil {
		rng = engine.NewLockedRand(engine.NewSeed())
	}
	if interval <= 0 {
		interval = 4 * time.Second
	}
	if onPush == nil {
		onPush = func() {}
	}
	return &FeedSimulator{
		feed:     feed,
		config:   config,
		onPush:   onPush,
		rng:      rng,
		log:      log,
		stopCh:   make(chan struct{}),
		interval: interval,
		now:      time.Now,
	}
}

func (s *FeedSimulator) Start(ctx context.Context) {
	s.log.Info("[FeedSimulator] 模拟播报任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[FeedSimulator] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("[FeedSimulator] 任务停止")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *FeedSimulator) Stop() {
	close(s.stopCh)
}

// tick 开关关闭时什么也不做
func (s *FeedSimulator) tick() bool {
	if !s.config().FeedSimulationEnabled {
		return false
	}
	s.feed.Push(s.generate())
	s.onPush()
	return true
}

func (s *FeedSimulator) generate() model.FeedEntry {
	game := simulatedGames[s.rng.Intn(len(simulatedGames))]
	name := simulatedNames[s.rng.Intn(len(simulatedNames))]
	stake := money.FromMajor(simulatedAmounts[s.rng.Intn(len(simulatedAmounts))])

	entry := model.FeedEntry{
		GameID:      idgen.GenerateGameNo(),
		Game:        game,
		DisplayName: name,
		Stake:       stake,
		Win:         true,
		Simulated:   true,
		Timestamp:   s.now(),
	}
	switch game {
	case model.GameCoin:
		entry.Payout = money.MulRatio(stake, coinPayoutRatio)
		entry.Label = model.CoinHead
		if s.rng.Float64() < 0.5 {
			entry.Label = model.CoinTail
		}
	case model.GameDice:
		entry.Payout = money.MulInt(stake, 5)
		entry.Label = strconv.Itoa(s.rng.Intn(6) + 1)
	default:
		entry.Payout = money.MulInt(stake, 2)
		entry.Label = "2x"
	}
	return entry
}
