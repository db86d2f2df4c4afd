// Package engine 开奖引擎
//
// 给定一注和运营配置的胜率偏置，产出开奖结果与派彩。引擎不读写任何
// 可变状态，不校验余额；随机源由调用方注入，便于测试复现。
package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"wagerledger/internal/apperr"
	"wagerledger/internal/model"
	"wagerledger/pkg/idgen"
	"wagerledger/pkg/money"

	"github.com/shopspring/decimal"
)

// Rand 引擎使用的随机源
type Rand interface {
	// Float64 返回 [0,1) 的均匀分布
	Float64() float64
	// Intn 返回 [0,n) 的均匀整数
	Intn(n int) int
}

var (
	coinMultiplier = decimal.RequireFromString("1.9")
	diceMultiplier = int64(5)

	// WheelSegments 转盘倍率，偶数位为有利区，奇数位为不利区
	WheelSegments = []int64{2, 0, 3, 0, 2, 0, 10, 0}
)

// Bet 一注
type Bet struct {
	Game  model.GameKind
	Stake int64
	Pick  string // 硬币：HEAD/TAIL；骰子："1"-"6"；转盘忽略
}

type Engine struct {
	rng Rand
	now func() time.Time
}

// NewEngine rng 为空时使用加密种子初始化的默认随机源
func NewEngine(rng Rand) *Engine {
	if rng == nil {
		rng = NewLockedRand(NewSeed())
	}
	return &Engine{rng: rng, now: time.Now}
}

// Resolve 开奖
func (e *Engine) Resolve(bet Bet, bias int) (model.BetOutcome, error) {
	if bet.Stake <= 0 {
		return model.BetOutcome{}, apperr.New(apperr.KindInvalidArgument, "投注金额必须大于0")
	}
	if bias < 0 || bias > 100 {
		return model.BetOutcome{}, apperr.Newf(apperr.KindInvalidArgument, "胜率偏置超出范围: %d", bias)
	}

	var (
		outcome model.BetOutcome
		err     error
	)
	switch bet.Game {
	case model.GameCoin:
		outcome, err = e.resolveCoin(bet, bias)
	case model.GameDice:
		outcome, err = e.resolveDice(bet, bias)
	case model.GameWheel:
		outcome = e.resolveWheel(bet, bias)
	default:
		return model.BetOutcome{}, apperr.Newf(apperr.KindInvalidArgument, "未知游戏类型: %s", bet.Game)
	}
	if err != nil {
		return model.BetOutcome{}, err
	}

	outcome.GameID = idgen.GenerateGameNo()
	outcome.Game = bet.Game
	outcome.Stake = bet.Stake
	outcome.Timestamp = e.now()
	return outcome, nil
}

// draw 返回 [0,100) 的均匀分布
func (e *Engine) draw() float64 {
	return e.rng.Float64() * 100
}

func (e *Engine) resolveCoin(bet Bet, bias int) (model.BetOutcome, error) {
	pick := strings.ToUpper(strings.TrimSpace(bet.Pick))
	if pick != model.CoinHead && pick != model.CoinTail {
		return model.BetOutcome{}, apperr.Newf(apperr.KindInvalidArgument, "硬币只能选择 HEAD 或 TAIL: %q", bet.Pick)
	}

	if e.draw() < float64(bias) {
		return model.BetOutcome{
			Win:    true,
			Payout: money.MulRatio(bet.Stake, coinMultiplier),
			Label:  pick,
		}, nil
	}

	opposite := model.CoinHead
	if pick == model.CoinHead {
		opposite = model.CoinTail
	}
	return model.BetOutcome{Label: opposite}, nil
}

// resolveDice 偏置只决定"是否允许命中"，命中与否仍由骰面决定，
// 所以实际胜率上限是 bias*5/6 再乘 1/6
func (e *Engine) resolveDice(bet Bet, bias int) (model.BetOutcome, error) {
	selected, err := strconv.Atoi(strings.TrimSpace(bet.Pick))
	if err != nil || selected < 1 || selected > 6 {
		return model.BetOutcome{}, apperr.Newf(apperr.KindInvalidArgument, "骰子点数必须在 1-6 之间: %q", bet.Pick)
	}

	favored := e.draw() < float64(bias)*5/6

	face := e.rng.Intn(6) + 1
	if !favored && face == selected {
		face = face%6 + 1
	}

	outcome := model.BetOutcome{Label: strconv.Itoa(face)}
	if face == selected {
		outcome.Win = true
		outcome.Payout = money.MulInt(bet.Stake, diceMultiplier)
	}
	return outcome, nil
}

func (e *Engine) resolveWheel(bet Bet, bias int) model.BetOutcome {
	var candidates []int
	favorable := e.draw() < float64(bias)
	for i := range WheelSegments {
		if (i%2 == 0) == favorable {
			candidates = append(candidates, i)
		}
	}

	idx := candidates[e.rng.Intn(len(candidates))]
	multiplier := WheelSegments[idx]
	payout := money.MulInt(bet.Stake, multiplier)

	return model.BetOutcome{
		Win:    payout > 0,
		Payout: payout,
		Label:  strconv.FormatInt(multiplier, 10) + "x",
	}
}

// ============================================================================
// 默认随机源
// ============================================================================

// lockedRand math/rand 不是并发安全的，这里加锁
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewLockedRand(seed int64) Rand {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

// NewSeed 用 crypto/rand 生成种子，失败时退回到时间戳
func NewSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
