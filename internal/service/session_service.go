package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"wagerledger/internal/apperr"
	"wagerledger/internal/model"
	"wagerledger/pkg/idgen"
	"wagerledger/pkg/money"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SessionService 会话目录
//
// 账户的身份、凭证、角色、状态以及"当前登录账户"都归这里管理。
// 余额字段只允许账本通过 balanceOf/setBalance 读写。
type SessionService struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	byPhone  map[string]string
	byName   map[string]string
	current  string

	bcryptCost int
	infra      Infra
	now        func() time.Time
}

func NewSessionService(infra Infra, bcryptCost int) *SessionService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &SessionService{
		accounts:   make(map[string]*model.Account),
		byPhone:    make(map[string]string),
		byName:     make(map[string]string),
		bcryptCost: bcryptCost,
		infra:      infra.withDefaults(),
		now:        time.Now,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Phone        string
	DisplayName  string
	Email        string
	Secret       string
	ReferralCode string
}

// OperatorSeed 启动时引导运营账户用
type OperatorSeed struct {
	ID           string
	DisplayName  string
	Email        string
	Phone        string
	Secret       string
	ReferralCode string
}

// Restore 用快照恢复账户和当前会话，指向不存在账户的会话会被丢弃
func (s *SessionService) Restore(accounts []model.Account, currentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*model.Account, len(accounts))
	s.byPhone = make(map[string]string, len(accounts))
	s.byName = make(map[string]string, len(accounts))
	for i := range accounts {
		a := accounts[i]
		if a.Balance < 0 {
			s.infra.Logger.Warn("快照中的余额为负，截断到 0", zap.String("account_id", a.ID), zap.Int64("balance", a.Balance))
			a.Balance = money.ClampNonNegative(a.Balance)
		}
		s.index(&a)
	}

	s.current = ""
	if _, ok := s.accounts[currentID]; ok {
		s.current = currentID
	}
}

func (s *SessionService) index(a *model.Account) {
	s.accounts[a.ID] = a
	s.byPhone[a.Phone] = a.ID
	s.byName[nameKey(a.DisplayName)] = a.ID
}

// 昵称唯一性不区分大小写
func nameKey(name string) string {
	return strings.ToLower(name)
}

// Register 注册普通用户，不会自动登录
func (s *SessionService) Register(ctx context.Context, req RegisterRequest) (*model.Account, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = strings.TrimSpace(req.Email)

	if err := requireNonEmpty("手机号", req.Phone); err != nil {
		return nil, err
	}
	if err := requireNonEmpty("昵称", req.DisplayName); err != nil {
		return nil, err
	}
	if err := requireNonEmpty("密码", req.Secret); err != nil {
		return nil, err
	}

	s.mu.RLock()
	err := s.checkUniqueLocked(req.Phone, req.DisplayName, "")
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	// bcrypt 较慢，放在锁外
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), s.bcryptCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "密码加密失败", err)
	}

	s.mu.Lock()
	// 加锁后再检查一次，防止并发注册同一手机号
	if err := s.checkUniqueLocked(req.Phone, req.DisplayName, ""); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	now := s.now()
	account := &model.Account{
		ID:           idgen.GenerateAccountID(),
		Phone:        req.Phone,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		SecretHash:   string(hash),
		Balance:      0,
		Role:         model.RoleStandard,
		Status:       model.AccountStatusActive,
		ReferralCode: strings.TrimSpace(req.ReferralCode),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.index(account)
	out := *account
	s.mu.Unlock()

	s.infra.Persister.MarkDirty(model.RecordAccounts)
	s.infra.Logger.Info("新用户注册",
		zap.String("account_id", out.ID),
		zap.String("display_name", out.DisplayName),
	)
	return &out, nil
}

// checkUniqueLocked selfID 为自身账户时跳过自身
func (s *SessionService) checkUniqueLocked(phone, displayName, selfID string) error {
	if id, ok := s.byPhone[phone]; ok && id != selfID {
		return apperr.New(apperr.KindDuplicateIdentifier, "手机号已被注册")
	}
	if id, ok := s.byName[nameKey(displayName)]; ok && id != selfID {
		return apperr.New(apperr.KindDuplicateDisplayName, "昵称已被使用")
	}
	return nil
}

// Authenticate 校验手机号和密码
func (s *SessionService) Authenticate(ctx context.Context, phone, secret string) (*model.Account, error) {
	s.mu.RLock()
	id, ok := s.byPhone[strings.TrimSpace(phone)]
	var account model.Account
	if ok {
		account = *s.accounts[id]
	}
	s.mu.RUnlock()

	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "账户不存在")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, apperr.New(apperr.KindWrongSecret, "密码错误")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "密码校验失败", err)
	}
	if account.IsSuspended() {
		return nil, apperr.New(apperr.KindSuspended, "账户已被冻结")
	}
	return &account, nil
}

// Login 认证通过后设为当前会话
func (s *SessionService) Login(ctx context.Context, phone, secret string) (*model.Account, error) {
	account, err := s.Authenticate(ctx, phone, secret)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = account.ID
	s.mu.Unlock()

	s.infra.Persister.MarkDirty(model.RecordSession)
	s.infra.Logger.Info("用户登录", zap.String("account_id", account.ID))
	return account, nil
}

func (s *SessionService) Logout(ctx context.Context) {
	s.mu.Lock()
	prev := s.current
	s.current = ""
	s.mu.Unlock()

	if prev != "" {
		s.infra.Persister.MarkDirty(model.RecordSession)
		s.infra.Logger.Info("用户登出", zap.String("account_id", prev))
	}
}

// Current 每次都从目录重新读取，返回的是最新的账户状态
func (s *SessionService) Current(ctx context.Context) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == "" {
		return nil, apperr.New(apperr.KindNotFound, "当前没有登录账户")
	}
	a, ok := s.accounts[s.current]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "当前没有登录账户")
	}
	out := *a
	return &out, nil
}

// CurrentAccountID 未登录时为空
func (s *SessionService) CurrentAccountID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// EnsureOperator 引导运营账户
//
// 快照里已有同 ID 的账户时保留其余额和创建时间，身份、凭证、角色以配置为准，
// 状态始终为 ACTIVE。
func (s *SessionService) EnsureOperator(ctx context.Context, seed OperatorSeed) (*model.Account, error) {
	if err := requireNonEmpty("运营账户 ID", seed.ID); err != nil {
		return nil, err
	}
	if err := requireNonEmpty("运营账户手机号", seed.Phone); err != nil {
		return nil, err
	}
	if err := requireNonEmpty("运营账户密码", seed.Secret); err != nil {
		return nil, err
	}
	if seed.DisplayName == "" {
		seed.DisplayName = seed.ID
	}

	s.mu.RLock()
	var existingHash string
	if a, ok := s.accounts[seed.ID]; ok {
		existingHash = a.SecretHash
	}
	s.mu.RUnlock()

	hash := existingHash
	if existingHash == "" || bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(seed.Secret)) != nil {
		h, err := bcrypt.GenerateFromPassword([]byte(seed.Secret), s.bcryptCost)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "密码加密失败", err)
		}
		hash = string(h)
	}

	s.mu.Lock()
	if err := s.checkUniqueLocked(seed.Phone, seed.DisplayName, seed.ID); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.now()
	account, ok := s.accounts[seed.ID]
	if ok {
		delete(s.byPhone, account.Phone)
		delete(s.byName, nameKey(account.DisplayName))
	} else {
		account = &model.Account{ID: seed.ID, CreatedAt: now}
	}
	account.Phone = seed.Phone
	account.DisplayName = seed.DisplayName
	account.Email = seed.Email
	account.SecretHash = hash
	account.ReferralCode = seed.ReferralCode
	account.Role = model.RoleOperator
	account.Status = model.AccountStatusActive
	account.UpdatedAt = now
	s.index(account)
	out := *account
	s.mu.Unlock()

	s.infra.Persister.MarkDirty(model.RecordAccounts)
	s.infra.Logger.Info("运营账户就绪",
		zap.String("account_id", out.ID),
		zap.Int64("balance", out.Balance),
		zap.Bool("restored", ok),
	)
	return &out, nil
}

func (s *SessionService) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "账户不存在: %s", accountID)
	}
	out := *a
	return &out, nil
}

// ListAccounts 按注册时间从早到晚
func (s *SessionService) ListAccounts(ctx context.Context) []model.Account {
	return s.AllAccounts()
}

func (s *SessionService) AllAccounts() []model.Account {
	s.mu.RLock()
	out := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RequireOperator 调用方必须是运营账户
func (s *SessionService) RequireOperator(ctx context.Context, accountID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID]
	if !ok || !a.IsOperator() {
		return apperr.New(apperr.KindForbidden, "需要运营权限")
	}
	return nil
}

// SetUserSuspension 切换冻结状态，运营账户不能被冻结
func (s *SessionService) SetUserSuspension(ctx context.Context, operatorID, accountID string) (*model.Account, error) {
	if err := s.RequireOperator(ctx, operatorID); err != nil {
		return nil, err
	}

	// 与下注、提现互斥，进行中的操作完成后状态才切换
	release, err := s.infra.lockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	a, ok := s.accounts[accountID]
	if !ok {
		s.mu.Unlock()
		return nil, apperr.Newf(apperr.KindNotFound, "账户不存在: %s", accountID)
	}
	if a.IsOperator() {
		s.mu.Unlock()
		return nil, apperr.New(apperr.KindForbidden, "运营账户不能被冻结")
	}
	if a.IsSuspended() {
		a.Status = model.AccountStatusActive
	} else {
		a.Status = model.AccountStatusSuspended
	}
	a.UpdatedAt = s.now()
	out := *a
	s.mu.Unlock()

	s.infra.Persister.MarkDirty(model.RecordAccounts)
	s.infra.Logger.Info("账户状态变更",
		zap.String("operator_id", operatorID),
		zap.String("account_id", accountID),
		zap.String("status", out.Status),
	)
	return &out, nil
}

// ============================================================================
// 余额读写，仅供账本在持有账户锁时调用
// ============================================================================

func (s *SessionService) balanceOf(accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return 0, apperr.Newf(apperr.KindNotFound, "账户不存在: %s", accountID)
	}
	return a.Balance, nil
}

func (s *SessionService) setBalance(accountID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "账户不存在: %s", accountID)
	}
	a.Balance = money.ClampNonNegative(balance)
	a.UpdatedAt = s.now()
	return nil
}
