package handler

import (
	"strconv"

	"wagerledger/internal/model"
	"wagerledger/internal/service"
	"wagerledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	sessions *service.SessionService
	settings *service.SettingsService
	ledger   *service.LedgerService
	games    *service.GameService
	tasks    *service.TaskService
}

func NewHandler(svc *service.Services) *Handler {
	return &Handler{
		sessions: svc.Sessions,
		settings: svc.Settings,
		ledger:   svc.Ledger,
		games:    svc.Games,
		tasks:    svc.Tasks,
	}
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, pageSize
}

// ============================================================
// 会话
// ============================================================

type RegisterRequest struct {
	Phone        string `json:"phone" binding:"required"`
	DisplayName  string `json:"display_name" binding:"required"`
	Email        string `json:"email"`
	Secret       string `json:"secret" binding:"required"`
	ReferralCode string `json:"referral_code"`
}

// Register 注册并登录
// POST /api/v1/session/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if _, err := h.sessions.Register(ctx, service.RegisterRequest{
		Phone:        req.Phone,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		Secret:       req.Secret,
		ReferralCode: req.ReferralCode,
	}); err != nil {
		response.FromError(c, err)
		return
	}

	account, err := h.sessions.Login(ctx, req.Phone, req.Secret)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, account)
}

type LoginRequest struct {
	Phone  string `json:"phone" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

// Login 登录
// POST /api/v1/session/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.sessions.Login(c.Request.Context(), req.Phone, req.Secret)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, account)
}

// Logout 登出
// POST /api/v1/session/logout
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.Logout(c.Request.Context())
	response.Success(c, nil)
}

// Current 当前登录账户
// GET /api/v1/session/current
func (h *Handler) Current(c *gin.Context) {
	account, err := h.sessions.Current(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, account)
}

// ============================================================
// 账户与钱包
// ============================================================

// GetBalance 查询余额
// GET /api/v1/account/balance?account_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		response.ParamError(c, "account_id 参数不能为空")
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"account_id": accountID,
		"balance":    balance,
	})
}

// ListAccountTransactions 用户流水
// GET /api/v1/account/transactions?account_id=xxx&page=1&page_size=10
func (h *Handler) ListAccountTransactions(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		response.ParamError(c, "account_id 参数不能为空")
		return
	}
	page, pageSize := pagination(c)

	list, total, err := h.ledger.ListTransactions(c.Request.Context(), service.TransactionFilter{AccountID: accountID}, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type WalletRequest struct {
	AccountID   string `json:"account_id" binding:"required"`
	Amount      int64  `json:"amount"`
	Method      string `json:"method"`
	Number      string `json:"number"`
	ExternalRef string `json:"external_ref"`
}

// Deposit 充值申请
// POST /api/v1/wallet/deposit
func (h *Handler) Deposit(c *gin.Context) {
	h.walletRequest(c, model.TransactionTypeDeposit)
}

// Withdraw 提现申请，提交即冻结
// POST /api/v1/wallet/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	h.walletRequest(c, model.TransactionTypeWithdraw)
}

func (h *Handler) walletRequest(c *gin.Context, txnType string) {
	var req WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	txn, err := h.ledger.RequestTransaction(c.Request.Context(), service.TransactionRequest{
		AccountID:   req.AccountID,
		Type:        txnType,
		Amount:      req.Amount,
		Method:      req.Method,
		Number:      req.Number,
		ExternalRef: req.ExternalRef,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, txn)
}

// ============================================================
// 游戏
// ============================================================

type PlayRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Game      string `json:"game" binding:"required"`
	Stake     int64  `json:"stake"`
	Pick      string `json:"pick"`
}

// Play 下注
// POST /api/v1/game/play
func (h *Handler) Play(c *gin.Context) {
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.games.Play(c.Request.Context(), service.PlayRequest{
		AccountID: req.AccountID,
		Game:      model.GameKind(req.Game),
		Stake:     req.Stake,
		Pick:      req.Pick,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// Feed 最近战绩
// GET /api/v1/feed
func (h *Handler) Feed(c *gin.Context) {
	response.Success(c, h.games.Feed())
}

// GetSettings 公开的运营配置
// GET /api/v1/settings
func (h *Handler) GetSettings(c *gin.Context) {
	response.Success(c, h.settings.Get())
}

// ============================================================
// 运营后台
// ============================================================

func operatorID(c *gin.Context) string {
	return c.GetString(operatorIDKey)
}

// ListAccounts 全部账户
// GET /api/v1/admin/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	response.Success(c, h.sessions.ListAccounts(c.Request.Context()))
}

// ListTransactions 全部流水，可按状态、类型、账户过滤
// GET /api/v1/admin/transactions?status=PENDING&type=&account_id=&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := service.TransactionFilter{
		AccountID: c.Query("account_id"),
		Type:      c.Query("type"),
		Status:    c.Query("status"),
	}

	list, total, err := h.ledger.ListTransactions(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type ReviewRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	Decision      string `json:"decision" binding:"required"`
}

// ReviewTransaction 审核充值/提现
// POST /api/v1/admin/transactions/review
func (h *Handler) ReviewTransaction(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	txn, err := h.ledger.ReviewTransaction(c.Request.Context(), operatorID(c), req.TransactionID, req.Decision)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, txn)
}

type AdjustBalanceRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Balance   int64  `json:"balance"`
}

// AdjustBalance 直接设置余额
// POST /api/v1/admin/accounts/balance
func (h *Handler) AdjustBalance(c *gin.Context) {
	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.ledger.AdjustBalance(c.Request.Context(), operatorID(c), req.AccountID, req.Balance)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

type SuspensionRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// ToggleSuspension 冻结/解冻
// POST /api/v1/admin/accounts/suspension
func (h *Handler) ToggleSuspension(c *gin.Context) {
	var req SuspensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.sessions.SetUserSuspension(c.Request.Context(), operatorID(c), req.AccountID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, account)
}

// UpdateSettings 部分更新运营配置
// PUT /api/v1/admin/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var patch model.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	cfg, err := h.settings.Update(c.Request.Context(), operatorID(c), patch)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, cfg)
}

// ListTasks 待办列表
// GET /api/v1/admin/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.ListTasks(c.Request.Context(), operatorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, tasks)
}

type AddTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// AddTask 新增待办
// POST /api/v1/admin/tasks
func (h *Handler) AddTask(c *gin.Context) {
	var req AddTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	task, err := h.tasks.AddTask(c.Request.Context(), operatorID(c), service.AddTaskRequest{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, task)
}

type TaskStatusRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// UpdateTaskStatus 修改待办状态
// POST /api/v1/admin/tasks/status
func (h *Handler) UpdateTaskStatus(c *gin.Context) {
	var req TaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	task, err := h.tasks.UpdateTaskStatus(c.Request.Context(), operatorID(c), req.TaskID, req.Status)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, task)
}

// DeleteTask 删除待办
// POST /api/v1/admin/tasks/delete
func (h *Handler) DeleteTask(c *gin.Context) {
	var req struct {
		TaskID string `json:"task_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.tasks.DeleteTask(c.Request.Context(), operatorID(c), req.TaskID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"task_id": req.TaskID})
}
