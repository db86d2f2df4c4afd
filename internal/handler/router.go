package handler

import (
	"wagerledger/internal/service"
	"wagerledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(svc *service.Services, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware())

	h := NewHandler(svc)

	r.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		session := api.Group("/session")
		{
			session.POST("/register", h.Register)
			session.POST("/login", h.Login)
			session.POST("/logout", h.Logout)
			session.GET("/current", h.Current)
		}

		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListAccountTransactions)
		}

		wallet := api.Group("/wallet")
		{
			wallet.POST("/deposit", h.Deposit)
			wallet.POST("/withdraw", h.Withdraw)
		}

		api.POST("/game/play", h.Play)
		api.GET("/feed", h.Feed)
		api.GET("/settings", h.GetSettings)

		admin := api.Group("/admin", OperatorMiddleware(svc.Sessions))
		{
			admin.GET("/accounts", h.ListAccounts)
			admin.POST("/accounts/balance", h.AdjustBalance)
			admin.POST("/accounts/suspension", h.ToggleSuspension)

			admin.GET("/transactions", h.ListTransactions)
			admin.POST("/transactions/review", h.ReviewTransaction)

			admin.PUT("/settings", h.UpdateSettings)

			admin.GET("/tasks", h.ListTasks)
			admin.POST("/tasks", h.AddTask)
			admin.POST("/tasks/status", h.UpdateTaskStatus)
			admin.POST("/tasks/delete", h.DeleteTask)
		}
	}

	return r
}
