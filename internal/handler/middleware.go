package handler

import (
	"strconv"
	"time"

	"wagerledger/internal/infrastructure/metrics"
	"wagerledger/internal/service"
	"wagerledger/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	operatorRealm = `Basic realm="wager-admin"`
	operatorIDKey = "operator_id"
)

// LoggerMiddleware 请求日志
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
			log.Warn("[HTTP]", fields...)
			return
		}
		log.Info("[HTTP]", fields...)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("[PANIC]", zap.Any("error", err), zap.String("path", c.Request.URL.Path), zap.Stack("stack"))
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// MetricsMiddleware 按路由模板计数，避免路径参数撑爆标签
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.HttpRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// OperatorMiddleware 后台接口每次请求都用 HTTP Basic 携带运营账户的手机号和密码
func OperatorMiddleware(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		phone, secret, ok := c.Request.BasicAuth()
		if !ok || phone == "" || secret == "" {
			c.Header("WWW-Authenticate", operatorRealm)
			response.Error(c, response.CodeUnauthorized, "缺少运营账户凭证")
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		account, err := sessions.Authenticate(ctx, phone, secret)
		if err != nil {
			c.Header("WWW-Authenticate", operatorRealm)
			response.Error(c, response.CodeUnauthorized, "运营账户凭证无效")
			c.Abort()
			return
		}
		if err := sessions.RequireOperator(ctx, account.ID); err != nil {
			response.FromError(c, err)
			c.Abort()
			return
		}
		c.Set(operatorIDKey, account.ID)
		c.Next()
	}
}
