// Package router 注册全部HTTP路由
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/xiebiao/library/docs"
	"github.com/xiebiao/library/internal/interface/http/handler"
	"github.com/xiebiao/library/internal/interface/http/middleware"
	"github.com/xiebiao/library/pkg/response"
)

// Options 路由开关
type Options struct {
	Mode          string // debug | release | test
	EnableSwagger bool
	EnableMetrics bool
	MetricsPath   string
	EnableTracing bool
	// HealthCheck 检查存储等依赖,为nil时只返回进程存活
	HealthCheck func(ctx context.Context) error
}

// Handlers 接口层依赖
type Handlers struct {
	User     *handler.UserHandler
	Book     *handler.BookHandler
	Checkout *handler.CheckoutHandler
	History  *handler.HistoryHandler
	Auth     *middleware.AuthMiddleware
}

// New 创建Gin引擎
// 中间件顺序: Recovery → Logger → Metrics → Tracing → 路由匹配 → Auth → Handler
func New(opts Options, h Handlers) *gin.Engine {
	switch opts.Mode {
	case gin.ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case gin.TestMode:
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger())
	if opts.EnableMetrics {
		r.Use(middleware.Metrics())
	}
	if opts.EnableTracing {
		r.Use(middleware.Tracing())
	}

	r.GET("/health", health(opts.HealthCheck))
	if opts.EnableMetrics {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}
	if opts.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := h.Auth
	v1 := r.Group("/api/v1")

	users := v1.Group("/users")
	{
		users.POST("/register", h.User.Register)
		users.POST("/login", h.User.Login)
		users.POST("/refresh", h.User.Refresh)
		users.POST("/logout", auth.RequireAuth(), h.User.Logout)
		users.GET("/me", auth.RequireAuth(), h.User.Me)
		users.PUT("/me/password", auth.RequireAuth(), h.User.ChangePassword)
		users.DELETE("/:id", auth.RequireAuth(), auth.RequireLibrarian(), h.User.Delete)
	}

	books := v1.Group("/books")
	{
		books.GET("", auth.OptionalAuth(), h.Book.List)
		books.GET("/:id", auth.OptionalAuth(), h.Book.Get)
		books.GET("/:id/inventory", auth.OptionalAuth(), h.Book.Inventory)

		books.POST("/:id/checkout", auth.RequireAuth(), h.Book.Checkout)
		books.POST("/:id/return", auth.RequireAuth(), h.Book.Return)

		admin := books.Group("", auth.RequireAuth(), auth.RequireLibrarian())
		admin.POST("", h.Book.Create)
		admin.PUT("/:id", h.Book.Update)
		admin.DELETE("/:id", h.Book.Delete)
		admin.GET("/:id/inventory/logs", h.Book.InventoryLogs)
	}

	v1.GET("/inventory", auth.OptionalAuth(), h.Book.InventoryList)

	checkouts := v1.Group("/checkouts", auth.RequireAuth())
	{
		checkouts.GET("", h.Checkout.List)
		checkouts.POST("", h.Checkout.Create)
		checkouts.GET("/:id", h.Checkout.Get)
		checkouts.POST("/:id/return", h.Checkout.Return)

		admin := checkouts.Group("", auth.RequireLibrarian())
		admin.POST("/overdue", h.Checkout.MarkOverdue)
		admin.PATCH("/:id/status", h.Checkout.SetStatus)
		admin.DELETE("/:id", h.Checkout.Complete)
	}

	history := v1.Group("/history", auth.RequireAuth())
	{
		history.GET("", h.History.List)
		history.DELETE("/:id", auth.RequireLibrarian(), h.History.Delete)
	}

	return r
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, response.Response{
					Code:    http.StatusServiceUnavailable * 100,
					Message: "unhealthy: " + err.Error(),
				})
				return
			}
		}
		response.Success(c, gin.H{"status": "healthy"})
	}
}
