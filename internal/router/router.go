package router

import (
	"github.com/cuteanbogdan/finance-tracker-backend/internal/config"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/handler"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/middleware"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/service"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRouter configures the Gin engine and the API surface.
func SetupRouter(cfg *config.Config, db *gorm.DB, log *logrus.Logger, ledger *service.Ledger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	util.RegisterValidators()

	r := gin.New()
	r.Use(middleware.RequestLogger(log), gin.Recovery())

	// ====== API ======
	api := r.Group("/api")

	// 登录/注册接口（不需要鉴权）
	authHandler := handler.NewAuthHandler(db, cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpireHours)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	// 需要登录才能访问的接口
	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(cfg.JWT.Secret, db),
		middleware.AuditMiddleware(db),
	)

	userHandler := handler.NewUserHandler(ledger)
	protected.GET("/me", userHandler.GetMe)
	protected.GET("/user-details", userHandler.GetUserDetails)
	protected.PUT("/balance", userHandler.UpdateBalance)
	protected.PUT("/currency", userHandler.UpdateCurrency)
	protected.POST("/profile", handler.UpdateProfile(db))
	protected.POST("/profile/password", handler.ChangePassword(db))

	txHandler := handler.NewTransactionHandler(ledger)
	protected.POST("/transactions", txHandler.CreateTransaction)
	protected.GET("/transactions", txHandler.ListTransactions)
	protected.PUT("/transactions/:id", txHandler.UpdateTransaction)
	protected.DELETE("/transactions/:id", txHandler.DeleteTransaction)

	exportHandler := handler.NewExportHandler(db)
	protected.GET("/export/csv", exportHandler.ExportCSV)
	protected.GET("/export/xlsx", exportHandler.ExportXLSX)

	auditHandler := handler.NewAuditHandler(db, cfg.App.PageSize)
	protected.GET("/audit-logs", auditHandler.ListAuditLogs)

	return r
}
