package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/middlewares"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/posevents"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("BOH_SERVICE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-tenant-id", "x-user-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.SessionMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// Alerts
	r.POST("/api/alerts", createAlertHandler())
	r.GET("/api/alerts", listOpenAlertsHandler())
	r.GET("/api/alerts/:id", getAlertHandler())
	r.POST("/api/alerts/:id/acknowledge", acknowledgeAlertHandler())
	r.POST("/api/alert-rules", createAlertRuleHandler())
	r.POST("/api/alert-rules/:id/toggle", toggleAlertRuleHandler())

	// Recipes and costing
	r.POST("/api/recipes", createRecipeHandler())
	r.GET("/api/recipes", listRecipesHandler())
	r.GET("/api/recipes/:id", getRecipeHandler())
	r.PUT("/api/recipes/:id", updateRecipeHandler())
	r.GET("/api/recipes/:id/cost", recipeCostHandler())

	// Catalog (read-only master data)
	r.GET("/api/items", listItemsHandler())
	r.GET("/api/items/:id", getItemHandler())

	// Settings (versioned)
	r.GET("/api/settings", getSettingsHandler())
	r.POST("/api/settings", updateSettingsHandler())
	r.GET("/api/settings/versions", listSettingVersionsHandler())

	// Cost anomaly
	r.POST("/api/costs", recordCostHandler())
	r.POST("/api/costs/check-spike", checkCostSpikeHandler())

	// Budgets and variance
	r.POST("/api/budgets", upsertBudgetHandler())
	r.GET("/api/budgets/variance", budgetVarianceHandler())

	// Purchasing and receiving
	r.POST("/api/purchase-orders", createPurchaseOrderHandler())
	r.GET("/api/purchase-orders/:id", getPurchaseOrderHandler())
	r.POST("/api/purchase-receipts", postReceiptHandler())

	// Sales and labor
	r.POST("/api/sales", createSaleHandler())
	r.GET("/api/sales/:id", getSaleHandler())
	r.PUT("/api/sales/:id", updateSaleHandler())
	r.POST("/api/labor-entries", createLaborEntryHandler())

	// Vendor scorecards
	r.GET("/api/vendors/scorecards", listVendorScorecardsHandler())
	r.GET("/api/vendors/:vendorId/scorecard", getVendorScorecardHandler())
	r.POST("/api/vendors/scorecards/refresh", refreshScorecardsHandler())

	// Pub/Sub push endpoint for POS sale events.
	r.POST("/pubsub/pos-sales", posevents.PushHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if strings.EqualFold(strings.TrimSpace(os.Getenv("ENABLE_POS_PULL_WORKER")), "true") {
		go func() {
			if err := posevents.RunPullWorker(sigCtx); err != nil && sigCtx.Err() == nil {
				logger.WithFields(logrus.Fields{"field": "posevents"}).Error("pull worker exited: " + err.Error())
			}
		}()
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
