package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradeloop/internal/logger"
)

// serveStatus runs the read-only status HTTP server until ctx is canceled.
func (a *App) serveStatus(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", a.handleStatus)

	srv := &http.Server{
		Addr:              a.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("status server listening on %s", a.cfg.Server.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("status server failed: %v", err)
	}
}

func (a *App) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()

	openTrades := a.openTrades()
	open := make([]gin.H, 0, len(openTrades))
	for _, agg := range openTrades {
		open = append(open, gin.H{
			"trade_id":  agg.ID,
			"symbol":    agg.Symbol,
			"direction": agg.Decision.Direction,
			"qty":       agg.Execution.Qty,
			"entry":     agg.Execution.EntryFillPrice,
			"sl":        agg.Decision.StopPrice,
			"tp":        agg.Decision.TakeProfit,
			"opened_at": agg.OpenedAt,
		})
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Unix()
	todayStats, err := a.store.ClosedStats(ctx, dayStart)
	if err != nil {
		logger.Warnf("closed stats query failed: %v", err)
	}
	totalStats, err := a.store.ClosedStats(ctx, 0)
	if err != nil {
		logger.Warnf("closed stats query failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":              string(a.cfg.Mode()),
		"placement_allowed": a.placementAllowed(),
		"policy":            a.policy.Name(),
		"scorer_loaded":     a.scorer != nil && a.scorer.Available(),
		"uptime_sec":        int64(time.Since(a.startedAt).Seconds()),
		"open_trades":       open,
		"guardrail":         a.guard.State(),
		"today":             todayStats,
		"total":             totalStats,
	})
}
