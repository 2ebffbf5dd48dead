package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/middleware"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/quota"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

const (
	loginAttempts = 10
	loginWindow   = 15 * time.Minute
)

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	// Check database health
	if err := api.store.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	checks := gin.H{"database": "ok"}
	if api.cache != nil {
		if err := api.cache.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		checks["redis"] = "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"checks": checks,
	})
}

// Register endpoint. A product key is optional; when given it must be
// unused or the account is not created.
func (api *API) register(c *gin.Context) {
	var req struct {
		Username   string `json:"username" binding:"required,min=3,max=64"`
		Email      string `json:"email" binding:"required,email"`
		Password   string `json:"password" binding:"required,min=6"`
		ProductKey string `json:"product_key"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	productKey := strings.TrimSpace(req.ProductKey)
	if productKey != "" {
		key, err := api.store.GetKeyByValue(ctx, productKey)
		if err != nil || key.IsBound() || key.IsMerged() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or already used product key"})
			return
		}
	}

	user := &models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
	}
	if err := api.store.CreateUser(ctx, user, req.Password); err != nil {
		api.respondError(c, err)
		return
	}

	resp := gin.H{"user": user}
	if productKey != "" {
		key, merged, err := api.store.ActivateKey(ctx, user.ID, productKey)
		if err != nil {
			// the account exists, the key can be activated later from the dashboard
			api.logger.WithUserID(user.ID).WithError(err).Warn("Product key activation failed during registration")
			resp["key_error"] = err.Error()
		} else {
			metrics.RecordKeyActivated(merged)
			resp["leads"] = quota.Balance(key)
		}
	}

	c.JSON(http.StatusCreated, resp)
}

// Login endpoint
func (api *API) login(c *gin.Context) {
	var req struct {
		Login    string `json:"login" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	throttleKey := "login:" + c.ClientIP()
	if api.cache != nil {
		allowed, err := api.cache.CheckRateLimit(ctx, throttleKey, loginAttempts, loginWindow)
		if err != nil {
			api.logger.WithError(err).Warn("Login throttle unavailable")
		} else if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
			return
		}
	}

	user, err := api.store.Authenticate(ctx, strings.TrimSpace(req.Login), req.Password)
	if err != nil {
		api.respondError(c, err)
		return
	}

	if api.cache != nil {
		_ = api.cache.ResetRateLimit(ctx, throttleKey)
	}

	token, err := middleware.GenerateToken(user.ID, user.Role(), api.settings.TokenTTL)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(api.settings.TokenTTL.Seconds()),
		"user":       user,
	})
}

// fundedKey returns the caller's funded key, or nil when there is none
func (api *API) fundedKey(ctx context.Context, userID string) (*models.LicenseKey, error) {
	key, err := api.store.FundedKey(ctx, userID)
	if errors.Is(err, quota.ErrNoLicense) {
		return nil, nil
	}
	return key, err
}

// Profile endpoint
func (api *API) me(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	ctx := c.Request.Context()

	user, err := api.store.GetUserByID(ctx, userID)
	if err != nil {
		api.respondError(c, err)
		return
	}

	key, err := api.fundedKey(ctx, userID)
	if err != nil {
		api.respondError(c, err)
		return
	}

	resp := gin.H{"user": user, "role": user.Role()}
	if key != nil {
		resp["license_key"] = key
		resp["leads"] = quota.Balance(key)
	}
	c.JSON(http.StatusOK, resp)
}

// Lead balance endpoint
func (api *API) myLeads(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	key, err := api.fundedKey(c.Request.Context(), userID)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quota.Balance(key))
}

// Dashboard endpoint. Secondary figures degrade to zero when their
// backing service fails.
func (api *API) dashboard(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	ctx := c.Request.Context()

	key, err := api.fundedKey(ctx, userID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	balance := quota.Balance(key)

	stats := &models.DashboardStats{
		LeadsRemaining: balance.RemainingUnits,
		TotalLeads:     balance.TotalUnits,
		PlanType:       balance.Plan,
	}

	if n, err := api.store.CountSavedFilters(ctx, userID); err != nil {
		api.logger.WithUserID(userID).WithError(err).Warn("Failed to count saved filters")
	} else {
		stats.SavedFilters = n
	}

	if api.cache != nil {
		if n, err := api.cache.ExportsToday(ctx, userID, time.Now().UTC()); err != nil {
			api.logger.WithUserID(userID).WithError(err).Warn("Failed to read export counter")
		} else {
			stats.ExportsToday = n
		}
	}

	if ds, err := api.leads.DatasetStats(ctx); err != nil {
		api.logger.WithUserID(userID).WithError(err).Warn("Dataset statistics unavailable")
	} else {
		stats.Dataset = ds
	}

	c.JSON(http.StatusOK, stats)
}

// Product key activation endpoint
func (api *API) activateKey(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req struct {
		ProductKey string `json:"product_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, merged, err := api.store.ActivateKey(c.Request.Context(), userID, req.ProductKey)
	if err != nil {
		api.respondError(c, err)
		return
	}
	metrics.RecordKeyActivated(merged)

	c.JSON(http.StatusOK, gin.H{
		"merged": merged,
		"leads":  quota.Balance(key),
	})
}
