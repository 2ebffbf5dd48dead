package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/middleware"
)

const maxKeysPerRequest = 500

// Generate keys endpoint
func (api *API) generateKeys(c *gin.Context) {
	var req struct {
		Count int `json:"count" binding:"required,min=1"`
		Units int `json:"units" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Count > maxKeysPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must not exceed " + strconv.Itoa(maxKeysPerRequest)})
		return
	}

	keys, err := api.store.GenerateKeys(c.Request.Context(), req.Count, req.Units)
	if err != nil {
		api.respondError(c, err)
		return
	}
	metrics.RecordKeysGenerated(len(keys))

	c.JSON(http.StatusCreated, gin.H{"keys": keys})
}

// List keys endpoint
func (api *API) listKeys(c *gin.Context) {
	keys, err := api.store.ListKeys(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// Delete key endpoint
func (api *API) deleteKey(c *gin.Context) {
	keyID := c.Param("id")

	if err := api.store.DeleteKey(c.Request.Context(), keyID); err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Key deleted successfully", "key_id": keyID})
}

// Reset key endpoint
func (api *API) resetKey(c *gin.Context) {
	key, err := api.store.ResetKey(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, key)
}

// Top up key endpoint
func (api *API) topUpKey(c *gin.Context) {
	var req struct {
		Amount int `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := api.store.TopUpKey(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, key)
}

// List users endpoint
func (api *API) listUsers(c *gin.Context) {
	users, err := api.store.ListUsers(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Toggle admin endpoint
func (api *API) toggleAdmin(c *gin.Context) {
	targetID := c.Param("id")
	if callerID, _ := middleware.GetUserID(c); callerID == targetID {
		api.respondError(c, errSelfTarget)
		return
	}

	user, err := api.store.ToggleAdmin(c.Request.Context(), targetID)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// Delete user endpoint. The user's funded key is released, not deleted.
func (api *API) deleteUser(c *gin.Context) {
	targetID := c.Param("id")
	if callerID, _ := middleware.GetUserID(c); callerID == targetID {
		api.respondError(c, errSelfTarget)
		return
	}

	if err := api.store.DeleteUser(c.Request.Context(), targetID); err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully", "user_id": targetID})
}

// Export audit endpoint
func (api *API) listExports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := api.store.ListExportEvents(c.Request.Context(), limit)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exports": events})
}

// Admin overview endpoint
func (api *API) overview(c *gin.Context) {
	overview, err := api.store.Overview(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}
