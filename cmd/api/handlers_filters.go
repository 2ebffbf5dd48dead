package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/middleware"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// List saved filters endpoint
func (api *API) listFilters(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	filters, err := api.store.ListSavedFilters(c.Request.Context(), userID)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"filters": filters})
}

// Create saved filter endpoint
func (api *API) createFilter(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req struct {
		Name    string            `json:"name" binding:"required,max=100"`
		Filters models.FilterSpec `json:"filters"`
		Columns []string          `json:"columns"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be blank"})
		return
	}

	filter := &models.SavedFilter{
		UserID:  userID,
		Name:    name,
		Filters: req.Filters,
		Columns: req.Columns,
	}
	if err := api.store.CreateSavedFilter(c.Request.Context(), filter); err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, filter)
}

// Get saved filter endpoint
func (api *API) getFilter(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	filter, err := api.store.GetSavedFilter(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, filter)
}

// Delete saved filter endpoint
func (api *API) deleteFilter(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	filterID := c.Param("id")

	if err := api.store.DeleteSavedFilter(c.Request.Context(), userID, filterID); err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Filter deleted successfully", "filter_id": filterID})
}
