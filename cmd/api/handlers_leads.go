package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/leads"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/middleware"
)

// RemainingLeadsHeader reports the balance after a file export
const RemainingLeadsHeader = "X-Remaining-Leads"

// Catalog endpoint. A minimal catalog is served when inspection fails.
func (api *API) getCatalog(c *gin.Context) {
	cat, err := api.leads.Catalog(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fields":   cat.Fields(),
		"defaults": cat.Defaults(),
	})
}

func bindLeadRequest(c *gin.Context) (leads.Request, bool) {
	var req leads.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	return req, true
}

// Search endpoint
func (api *API) searchLeads(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	req, ok := bindLeadRequest(c)
	if !ok {
		return
	}

	res, err := api.leads.Search(c.Request.Context(), userID, req)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Preview endpoint
func (api *API) previewLeads(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	req, ok := bindLeadRequest(c)
	if !ok {
		return
	}

	res, err := api.leads.Preview(c.Request.Context(), userID, req)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Export endpoint
func (api *API) exportLeads(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	req, ok := bindLeadRequest(c)
	if !ok {
		return
	}

	res, err := api.leads.Export(c.Request.Context(), userID, req)
	if err != nil {
		api.respondError(c, err)
		return
	}
	api.sendExport(c, res)
}

// Quick export endpoint
func (api *API) quickExport(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req struct {
		Format string `json:"format"`
	}
	// the body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Format == "" {
		req.Format = c.Query("format")
	}

	res, err := api.leads.QuickExport(c.Request.Context(), userID, req.Format)
	if err != nil {
		api.respondError(c, err)
		return
	}
	api.sendExport(c, res)
}

// sendExport streams the artifact and removes it afterwards
func (api *API) sendExport(c *gin.Context, res *leads.ExportResult) {
	defer func() {
		if err := res.Artifact.Cleanup(); err != nil {
			api.logger.WithError(err).Warn("Failed to remove export artifact")
		}
	}()

	c.Header(RemainingLeadsHeader, strconv.Itoa(res.RemainingLeads))
	c.Header("Content-Type", res.Artifact.ContentType)
	c.FileAttachment(res.Artifact.Path, res.Artifact.Filename)
}
