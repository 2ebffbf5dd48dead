package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/database"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/dataset"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/export"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/filter"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/leads"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/middleware"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/quota"
)

// errSelfTarget rejects admin actions aimed at the caller's own account
var errSelfTarget = errors.New("administrators cannot target their own account")

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var invalidField *filter.InvalidFieldError

	switch {
	case errors.Is(err, database.ErrInvalidCredentials), errors.Is(err, middleware.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, quota.ErrQuota):
		return http.StatusForbidden
	case errors.As(err, &invalidField),
		errors.Is(err, leads.ErrEmptyResult),
		errors.Is(err, dataset.ErrInvalidFormat),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, quota.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrConflict),
		errors.Is(err, database.ErrDatasetActive),
		errors.Is(err, quota.ErrKeyAlreadyBound),
		errors.Is(err, errSelfTarget):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal failures are
// logged and answered with a generic message.
func (api *API) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		metrics.RecordError("api", "internal")
		l := api.logger.WithError(err).WithField("path", c.FullPath())
		if userID, ok := middleware.GetUserID(c); ok {
			l = l.WithUserID(userID)
		}
		l.Error("Request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
