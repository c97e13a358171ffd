package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autopost/autopost"
	apimodel "github.com/autopost/autopost/api/model"
	"github.com/autopost/autopost/config"
)

// PreviewCaption returns the caption an asset would be published with. Nothing is posted
// or written to the ledger.
func (a Api) PreviewCaption(c *gin.Context) {
	var req apimodel.PreviewCaption
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return
		}
	}
	if err := req.ValidatePreviewCaption(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	preview, err := a.autopost.PreviewCaption(c.Request.Context(), conf, req.AssetID)
	if err != nil {
		var cfgErr *autopost.ConfigurationError
		switch {
		case errors.Is(err, autopost.ErrAssetNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.As(err, &cfgErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	if preview == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no unconsumed asset left"})
		return
	}
	c.JSON(http.StatusOK, preview)
}
