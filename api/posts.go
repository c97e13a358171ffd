package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apimodel "github.com/autopost/autopost/api/model"
	"github.com/autopost/autopost/internal/apierror"
	"github.com/autopost/autopost/model"
)

func (a Api) GetPosts(c *gin.Context) {
	ledger := a.autopost.Ledger()
	if assetID := c.Query("asset_id"); assetID != "" {
		resp, err := ledger.ListPostsByAsset(c.Request.Context(), assetID)
		if err != nil {
			c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	limit, err := apimodel.ParseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	resp, err := ledger.ListPosts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetErrors(c *gin.Context) {
	limit, err := apimodel.ParseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	resp, err := a.autopost.Ledger().ListErrors(c.Request.Context(), limit)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetAssets lists the current candidates, each flagged with whether the ledger has consumed it.
func (a Api) GetAssets(c *gin.Context) {
	ctx := c.Request.Context()
	candidates, err := a.autopost.Source().ListCandidates(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	consumed, err := a.autopost.Ledger().ConsumedAssetIDs(ctx)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp := make([]model.AssetView, 0, len(candidates))
	for _, asset := range candidates {
		_, used := consumed[asset.ID]
		resp = append(resp, model.AssetView{Asset: asset, Consumed: used})
	}
	c.JSON(http.StatusOK, resp)
}
