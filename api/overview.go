package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apimodel "github.com/autopost/autopost/api/model"
	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/internal/apierror"
)

func (a Api) GetOverview(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, err := a.autopost.Ledger().PostStats(c.Request.Context())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp := apimodel.Overview{
		ProjectName: conf.ProjectName,
		DryRun:      conf.DryRun,
		Stats:       stats,
		Credentials: apimodel.Credentials{
			OpenAIKey:     config.MaskSecret(conf.OpenAI.APIKey),
			RemoteCaption: strings.TrimSpace(conf.OpenAI.APIKey) != "",
			TwitterKey:    config.MaskSecret(conf.Twitter.APIKey),
			TwitterReady:  conf.Twitter.Configured(),
		},
	}
	if next, err := conf.Scheduler.NextRun(time.Now()); err == nil {
		resp.NextRun = &next
	}
	if a.breaker != nil {
		resp.Breaker = a.breaker.State()
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetSchedule(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	next, err := conf.Scheduler.NextRun(time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid schedule", err.Error()))
		return
	}
	c.JSON(http.StatusOK, apimodel.Schedule{
		Spec:       conf.Scheduler.CronSpec(),
		Timezone:   conf.Scheduler.Location().String(),
		InitialRun: conf.Scheduler.RunsInitially(),
		NextRun:    next,
	})
}
