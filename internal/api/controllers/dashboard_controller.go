package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"churchhub/internal/entitlement"
	"churchhub/internal/models/response_models"
	"churchhub/internal/services"
	"churchhub/pkg/utils"
)

type DashboardController struct {
	dashboardService services.DashboardService
	now              func() time.Time
}

func NewDashboardController(dashboardService services.DashboardService) *DashboardController {
	return &DashboardController{
		dashboardService: dashboardService,
		now:              time.Now,
	}
}

// GetDashboard godoc
// @Summary Get billing dashboard
// @Description Subscription counts by status, invoiced/paid/outstanding totals, revenue series, plan mix and recent payments for one subscription kind
// @Tags Dashboard
// @Produce json
// @Param kind      query string false "church | user (default: church)"
// @Param start     query string false "RFC3339 start (e.g. 2025-10-01T00:00:00Z)"
// @Param end       query string false "RFC3339 end   (e.g. 2025-10-19T23:59:59Z)"
// @Param last_days query int    false "Relative lookback in days (mutually exclusive with start/end). Default 30"
// @Param interval  query string false "Bucket size: day | week | month (default: day)"
// @Param tz        query string false "IANA timezone for bucketing (default: billing timezone)"
// @Param currency  query string false "ISO 4217 currency code for labeling (default: USD)"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 500 {object} utils.APIResponse
// @Security BearerAuth
// @Router /dashboard/subscriptions [get]
func (p *DashboardController) GetDashboard(c *gin.Context) {
	kind := entitlement.Kind(c.DefaultQuery("kind", string(entitlement.KindChurch)))
	interval := c.DefaultQuery("interval", "day")
	currency := c.DefaultQuery("currency", "USD")

	if !validInterval(interval) {
		utils.RespondError(c, http.StatusBadRequest, "interval must be one of: day, week, month")
		return
	}

	var (
		start, end time.Time
		err        error
	)

	startStr := c.Query("start")
	endStr := c.Query("end")
	lastDaysStr := c.Query("last_days")

	if lastDaysStr != "" && (startStr != "" || endStr != "") {
		utils.RespondError(c, http.StatusBadRequest, "provide either last_days or start/end (not both)")
		return
	}

	if lastDaysStr != "" {
		d, convErr := strconv.Atoi(lastDaysStr)
		if convErr != nil || d <= 0 {
			utils.RespondError(c, http.StatusBadRequest, "last_days must be a positive integer")
			return
		}
		end = p.now().UTC()
		start = end.AddDate(0, 0, -d)
	} else {
		if startStr != "" {
			if start, err = time.Parse(time.RFC3339, startStr); err != nil {
				utils.RespondError(c, http.StatusBadRequest, "start must be RFC3339 (e.g. 2025-10-01T00:00:00Z)")
				return
			}
		}
		if endStr != "" {
			if end, err = time.Parse(time.RFC3339, endStr); err != nil {
				utils.RespondError(c, http.StatusBadRequest, "end must be RFC3339 (e.g. 2025-10-19T23:59:59Z)")
				return
			}
		}
	}

	tr := response_models.TimeRange{
		Start:    start,
		End:      end,
		Interval: interval,
		Timezone: c.Query("tz"),
	}

	report, svcErr := p.dashboardService.BuildDashboard(c.Request.Context(), kind, tr, currency)
	if svcErr != nil {
		utils.HandleServiceError(c, svcErr)
		return
	}

	utils.RespondSuccess(c, report, "Dashboard data fetched successfully")
}

// ---- helpers ----

func validInterval(s string) bool {
	switch s {
	case "day", "week", "month":
		return true
	default:
		return false
	}
}
