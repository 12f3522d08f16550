package controllers

import (
	"github.com/gin-gonic/gin"

	"churchhub/internal/entitlement"
	"churchhub/internal/services"
	"churchhub/pkg/utils"
)

type PlansController struct {
	planService services.PlanServiceInterface
}

func NewPlansController(planService services.PlanServiceInterface) *PlansController {
	return &PlansController{
		planService: planService,
	}
}

// GetPlans godoc
// @Summary List plan tiers
// @Description Limits and features granted by every plan of a subscription kind
// @Tags Plans
// @Produce json
// @Param kind path string true "church | user"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Security BearerAuth
// @Router /plans/{kind} [get]
func (p *PlansController) GetPlans(c *gin.Context) {
	catalog, err := p.planService.GetPlans(entitlement.Kind(c.Param("kind")))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, catalog, "Plans fetched successfully")
}

// GetPlanInfo godoc
// @Summary Get one plan tier
// @Tags Plans
// @Produce json
// @Param kind path string true "church | user"
// @Param plan path string true "plan name"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Security BearerAuth
// @Router /plans/{kind}/{plan} [get]
func (p *PlansController) GetPlanInfo(c *gin.Context) {
	info, err := p.planService.GetPlanInfo(entitlement.Kind(c.Param("kind")), entitlement.Plan(c.Param("plan")))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, info, "Plan fetched successfully")
}
