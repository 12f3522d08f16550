package services

import (
	"churchhub/internal/entitlement"
	"churchhub/internal/models/response_models"
	"churchhub/pkg/utils"
)

type PlanServiceInterface interface {
	GetPlans(kind entitlement.Kind) (response_models.CatalogResponse, error)
	GetPlanInfo(kind entitlement.Kind, plan entitlement.Plan) (response_models.PlanInfo, error)
}

func NewPlanService(catalogs entitlement.Catalogs) PlanServiceInterface {
	return &PlanService{catalogs: catalogs}
}

type PlanService struct {
	catalogs entitlement.Catalogs
}

func (p *PlanService) GetPlans(kind entitlement.Kind) (response_models.CatalogResponse, error) {
	cat, err := p.catalogs.For(kind)
	if err != nil {
		return response_models.CatalogResponse{}, utils.ErrUnknownKind
	}
	return response_models.NewCatalogResponse(cat), nil
}

func (p *PlanService) GetPlanInfo(kind entitlement.Kind, plan entitlement.Plan) (response_models.PlanInfo, error) {
	all, err := p.GetPlans(kind)
	if err != nil {
		return response_models.PlanInfo{}, err
	}
	for _, info := range all.Plans {
		if info.Name == string(plan) {
			return info, nil
		}
	}
	return response_models.PlanInfo{}, utils.ErrPlanNotFound
}
