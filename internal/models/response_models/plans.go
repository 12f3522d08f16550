package response_models

import "churchhub/internal/entitlement"

type PlanInfo struct {
	Name     string                         `json:"name"`
	Limits   map[entitlement.LimitKey]int64 `json:"limits"`
	Features []string                       `json:"features"`
	Fallback bool                           `json:"fallback,omitempty"`
}

type CatalogResponse struct {
	Kind      string                 `json:"kind"`
	LimitKeys []entitlement.LimitKey `json:"limit_keys"`
	Plans     []PlanInfo             `json:"plans"`
}

func NewCatalogResponse(cat *entitlement.Catalog) CatalogResponse {
	out := CatalogResponse{
		Kind:      string(cat.Kind),
		LimitKeys: append([]entitlement.LimitKey{}, cat.Keys...),
		Plans:     make([]PlanInfo, 0, len(cat.Plans)),
	}
	for _, p := range cat.Plans {
		out.Plans = append(out.Plans, PlanInfo{
			Name:     string(p),
			Limits:   cat.DefaultLimitsFor(p),
			Features: cat.DefaultFeaturesFor(p),
			Fallback: p == cat.Fallback,
		})
	}
	return out
}
