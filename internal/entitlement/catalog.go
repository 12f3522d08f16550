package entitlement

import (
	"fmt"
)

// PlanDefaults is what a plan tier grants when a record leaves the
// corresponding fields unset.
type PlanDefaults struct {
	Limits   map[LimitKey]int64
	Features []string
}

// Catalog maps the plan tiers of one subscription kind to their defaults.
// Plans are listed from most restrictive to most capable.
type Catalog struct {
	Kind     Kind
	Keys     []LimitKey
	Plans    []Plan
	Defaults map[Plan]PlanDefaults
	Fallback Plan
}

func (c *Catalog) HasPlan(p Plan) bool {
	_, ok := c.Defaults[p]
	return ok
}

func (c *Catalog) HasLimit(key LimitKey) bool {
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// DefaultLimitsFor returns a copy of the plan's limits. Unknown plans get the
// fallback tier.
func (c *Catalog) DefaultLimitsFor(p Plan) map[LimitKey]int64 {
	d := c.defaults(p)
	out := make(map[LimitKey]int64, len(c.Keys))
	for _, k := range c.Keys {
		out[k] = d.Limits[k]
	}
	return out
}

// DefaultFeaturesFor returns a copy of the plan's feature set. Unknown plans
// get the fallback tier.
func (c *Catalog) DefaultFeaturesFor(p Plan) []string {
	d := c.defaults(p)
	return append([]string{}, d.Features...)
}

func (c *Catalog) defaults(p Plan) PlanDefaults {
	if d, ok := c.Defaults[p]; ok {
		return d
	}
	return c.Defaults[c.Fallback]
}

// Validate checks the catalog is usable: the fallback exists and every plan
// defines every limit key.
func (c *Catalog) Validate() error {
	if len(c.Plans) == 0 {
		return fmt.Errorf("catalog %s: no plans", c.Kind)
	}
	if !c.HasPlan(c.Fallback) {
		return fmt.Errorf("catalog %s: fallback plan %q is not defined", c.Kind, c.Fallback)
	}
	for _, p := range c.Plans {
		d, ok := c.Defaults[p]
		if !ok {
			return fmt.Errorf("catalog %s: plan %q has no defaults", c.Kind, p)
		}
		for _, k := range c.Keys {
			v, ok := d.Limits[k]
			if !ok {
				return fmt.Errorf("catalog %s: plan %q misses limit %q", c.Kind, p, k)
			}
			if v < Unlimited {
				return fmt.Errorf("catalog %s: plan %q limit %q must be >= -1, got %d", c.Kind, p, k, v)
			}
		}
	}
	return nil
}

// Catalogs holds one catalog per subscription kind.
type Catalogs struct {
	Church *Catalog
	User   *Catalog
}

func (c Catalogs) For(kind Kind) (*Catalog, error) {
	switch kind {
	case KindChurch:
		return c.Church, nil
	case KindUser:
		return c.User, nil
	}
	return nil, fmt.Errorf("unknown subscription kind %q", kind)
}

func DefaultCatalogs() Catalogs {
	return Catalogs{Church: DefaultChurchCatalog(), User: DefaultUserCatalog()}
}

func DefaultChurchCatalog() *Catalog {
	core := []string{"members", "attendance", "offerings", "service_schedules"}
	standard := append(append([]string{}, core...), "pledges", "assets", "sms_messaging")
	premium := append(append([]string{}, standard...), "multi_branch", "email_messaging", "reports")
	enterprise := append(append([]string{}, premium...), "api_access", "priority_support")

	return &Catalog{
		Kind:     KindChurch,
		Keys:     []LimitKey{LimitUsers, LimitBranches, LimitMembers},
		Plans:    []Plan{PlanBasic, PlanStandard, PlanPremium, PlanEnterprise},
		Fallback: PlanBasic,
		Defaults: map[Plan]PlanDefaults{
			PlanBasic: {
				Limits:   map[LimitKey]int64{LimitUsers: 50, LimitBranches: 1, LimitMembers: 500},
				Features: core,
			},
			PlanStandard: {
				Limits:   map[LimitKey]int64{LimitUsers: 150, LimitBranches: 3, LimitMembers: 2000},
				Features: standard,
			},
			PlanPremium: {
				Limits:   map[LimitKey]int64{LimitUsers: 500, LimitBranches: 10, LimitMembers: 10000},
				Features: premium,
			},
			PlanEnterprise: {
				Limits:   map[LimitKey]int64{LimitUsers: Unlimited, LimitBranches: Unlimited, LimitMembers: Unlimited},
				Features: enterprise,
			},
		},
	}
}

func DefaultUserCatalog() *Catalog {
	connect := []string{"join_small_groups", "view_events", "give_online"}
	engage := append(append([]string{}, connect...), "lead_small_groups", "manage_events")
	serve := append(append([]string{}, engage...), "ministry_scheduling", "volunteer_tools")

	return &Catalog{
		Kind:     KindUser,
		Keys:     []LimitKey{LimitSmallGroupsLead, LimitEventsManage},
		Plans:    []Plan{PlanConnect, PlanEngage, PlanServe},
		Fallback: PlanConnect,
		Defaults: map[Plan]PlanDefaults{
			PlanConnect: {
				Limits:   map[LimitKey]int64{LimitSmallGroupsLead: 0, LimitEventsManage: 0},
				Features: connect,
			},
			PlanEngage: {
				Limits:   map[LimitKey]int64{LimitSmallGroupsLead: 1, LimitEventsManage: 3},
				Features: engage,
			},
			PlanServe: {
				Limits:   map[LimitKey]int64{LimitSmallGroupsLead: 5, LimitEventsManage: Unlimited},
				Features: serve,
			},
		},
	}
}
