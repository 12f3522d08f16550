package entitlement

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Church *catalogSection `yaml:"church"`
	User   *catalogSection `yaml:"user"`
}

type catalogSection struct {
	Fallback string        `yaml:"fallback"`
	Limits   []string      `yaml:"limits"`
	Plans    []planSection `yaml:"plans"`
}

type planSection struct {
	Name     string           `yaml:"name"`
	Limits   map[string]int64 `yaml:"limits"`
	Features []string         `yaml:"features"`
}

// LoadCatalogs reads plan catalogs from a YAML file. A kind missing from the
// file keeps its built-in catalog.
//
//	church:
//	  fallback: basic
//	  limits: [users, branches, members]
//	  plans:
//	    - name: basic
//	      limits: {users: 50, branches: 1, members: 500}
//	      features: [members, attendance]
func LoadCatalogs(path string) (Catalogs, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalogs{}, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalogs(raw)
}

func ParseCatalogs(raw []byte) (Catalogs, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Catalogs{}, fmt.Errorf("parse catalog file: %w", err)
	}

	out := DefaultCatalogs()
	if f.Church != nil {
		c, err := f.Church.toCatalog(KindChurch)
		if err != nil {
			return Catalogs{}, err
		}
		out.Church = c
	}
	if f.User != nil {
		c, err := f.User.toCatalog(KindUser)
		if err != nil {
			return Catalogs{}, err
		}
		out.User = c
	}
	return out, nil
}

func (s *catalogSection) toCatalog(kind Kind) (*Catalog, error) {
	c := &Catalog{
		Kind:     kind,
		Fallback: Plan(s.Fallback),
		Defaults: make(map[Plan]PlanDefaults, len(s.Plans)),
	}
	for _, k := range s.Limits {
		c.Keys = append(c.Keys, LimitKey(k))
	}
	for _, p := range s.Plans {
		name := Plan(p.Name)
		if c.HasPlan(name) {
			return nil, fmt.Errorf("catalog %s: plan %q defined twice", kind, name)
		}
		limits := make(map[LimitKey]int64, len(p.Limits))
		for k, v := range p.Limits {
			limits[LimitKey(k)] = v
		}
		c.Plans = append(c.Plans, name)
		c.Defaults[name] = PlanDefaults{Limits: limits, Features: append([]string{}, p.Features...)}
	}
	if c.Fallback == "" && len(c.Plans) > 0 {
		c.Fallback = c.Plans[0]
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
