package tenant

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tenant is one loyalty program.
type Tenant struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	ProgramName string  `yaml:"programName" json:"programName"`
	UnitLabel   string  `yaml:"unitLabel" json:"unitLabel"`
	Variant     Variant `yaml:"variant" json:"variant"`
}

// Registry resolves tenants by id. It is built once at startup and never
// mutated afterwards, so it is safe for concurrent use.
type Registry struct {
	byID  map[string]Tenant
	order []string
}

// NewRegistry validates tenants and indexes them by id.
func NewRegistry(tenants ...Tenant) (*Registry, error) {
	r := &Registry{
		byID:  make(map[string]Tenant, len(tenants)),
		order: make([]string, 0, len(tenants)),
	}

	for i, t := range tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("tenant %d: id is required", i)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("tenant %q: duplicate id", t.ID)
		}
		if t.Variant.Kind() == "" {
			t.Variant = BaseVariant
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		if t.UnitLabel == "" {
			t.UnitLabel = "Points"
		}
		r.byID[t.ID] = t
		r.order = append(r.order, t.ID)
	}

	return r, nil
}

// Get returns the tenant with id or ErrTenantNotFound.
func (r *Registry) Get(id string) (Tenant, error) {
	t, ok := r.byID[id]
	if !ok {
		return Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

// List returns all tenants in registration order.
func (r *Registry) List() []Tenant {
	out := make([]Tenant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of tenants.
func (r *Registry) Len() int { return len(r.order) }

// DefaultTenants are the programs served when no tenants file is configured.
func DefaultTenants() []Tenant {
	return []Tenant{
		{ID: "companyA", Name: "TechCorp Solutions", ProgramName: "TechCorp Rewards", UnitLabel: "Points", Variant: BaseVariant},
		{ID: "companyB", Name: "RetailMax Stores", ProgramName: "RetailMax Rewards Plus", UnitLabel: "Rewards", Variant: MembershipVariant},
		{ID: "companyC", Name: "SkyHigh Airlines", ProgramName: "SkyHigh Miles", UnitLabel: "Miles", Variant: FrequentFlyerVariant},
		{ID: "company3", Name: "Company 3", ProgramName: "Loyalty Scores", UnitLabel: "Scores", Variant: BaseVariant},
		{ID: "healthplus", Name: "HealthPlus Insurance", ProgramName: "HealthPlus Wellness Points", UnitLabel: "Points", Variant: BaseVariant},
	}
}

// DefaultRegistry returns a registry of DefaultTenants.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultTenants()...)
	if err != nil {
		panic(err)
	}
	return r
}

type registryFile struct {
	Tenants []Tenant `yaml:"tenants"`
}

// ParseRegistry decodes a YAML tenants document.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode tenants: %w", err)
	}
	if len(file.Tenants) == 0 {
		return nil, errors.New("decode tenants: no tenants defined")
	}
	return NewRegistry(file.Tenants...)
}

// LoadRegistry reads tenants from path. An empty path yields DefaultRegistry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	return ParseRegistry(data)
}
