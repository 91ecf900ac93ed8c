package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/manenim/halt/pkg/algorithm"
	"github.com/manenim/halt/pkg/keys"
	"github.com/manenim/halt/pkg/limiter"
)

// PlanConfig is one plan as written in the plan file. Durations use Go
// syntax ("1m", "1h30m").
type PlanConfig struct {
	Algorithm   string   `yaml:"algorithm" validate:"required"`
	Limit       int64    `yaml:"limit" validate:"gt=0"`
	Window      string   `yaml:"window" validate:"required,duration"`
	Burst       int64    `yaml:"burst" validate:"gte=0"`
	// Cost of one request. Zero or absent charges 1.
	Cost        int64    `yaml:"cost" validate:"gte=0"`
	KeyStrategy string   `yaml:"key_strategy" validate:"omitempty,oneof=ip user api_key composite"`
	Exemptions  []string `yaml:"exemptions"`
}

// PlanFile is the plan file layout.
//
//	default_plan: free
//	plans:
//	  free: {algorithm: token_bucket, limit: 100, window: 1h, burst: 20}
//	  pro:  {algorithm: token_bucket, limit: 1000, window: 1h}
//	users:
//	  alice: pro
type PlanFile struct {
	DefaultPlan string                `yaml:"default_plan" validate:"required"`
	Plans       map[string]PlanConfig `yaml:"plans" validate:"required,min=1,dive"`
	Users       map[string]string     `yaml:"users"`
}

// Plans are validated plan policies sharing one algorithm.
type Plans struct {
	Kind     algorithm.Kind
	Default  string
	Policies map[string]limiter.Policy
	Users    map[string]string
}

// LoadPlans reads and parses a plan file.
func LoadPlans(path string) (*Plans, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans: %w", err)
	}
	return ParsePlans(data)
}

// ParsePlans parses plan file contents.
func ParsePlans(data []byte) (*Plans, error) {
	var file PlanFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := newValidator().Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, ok := file.Plans[file.DefaultPlan]; !ok {
		return nil, fmt.Errorf("%w: default plan %q is not defined", ErrInvalidConfig, file.DefaultPlan)
	}

	plans := &Plans{
		Default:  file.DefaultPlan,
		Policies: make(map[string]limiter.Policy, len(file.Plans)),
		Users:    file.Users,
	}
	for name, pc := range file.Plans {
		p, err := pc.Policy(name)
		if err != nil {
			return nil, err
		}
		// A resolver runs every plan on one algorithm.
		if plans.Kind == "" {
			plans.Kind = p.Algorithm
		} else if p.Algorithm != plans.Kind {
			return nil, fmt.Errorf("%w: plan %q uses %s, other plans use %s", ErrInvalidConfig, name, p.Algorithm, plans.Kind)
		}
		plans.Policies[name] = p
	}
	for user, plan := range file.Users {
		if _, ok := plans.Policies[plan]; !ok {
			return nil, fmt.Errorf("%w: user %q has unknown plan %q", ErrInvalidConfig, user, plan)
		}
	}
	return plans, nil
}

// Policy converts pc into a limiter policy named "plan_<name>".
func (pc PlanConfig) Policy(name string) (limiter.Policy, error) {
	kind, err := algorithm.ParseKind(pc.Algorithm)
	if err != nil {
		return limiter.Policy{}, fmt.Errorf("%w: plan %q: %w", ErrInvalidConfig, name, err)
	}
	window, err := time.ParseDuration(pc.Window)
	if err != nil {
		return limiter.Policy{}, fmt.Errorf("%w: plan %q: %w", ErrInvalidConfig, name, err)
	}
	p := limiter.Policy{
		Name:        "plan_" + name,
		Algorithm:   kind,
		Limit:       pc.Limit,
		Window:      window,
		Burst:       pc.Burst,
		Cost:        pc.Cost,
		KeyStrategy: keys.Strategy(pc.KeyStrategy),
		Exemptions:  pc.Exemptions,
	}
	if err := p.Validate(); err != nil {
		return limiter.Policy{}, fmt.Errorf("%w: plan %q: %w", ErrInvalidConfig, name, err)
	}
	return p, nil
}

// PlanFor returns the plan policy for a user, falling back to the default
// plan.
func (p *Plans) PlanFor(user string) limiter.Policy {
	if name, ok := p.Users[user]; ok {
		return p.Policies[name]
	}
	return p.Policies[p.Default]
}
