package service

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// LayerRule holds the thresholds for one gated layer. A zero field means the
// default for that layer.
type LayerRule struct {
	Confidence        float64 `json:"confidence_below" yaml:"confidence_below"`
	Entropy           float64 `json:"entropy_above,omitempty" yaml:"entropy_above,omitempty"`
	MinTriggeredRoles int     `json:"min_triggered_roles,omitempty" yaml:"min_triggered_roles,omitempty"`
	MinConflicts      int     `json:"min_conflicts,omitempty" yaml:"min_conflicts,omitempty"`
}

// GatekeeperPolicy is the activation table for layers 4-10.
type GatekeeperPolicy struct {
	HaltEntropy    float64   `json:"halt_entropy" yaml:"halt_entropy"`
	DefaultTarget  float64   `json:"default_target" yaml:"default_target"`
	MultiRole      LayerRule `json:"multi_role" yaml:"multi_role"`
	Perspective    LayerRule `json:"perspective" yaml:"perspective"`
	SectorDeepDive LayerRule `json:"sector_deep_dive" yaml:"sector_deep_dive"`
	GoalPlanning   LayerRule `json:"goal_planning" yaml:"goal_planning"`
	Ambiguity      LayerRule `json:"ambiguity" yaml:"ambiguity"`
	Recursive      LayerRule `json:"recursive" yaml:"recursive"`
	SelfAwareness  LayerRule `json:"self_awareness" yaml:"self_awareness"`
}

func DefaultGatekeeperPolicy() GatekeeperPolicy {
	return GatekeeperPolicy{
		HaltEntropy:    0.92,
		DefaultTarget:  0.95,
		MultiRole:      LayerRule{Confidence: 0.95, MinTriggeredRoles: 2},
		Perspective:    LayerRule{Confidence: 0.95},
		SectorDeepDive: LayerRule{Confidence: 0.90},
		GoalPlanning:   LayerRule{Confidence: 0.90, Entropy: 0.50},
		Ambiguity:      LayerRule{Confidence: 0.94, Entropy: 0.40, MinConflicts: 2},
		Recursive:      LayerRule{Confidence: 0.85},
		SelfAwareness:  LayerRule{Confidence: 0.70, Entropy: 0.90},
	}
}

func (p GatekeeperPolicy) withDefaults() GatekeeperPolicy {
	def := DefaultGatekeeperPolicy()
	if p.HaltEntropy <= 0 {
		p.HaltEntropy = def.HaltEntropy
	}
	if p.DefaultTarget <= 0 {
		p.DefaultTarget = def.DefaultTarget
	}
	p.MultiRole = p.MultiRole.withDefaults(def.MultiRole)
	p.Perspective = p.Perspective.withDefaults(def.Perspective)
	p.SectorDeepDive = p.SectorDeepDive.withDefaults(def.SectorDeepDive)
	p.GoalPlanning = p.GoalPlanning.withDefaults(def.GoalPlanning)
	p.Ambiguity = p.Ambiguity.withDefaults(def.Ambiguity)
	p.Recursive = p.Recursive.withDefaults(def.Recursive)
	p.SelfAwareness = p.SelfAwareness.withDefaults(def.SelfAwareness)
	return p
}

func (r LayerRule) withDefaults(def LayerRule) LayerRule {
	if r.Confidence <= 0 {
		r.Confidence = def.Confidence
	}
	if r.Entropy <= 0 {
		r.Entropy = def.Entropy
	}
	if r.MinTriggeredRoles <= 0 {
		r.MinTriggeredRoles = def.MinTriggeredRoles
	}
	if r.MinConflicts <= 0 {
		r.MinConflicts = def.MinConflicts
	}
	// Rules without an entropy or count condition never fire on them.
	if r.Entropy <= 0 {
		r.Entropy = 1
	}
	if r.MinTriggeredRoles <= 0 {
		r.MinTriggeredRoles = math.MaxInt
	}
	if r.MinConflicts <= 0 {
		r.MinConflicts = math.MaxInt
	}
	return r
}

// Validate checks that every threshold lies in [0,1].
func (p GatekeeperPolicy) Validate() error {
	check := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("gatekeeper policy: %s must be in [0,1], got %v", name, v)
		}
		return nil
	}
	rules := map[string]LayerRule{
		"multi_role":       p.MultiRole,
		"perspective":      p.Perspective,
		"sector_deep_dive": p.SectorDeepDive,
		"goal_planning":    p.GoalPlanning,
		"ambiguity":        p.Ambiguity,
		"recursive":        p.Recursive,
		"self_awareness":   p.SelfAwareness,
	}
	if err := check("halt_entropy", p.HaltEntropy); err != nil {
		return err
	}
	if err := check("default_target", p.DefaultTarget); err != nil {
		return err
	}
	for name, r := range rules {
		if err := check(name+".confidence_below", r.Confidence); err != nil {
			return err
		}
		if err := check(name+".entropy_above", r.Entropy); err != nil {
			return err
		}
	}
	return nil
}

// LoadGatekeeperPolicy reads a YAML policy file. Missing keys keep their
// defaults. An empty path returns the default policy.
func LoadGatekeeperPolicy(path string) (GatekeeperPolicy, error) {
	p := DefaultGatekeeperPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read gatekeeper policy: %w", err)
	}
	return ParseGatekeeperPolicy(data)
}

func ParseGatekeeperPolicy(data []byte) (GatekeeperPolicy, error) {
	p := DefaultGatekeeperPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse gatekeeper policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p.withDefaults(), nil
}
