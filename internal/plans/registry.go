package plans

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"parcel-tracking-service/internal/domain"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_plans.yaml
var defaultPlansYAML []byte

// Config is the explicit plan configuration: one master plan per shipment
// class plus the fixed phase order used to index execution plans.
type Config struct {
	Plans      map[domain.ShipmentClass]domain.MasterPlan
	PhaseOrder []domain.Phase
}

type fileFormat struct {
	PhaseOrder []string            `yaml:"phaseOrder"`
	Plans      []domain.MasterPlan `yaml:"plans"`
}

// Mismatch is a plan step whose name is not part of the phase order.
type Mismatch struct {
	ShipmentClass domain.ShipmentClass
	StepName      string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("class=%s step=%s", m.ShipmentClass, m.StepName)
}

// Default returns the embedded reference configuration (Standard and Priority).
func Default() Config {
	cfg, err := Load(bytes.NewReader(defaultPlansYAML))
	if err != nil {
		panic(fmt.Sprintf("plans: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// LoadFile reads a YAML plan configuration from path.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load plans: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := Load(f)
	if err != nil {
		return Config{}, fmt.Errorf("load plans %q: %w", path, err)
	}
	return cfg, nil
}

// Load decodes a YAML plan configuration. Structural problems (no phase order,
// duplicate classes, empty plans) are errors; vocabulary mismatches are not,
// see Validate.
func Load(r io.Reader) (Config, error) {
	var raw fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}

	if len(raw.PhaseOrder) == 0 {
		return Config{}, errors.New("phaseOrder must not be empty")
	}

	cfg := Config{
		Plans:      make(map[domain.ShipmentClass]domain.MasterPlan, len(raw.Plans)),
		PhaseOrder: make([]domain.Phase, 0, len(raw.PhaseOrder)),
	}

	seen := make(map[string]struct{}, len(raw.PhaseOrder))
	for i, p := range raw.PhaseOrder {
		p = strings.TrimSpace(p)
		if p == "" {
			return Config{}, fmt.Errorf("phaseOrder[%d] is empty", i)
		}
		if _, ok := seen[p]; ok {
			return Config{}, fmt.Errorf("phaseOrder: duplicate phase %q", p)
		}
		seen[p] = struct{}{}
		cfg.PhaseOrder = append(cfg.PhaseOrder, domain.Phase(p))
	}

	for i, plan := range raw.Plans {
		class := domain.ShipmentClass(strings.TrimSpace(string(plan.ShipmentClass)))
		if class == "" {
			return Config{}, fmt.Errorf("plans[%d]: shipmentClass is required", i)
		}
		if _, ok := cfg.Plans[class]; ok {
			return Config{}, fmt.Errorf("plans[%d]: duplicate shipmentClass %q", i, class)
		}
		if len(plan.Steps) == 0 {
			return Config{}, fmt.Errorf("plans[%d]: class %q has no steps", i, class)
		}

		steps := make([]domain.MasterPlanStep, 0, len(plan.Steps))
		for _, s := range plan.Steps {
			steps = append(steps, domain.NormalizePlanStep(s))
		}
		cfg.Plans[class] = domain.MasterPlan{ShipmentClass: class, Steps: steps}
	}

	return cfg, nil
}

// PhaseIndex returns the fixed slot of phase, or -1 when it is not part of
// the configured order.
func (c Config) PhaseIndex(phase domain.Phase) int {
	return slices.Index(c.PhaseOrder, phase)
}

// Validate lists plan steps that the phase order does not know about. These
// steps can never be reconciled; the caller decides how loudly to report them.
func (c Config) Validate() []Mismatch {
	var out []Mismatch
	for _, class := range c.Classes() {
		for _, s := range c.Plans[class].Steps {
			if c.PhaseIndex(domain.Phase(s.StepName)) == -1 {
				out = append(out, Mismatch{ShipmentClass: class, StepName: s.StepName})
			}
		}
	}
	return out
}

// Classes returns the configured classes in a stable order.
func (c Config) Classes() []domain.ShipmentClass {
	classes := make([]domain.ShipmentClass, 0, len(c.Plans))
	for class := range c.Plans {
		classes = append(classes, class)
	}
	slices.Sort(classes)
	return classes
}
