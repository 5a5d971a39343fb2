package flow

import (
	"strings"

	"conveyor/internal/services"
)

// Action is the transfer kind a selector matches.
type Action string

const (
	ActionAny       Action = "ANY"
	ActionPut       Action = "PUT"
	ActionGet       Action = "GET"
	ActionReplicate Action = "REPLICATE"
	ActionCopy      Action = "COPY"
	ActionSynch     Action = "SYNCH"
)

// Predicate is the match rule of a spec. Empty fields match anything.
type Predicate struct {
	Host   string `yaml:"host" json:"host"`
	Zone   string `yaml:"zone" json:"zone"`
	Action Action `yaml:"action" json:"action" validate:"omitempty,oneof=ANY PUT GET REPLICATE COPY SYNCH"`
}

// Spec is one immutable policy rule.
type Spec struct {
	Name     string    `yaml:"name" json:"name" validate:"notblank"`
	Selector Predicate `yaml:"selector" json:"selector"`
	// Condition names a hook that must return CONTINUE for the spec to apply.
	Condition     string   `yaml:"condition" json:"condition"`
	PreOperation  []string `yaml:"pre_operation" json:"pre_operation"`
	PreFile       []string `yaml:"pre_file" json:"pre_file"`
	PostFile      []string `yaml:"post_file" json:"post_file"`
	PostOperation []string `yaml:"post_operation" json:"post_operation"`

	// Source is the file the spec was read from.
	Source string `yaml:"-" json:"source"`
}

// Validate checks required fields.
func (s Spec) Validate() error {
	return services.ValidateStruct("flow", "validate spec", s)
}

// hooks returns every hook name the spec references.
func (s Spec) hooks() []string {
	names := make([]string, 0, 1+len(s.PreOperation)+len(s.PreFile)+len(s.PostFile)+len(s.PostOperation))
	if strings.TrimSpace(s.Condition) != "" {
		names = append(names, s.Condition)
	}
	names = append(names, s.PreOperation...)
	names = append(names, s.PreFile...)
	names = append(names, s.PostFile...)
	names = append(names, s.PostOperation...)
	return names
}

// Matches evaluates the predicate against a transfer's host, zone, and action.
func (s Predicate) Matches(host, zone string, action Action) bool {
	if s.Action != "" && s.Action != ActionAny && s.Action != action {
		return false
	}
	return matchGlob(s.Host, host) && matchGlob(s.Zone, zone)
}
