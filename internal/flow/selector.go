package flow

import (
	"context"
	"log/slog"

	"conveyor/internal/logging"
)

// Selector picks the specs that apply to a transfer.
type Selector struct {
	cache  *Cache
	runner *Runner
	logger *slog.Logger
}

// NewSelector binds a selector to a spec cache and the runner used for
// condition hooks.
func NewSelector(cache *Cache, runner *Runner, logger *slog.Logger) *Selector {
	return &Selector{cache: cache, runner: runner, logger: logging.NewComponentLogger(logger, "flow")}
}

// Runner returns the runner shared with callers executing the chains.
func (s *Selector) Runner() *Runner {
	return s.runner
}

// CandidatesFor returns every cached spec whose selector matches target and
// whose condition hook, if any, continues. Matches keep cache order.
func (s *Selector) CandidatesFor(ctx context.Context, target Target) ([]Spec, error) {
	if s == nil || s.cache == nil {
		return nil, nil
	}
	var matched []Spec
	for _, spec := range s.cache.Specs() {
		if !spec.Selector.Matches(target.Host, target.Zone, target.Action) {
			continue
		}
		if s.runner != nil {
			ok, err := s.runner.RunCondition(ctx, spec, target)
			if err != nil {
				return nil, err
			}
			if !ok {
				s.logger.Debug("flow spec condition declined",
					logging.String("spec", spec.Name),
					logging.Int64(logging.FieldTransferID, target.TransferID),
					logging.String(logging.FieldDecisionType, "flow_condition"),
				)
				continue
			}
		}
		matched = append(matched, spec)
	}
	if len(matched) > 0 {
		names := make([]string, 0, len(matched))
		for _, spec := range matched {
			names = append(names, spec.Name)
		}
		s.logger.Debug("flow specs selected",
			logging.Int64(logging.FieldTransferID, target.TransferID),
			logging.Any("specs", names),
			logging.String(logging.FieldDecisionType, "flow_selection"),
		)
	}
	return matched, nil
}
