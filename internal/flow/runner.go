package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"conveyor/internal/logging"
	"conveyor/internal/services"
)

// ErrAborted marks a chain stopped by an ABORT_AND_TRIGGER_ANY_ERROR_HANDLER
// result. The transfer attempt fails with a global exception.
var ErrAborted = errors.New("flow chain aborted")

// Runner executes hook chains.
type Runner struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRunner binds a runner to a registry.
func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Runner{registry: registry, logger: logging.NewComponentLogger(logger, "flow")}
}

// Registry returns the hooks the runner resolves names against.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// RunCondition reports whether spec applies to target. Specs without a
// condition always apply.
func (r *Runner) RunCondition(ctx context.Context, spec Spec, target Target) (bool, error) {
	if spec.Condition == "" {
		return true, nil
	}
	result, err := r.call(ctx, spec.Condition, Invocation{Stage: StageCondition, Spec: spec.Name, Target: target})
	if err != nil {
		return false, err
	}
	return result == Continue, nil
}

// RunPreOperation runs every spec's pre-operation chain. It returns Cancel
// when a hook cancelled the transfer and ErrAborted on abort.
func (r *Runner) RunPreOperation(ctx context.Context, specs []Spec, target Target) (ExecResult, error) {
	return r.runAll(ctx, specs, StagePreOperation, target, nil)
}

// RunPreFile runs the pre-file chains for one file. It may also return
// SkipThisFile.
func (r *Runner) RunPreFile(ctx context.Context, specs []Spec, target Target, file File) (ExecResult, error) {
	return r.runAll(ctx, specs, StagePreFile, target, &file)
}

// RunPostFile runs the post-file chains for one file.
func (r *Runner) RunPostFile(ctx context.Context, specs []Spec, target Target, file File) (ExecResult, error) {
	return r.runAll(ctx, specs, StagePostFile, target, &file)
}

// RunPostOperation runs the post-operation chains after an attempt closed.
func (r *Runner) RunPostOperation(ctx context.Context, specs []Spec, target Target) (ExecResult, error) {
	return r.runAll(ctx, specs, StagePostOperation, target, nil)
}

func chainFor(spec Spec, stage Stage) []string {
	switch stage {
	case StagePreOperation:
		return spec.PreOperation
	case StagePreFile:
		return spec.PreFile
	case StagePostFile:
		return spec.PostFile
	case StagePostOperation:
		return spec.PostOperation
	}
	return nil
}

func (r *Runner) runAll(ctx context.Context, specs []Spec, stage Stage, target Target, file *File) (ExecResult, error) {
	for _, spec := range specs {
		result, err := r.runChain(ctx, spec, stage, target, file)
		if err != nil {
			return result, err
		}
		switch result {
		case Cancel, SkipThisFile:
			return result, nil
		}
	}
	return Continue, nil
}

func (r *Runner) runChain(ctx context.Context, spec Spec, stage Stage, target Target, file *File) (ExecResult, error) {
	for _, name := range chainFor(spec, stage) {
		inv := Invocation{Stage: stage, Spec: spec.Name, Target: target}
		if file != nil {
			copied := *file
			inv.File = &copied
		}
		result, err := r.call(ctx, name, inv)
		if err != nil {
			return Abort, err
		}
		switch result {
		case Continue:
			continue
		case SkipThisChain:
			return Continue, nil
		case Cancel:
			r.logger.Info("flow hook cancelled transfer",
				logging.String("hook", name),
				logging.String("spec", spec.Name),
				logging.Int64(logging.FieldTransferID, target.TransferID),
				logging.String(logging.FieldDecisionType, "flow_cancel"),
			)
			return Cancel, nil
		case SkipThisFile:
			if stage != StagePreFile {
				return Abort, unexpected(name, stage, result)
			}
			return SkipThisFile, nil
		case Abort:
			return Abort, services.Wrap(services.ErrExecution, "flow", string(stage),
				fmt.Sprintf("hook %s in spec %s aborted the transfer", name, spec.Name), ErrAborted)
		default:
			return Abort, unexpected(name, stage, result)
		}
	}
	return Continue, nil
}

func (r *Runner) call(ctx context.Context, name string, inv Invocation) (ExecResult, error) {
	hook, ok := r.registry.Lookup(name)
	if !ok {
		return Abort, services.Wrap(services.ErrConfiguration, "flow", string(inv.Stage),
			fmt.Sprintf("hook %q is not registered", name), nil)
	}
	result, err := hook.Execute(ctx, inv)
	if err != nil {
		return Abort, services.Wrap(services.ErrExecution, "flow", string(inv.Stage),
			fmt.Sprintf("hook %s failed", name), err)
	}
	return result, nil
}

func unexpected(name string, stage Stage, result ExecResult) error {
	return services.Wrap(services.ErrExecution, "flow", string(stage),
		fmt.Sprintf("hook %s returned unexpected result %s", name, result), nil)
}
