package flow

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"conveyor/internal/logging"
	"conveyor/internal/services"
)

// ExecResult is a hook's verdict.
type ExecResult string

const (
	Continue      ExecResult = "CONTINUE"
	SkipThisChain ExecResult = "SKIP_THIS_CHAIN"
	SkipThisFile  ExecResult = "SKIP_THIS_FILE"
	Cancel        ExecResult = "CANCEL_OPERATION"
	Abort         ExecResult = "ABORT_AND_TRIGGER_ANY_ERROR_HANDLER"
)

// Stage names the point in a transfer a hook runs at.
type Stage string

const (
	StageCondition     Stage = "condition"
	StagePreOperation  Stage = "pre_operation"
	StagePreFile       Stage = "pre_file"
	StagePostFile      Stage = "post_file"
	StagePostOperation Stage = "post_operation"
)

// Target describes the transfer a chain runs for.
type Target struct {
	TransferID int64
	AttemptID  int64
	Host       string
	Zone       string
	Action     Action
	SourcePath string
	TargetPath string
}

// File describes the file a pre-file or post-file hook sees.
type File struct {
	SourcePath string
	TargetPath string
	// State is the remote callback state for post-file hooks and empty
	// before the file moves.
	State string
	Error string
}

// Invocation is the immutable input to a hook.
type Invocation struct {
	Stage  Stage
	Spec   string
	Target Target
	File   *File
}

// Hook is one named step of a chain.
type Hook interface {
	Execute(ctx context.Context, inv Invocation) (ExecResult, error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, inv Invocation) (ExecResult, error)

// Execute implements Hook.
func (f HookFunc) Execute(ctx context.Context, inv Invocation) (ExecResult, error) {
	return f(ctx, inv)
}

// Registry maps hook names to implementations.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]Hook
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]Hook)}
}

// Register adds a hook. Names are unique.
func (r *Registry) Register(name string, hook Hook) error {
	name = strings.TrimSpace(name)
	if name == "" || hook == nil {
		return services.Validation("flow", "register hook", "name and hook are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[name]; exists {
		return services.Validation("flow", "register hook", fmt.Sprintf("hook %q already registered", name))
	}
	r.hooks[name] = hook
	return nil
}

// Lookup returns the hook registered under name.
func (r *Registry) Lookup(name string) (Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hook, ok := r.hooks[strings.TrimSpace(name)]
	return hook, ok
}

// Names lists registered hooks in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Missing returns hook names referenced by specs that are not registered.
func (r *Registry) Missing(specs []Spec) []string {
	var missing []string
	seen := make(map[string]struct{})
	for _, spec := range specs {
		for _, name := range spec.hooks() {
			if _, ok := r.Lookup(name); ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			missing = append(missing, name)
		}
	}
	return missing
}

// DefaultRegistry returns a registry holding the built-in hooks:
//
//	log          logs the invocation and continues
//	skip-hidden  skips files whose base name starts with a dot
//	skip-partial skips files ending in .part or .tmp
//	always       continues; usable as a condition
func DefaultRegistry(logger *slog.Logger) *Registry {
	logger = logging.NewComponentLogger(logger, "flow")
	r := NewRegistry()
	_ = r.Register("log", HookFunc(func(_ context.Context, inv Invocation) (ExecResult, error) {
		attrs := []logging.Attr{
			logging.String("stage", string(inv.Stage)),
			logging.String("spec", inv.Spec),
			logging.Int64(logging.FieldTransferID, inv.Target.TransferID),
		}
		if inv.File != nil {
			attrs = append(attrs, logging.String("source", inv.File.SourcePath))
		}
		logger.Info("flow hook", logging.Args(attrs...)...)
		return Continue, nil
	}))
	_ = r.Register("skip-hidden", HookFunc(func(_ context.Context, inv Invocation) (ExecResult, error) {
		if inv.File != nil && strings.HasPrefix(path.Base(inv.File.SourcePath), ".") {
			return SkipThisFile, nil
		}
		return Continue, nil
	}))
	_ = r.Register("skip-partial", HookFunc(func(_ context.Context, inv Invocation) (ExecResult, error) {
		if inv.File == nil {
			return Continue, nil
		}
		switch strings.ToLower(path.Ext(inv.File.SourcePath)) {
		case ".part", ".tmp":
			return SkipThisFile, nil
		}
		return Continue, nil
	}))
	_ = r.Register("always", HookFunc(func(context.Context, Invocation) (ExecResult, error) {
		return Continue, nil
	}))
	return r
}
