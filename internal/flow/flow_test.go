package flow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/flow"
	"conveyor/internal/logging"
	"conveyor/internal/services"
)

const twoSpecs = `name: hide-dotfiles
selector:
  host: "*.Example.org"
  zone: tempZone
  action: put
pre_file: [skip-hidden]
---
name: audit
selector:
  action: ANY
pre_operation: [log]
post_operation: [log]
`

func writeSpec(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadDirParsesDocumentsInOrder(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "10-main.yaml", twoSpecs)
	writeSpec(t, dir, "20-extra.yml", "name: extra\nselector:\n  zone: other\n")
	writeSpec(t, dir, "README.md", "not a spec")

	specs, err := flow.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, "hide-dotfiles", specs[0].Name)
	assert.Equal(t, flow.ActionPut, specs[0].Selector.Action)
	assert.Equal(t, []string{"skip-hidden"}, specs[0].PreFile)
	assert.Equal(t, "audit", specs[1].Name)
	assert.Equal(t, "extra", specs[2].Name)
	assert.Equal(t, filepath.Join(dir, "20-extra.yml"), specs[2].Source)

	missing, err := flow.LoadDir(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLoadDirRejectsBadSpecs(t *testing.T) {
	cases := map[string]string{
		"missing name":   "selector:\n  host: a\n",
		"unknown field":  "name: x\nbogus: true\n",
		"unknown action": "name: x\nselector:\n  action: MOVE\n",
		"duplicate name": "name: x\n---\nname: x\n",
	}
	for label, body := range cases {
		t.Run(label, func(t *testing.T) {
			dir := t.TempDir()
			writeSpec(t, dir, "spec.yaml", body)
			_, err := flow.LoadDir(dir)
			require.Error(t, err)
		})
	}
}

func TestPredicateMatching(t *testing.T) {
	sel := flow.Predicate{Host: "*.Example.org", Zone: "temp?one", Action: flow.ActionPut}
	assert.True(t, sel.Matches("data.example.ORG", "tempZone", flow.ActionPut))
	assert.False(t, sel.Matches("data.example.org", "tempZone", flow.ActionGet))
	assert.False(t, sel.Matches("example.com", "tempZone", flow.ActionPut))
	assert.True(t, flow.Predicate{}.Matches("anything", "any", flow.ActionCopy))
	assert.True(t, flow.Predicate{Action: flow.ActionAny}.Matches("h", "z", flow.ActionSynch))
	assert.False(t, flow.Predicate{Host: "[bad"}.Matches("h", "z", flow.ActionPut))
}

func newSelector(t *testing.T, specs []flow.Spec, registry *flow.Registry) *flow.Selector {
	t.Helper()
	cache := flow.NewCache("", logging.NewNop())
	cache.Replace(specs)
	return flow.NewSelector(cache, flow.NewRunner(registry, logging.NewNop()), logging.NewNop())
}

func TestCandidatesForReturnsAllMatchesInOrder(t *testing.T) {
	registry := flow.DefaultRegistry(logging.NewNop())
	require.NoError(t, registry.Register("never", flow.HookFunc(func(context.Context, flow.Invocation) (flow.ExecResult, error) {
		return flow.SkipThisChain, nil
	})))
	specs := []flow.Spec{
		{Name: "first", Selector: flow.Predicate{Zone: "tempZone"}},
		{Name: "wrong-host", Selector: flow.Predicate{Host: "other.org"}},
		{Name: "gated", Condition: "never"},
		{Name: "second", Selector: flow.Predicate{Action: flow.ActionGet}, Condition: "always"},
	}
	selector := newSelector(t, specs, registry)

	got, err := selector.CandidatesFor(context.Background(), flow.Target{Host: "grid.example.org", Zone: "tempZone", Action: flow.ActionGet})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "second", got[1].Name)

	broken := newSelector(t, []flow.Spec{{Name: "x", Condition: "unregistered"}}, registry)
	_, err = broken.CandidatesFor(context.Background(), flow.Target{})
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestRunnerChainSemantics(t *testing.T) {
	registry := flow.DefaultRegistry(logging.NewNop())
	var calls []string
	record := func(name string, result flow.ExecResult) {
		require.NoError(t, registry.Register(name, flow.HookFunc(func(_ context.Context, inv flow.Invocation) (flow.ExecResult, error) {
			calls = append(calls, name)
			return result, nil
		})))
	}
	record("stop-chain", flow.SkipThisChain)
	record("after-stop", flow.Continue)
	record("cancel", flow.Cancel)
	record("abort", flow.Abort)
	record("skip-file", flow.SkipThisFile)
	require.NoError(t, registry.Register("explode", flow.HookFunc(func(context.Context, flow.Invocation) (flow.ExecResult, error) {
		return flow.Continue, errors.New("boom")
	})))
	runner := flow.NewRunner(registry, logging.NewNop())
	ctx := context.Background()
	target := flow.Target{TransferID: 1}

	result, err := runner.RunPreOperation(ctx, []flow.Spec{
		{Name: "a", PreOperation: []string{"stop-chain", "after-stop"}},
		{Name: "b", PreOperation: []string{"after-stop"}},
	}, target)
	require.NoError(t, err)
	assert.Equal(t, flow.Continue, result)
	assert.Equal(t, []string{"stop-chain", "after-stop"}, calls)

	calls = nil
	result, err = runner.RunPreOperation(ctx, []flow.Spec{
		{Name: "a", PreOperation: []string{"cancel", "after-stop"}},
		{Name: "b", PreOperation: []string{"after-stop"}},
	}, target)
	require.NoError(t, err)
	assert.Equal(t, flow.Cancel, result)
	assert.Equal(t, []string{"cancel"}, calls)

	_, err = runner.RunPreOperation(ctx, []flow.Spec{{Name: "a", PreOperation: []string{"abort"}}}, target)
	assert.ErrorIs(t, err, flow.ErrAborted)

	_, err = runner.RunPostFile(ctx, []flow.Spec{{Name: "a", PostFile: []string{"skip-file"}}}, target, flow.File{SourcePath: "/x"})
	assert.ErrorIs(t, err, services.ErrExecution)

	_, err = runner.RunPostOperation(ctx, []flow.Spec{{Name: "a", PostOperation: []string{"explode"}}}, target)
	assert.ErrorIs(t, err, services.ErrExecution)

	result, err = runner.RunPreFile(ctx, []flow.Spec{{Name: "a", PreFile: []string{"skip-hidden"}}}, target, flow.File{SourcePath: "/data/.DS_Store"})
	require.NoError(t, err)
	assert.Equal(t, flow.SkipThisFile, result)
	result, err = runner.RunPreFile(ctx, []flow.Spec{{Name: "a", PreFile: []string{"skip-hidden", "skip-partial"}}}, target, flow.File{SourcePath: "/data/visible.txt"})
	require.NoError(t, err)
	assert.Equal(t, flow.Continue, result)
}

func TestRegistryRejectsDuplicatesAndReportsMissing(t *testing.T) {
	registry := flow.DefaultRegistry(logging.NewNop())
	err := registry.Register("log", flow.HookFunc(func(context.Context, flow.Invocation) (flow.ExecResult, error) {
		return flow.Continue, nil
	}))
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, registry.Names(), "skip-hidden")
	missing := registry.Missing([]flow.Spec{{Name: "a", Condition: "nope", PreFile: []string{"log", "gone", "nope"}}})
	assert.Equal(t, []string{"nope", "gone"}, missing)
}

func TestCacheWatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "a.yaml", "name: first\n")
	cache := flow.NewCache(dir, logging.NewNop())
	require.NoError(t, cache.Load())
	require.Len(t, cache.Specs(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cache.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeSpec(t, dir, "b.yaml", "name: second\n")
	require.Eventually(t, func() bool { return len(cache.Specs()) == 2 }, 5*time.Second, 50*time.Millisecond)

	writeSpec(t, dir, "c.yaml", "name: [broken\n")
	time.Sleep(600 * time.Millisecond)
	assert.Len(t, cache.Specs(), 2, "failed reload keeps previous specs")
}
