package remote_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"conveyor/internal/remote"
)

func TestCheckpointPrecedence(t *testing.T) {
	control := remote.NewControl(remote.ControlOptions{MaxErrors: 2})
	ctx := context.Background()
	assert.Equal(t, remote.Proceed, control.Checkpoint(ctx))

	assert.False(t, control.RecordError())
	assert.True(t, control.RecordError())
	assert.Equal(t, remote.StopTooManyErrors, control.Checkpoint(ctx))

	control.Pause()
	assert.Equal(t, remote.StopPaused, control.Checkpoint(ctx))
	control.Cancel()
	assert.Equal(t, remote.StopCancelled, control.Checkpoint(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, remote.StopCancelled, remote.NewControl(remote.ControlOptions{}).Checkpoint(cancelled))
}

func TestUnlimitedErrorsAndRestartCursor(t *testing.T) {
	control := remote.NewControl(remote.ControlOptions{RestartAt: "/data/b"})
	for i := 0; i < 10; i++ {
		assert.False(t, control.RecordError())
	}
	assert.Equal(t, remote.Proceed, control.Checkpoint(context.Background()))
	assert.True(t, control.Restarting("/data/a"))
	assert.True(t, control.Restarting("/data/b"))
	assert.False(t, control.Restarting("/data/c"))
	assert.False(t, remote.NewControl(remote.ControlOptions{}).Restarting("/data/a"))
}

func TestDecideUsesFilter(t *testing.T) {
	control := remote.NewControl(remote.ControlOptions{})
	ref := remote.FileRef{SourcePath: "/x"}
	assert.Equal(t, remote.FileContinue, control.Decide(context.Background(), ref))
	control.SetFilter(func(context.Context, remote.FileRef) remote.FileDecision { return remote.FileSkip })
	assert.Equal(t, remote.FileSkip, control.Decide(context.Background(), ref))
}
