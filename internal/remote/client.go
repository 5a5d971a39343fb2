package remote

import (
	"context"

	"conveyor/internal/vault"
)

// Request describes one remote operation. For PUT the source is local and
// the target a remote collection; GET reverses that. REPLICATE reads Source
// and writes a replica to Resource. COPY copies the remote Source into the
// remote Target collection.
type Request struct {
	Operation  Operation
	SourcePath string
	TargetPath string
	Resource   string
}

// Client performs remote operations. A returned error is a failure of the
// operation as a whole; per-file failures are reported through the sink and
// do not produce an error.
type Client interface {
	Put(ctx context.Context, cred vault.Credential, req Request, sink Sink, control *Control) error
	Get(ctx context.Context, cred vault.Credential, req Request, sink Sink, control *Control) error
	Replicate(ctx context.Context, cred vault.Credential, req Request, sink Sink, control *Control) error
	Copy(ctx context.Context, cred vault.Credential, req Request, sink Sink, control *Control) error
	// IsCollection reports whether path names an existing remote collection.
	IsCollection(ctx context.Context, cred vault.Credential, path string) (bool, error)
}

// Execute dispatches req to the client method matching its operation.
func Execute(ctx context.Context, client Client, cred vault.Credential, req Request, sink Sink, control *Control) error {
	if sink == nil {
		sink = Discard
	}
	switch req.Operation {
	case OpPut:
		return client.Put(ctx, cred, req, sink, control)
	case OpGet:
		return client.Get(ctx, cred, req, sink, control)
	case OpReplicate:
		return client.Replicate(ctx, cred, req, sink, control)
	case OpCopy:
		return client.Copy(ctx, cred, req, sink, control)
	default:
		return ErrUnsupportedOperation
	}
}
