// Package localgrid is a remote.Client that stores the grid on the local
// filesystem. Each storage resource is a directory under the grid root and a
// logical path such as /tempZone/home/rods/data lives at
// <root>/<resource>/tempZone/home/rods/data. It backs the daemon when no
// network client is configured and serves as the reference client in tests.
package localgrid

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/remote"
	"conveyor/internal/services"
	"conveyor/internal/vault"
)

const component = "localgrid"

// DefaultResource is used when neither the request nor the account names one.
const DefaultResource = "demoResc"

// Grid is a filesystem-backed grid.
type Grid struct {
	root            string
	defaultResource string
	logger          *slog.Logger
	now             func() time.Time
}

// Option customises a Grid.
type Option func(*Grid)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Grid) {
		g.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithDefaultResource overrides DefaultResource.
func WithDefaultResource(resource string) Option {
	return func(g *Grid) {
		if strings.TrimSpace(resource) != "" {
			g.defaultResource = resource
		}
	}
}

// New returns a grid rooted at root.
func New(root string, opts ...Option) *Grid {
	g := &Grid{
		root:            root,
		defaultResource: DefaultResource,
		logger:          logging.NewNop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Root returns the grid root directory.
func (g *Grid) Root() string {
	return g.root
}

var _ remote.Client = (*Grid)(nil)

func (g *Grid) authenticate(cred vault.Credential) error {
	if strings.TrimSpace(cred.UserName) == "" || cred.Password == "" || strings.TrimSpace(cred.Zone) == "" {
		return fmt.Errorf("%w: %s", remote.ErrAuthentication, credentialLabel(cred))
	}
	return nil
}

func credentialLabel(cred vault.Credential) string {
	return fmt.Sprintf("%s@%s:%d/%s", cred.UserName, cred.Host, cred.Port, cred.Zone)
}

func (g *Grid) resourceFor(cred vault.Credential, requested string) string {
	if r := strings.TrimSpace(requested); r != "" {
		return r
	}
	if r := strings.TrimSpace(cred.DefaultResource); r != "" {
		return r
	}
	return g.defaultResource
}

func cleanLogical(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

func (g *Grid) physical(resource, logical string) string {
	return filepath.Join(g.root, resource, filepath.FromSlash(strings.TrimPrefix(logical, "/")))
}

// resources lists resource directories in name order.
func (g *Grid) resources() ([]string, error) {
	entries, err := os.ReadDir(g.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// findReplica returns the first resource holding logical, skipping exclude.
func (g *Grid) findReplica(logical, exclude string) (string, string, error) {
	resources, err := g.resources()
	if err != nil {
		return "", "", err
	}
	for _, resource := range resources {
		if resource == exclude {
			continue
		}
		candidate := g.physical(resource, logical)
		if _, err := os.Stat(candidate); err == nil {
			return resource, candidate, nil
		}
	}
	return "", "", services.Wrap(services.ErrNotFound, component, "find replica", logical, nil)
}

// IsCollection reports whether any resource holds a directory at p.
func (g *Grid) IsCollection(ctx context.Context, cred vault.Credential, p string) (bool, error) {
	if err := g.authenticate(cred); err != nil {
		return false, err
	}
	resources, err := g.resources()
	if err != nil {
		return false, err
	}
	logical := cleanLogical(p)
	for _, resource := range resources {
		info, err := os.Stat(g.physical(resource, logical))
		if err == nil && info.IsDir() {
			return true, nil
		}
	}
	return false, nil
}

// Put uploads a local file or directory into a remote collection.
func (g *Grid) Put(ctx context.Context, cred vault.Credential, req remote.Request, sink remote.Sink, control *remote.Control) error {
	if err := g.authenticate(cred); err != nil {
		return err
	}
	resource := g.resourceFor(cred, req.Resource)
	source := filepath.Clean(req.SourcePath)
	if _, err := os.Stat(source); err != nil {
		return services.Wrap(services.ErrNotFound, component, "put", "local source "+source, err)
	}
	target := cleanLogical(req.TargetPath)
	jobs, err := collect(
		endpoint{display: source, physical: source},
		endpoint{display: target, physical: g.physical(resource, target), logical: true},
	)
	if err != nil {
		return services.Wrap(services.ErrExecution, component, "put", "scan source", err)
	}
	return g.run(ctx, remote.OpPut, resource, jobs, sink, control)
}

// Get downloads a remote file or collection into a local directory.
func (g *Grid) Get(ctx context.Context, cred vault.Credential, req remote.Request, sink remote.Sink, control *remote.Control) error {
	if err := g.authenticate(cred); err != nil {
		return err
	}
	source := cleanLogical(req.SourcePath)
	resource, physical, err := g.findReplica(source, "")
	if err != nil {
		return err
	}
	target := filepath.Clean(req.TargetPath)
	jobs, err := collect(
		endpoint{display: source, physical: physical, logical: true},
		endpoint{display: target, physical: target},
	)
	if err != nil {
		return services.Wrap(services.ErrExecution, component, "get", "scan source", err)
	}
	return g.run(ctx, remote.OpGet, resource, jobs, sink, control)
}

// Replicate copies a remote path onto the requested resource. Files whose
// replica already exists with the same size are skipped.
func (g *Grid) Replicate(ctx context.Context, cred vault.Credential, req remote.Request, sink remote.Sink, control *remote.Control) error {
	if err := g.authenticate(cred); err != nil {
		return err
	}
	target := g.resourceFor(cred, req.Resource)
	logical := cleanLogical(req.SourcePath)
	_, physical, err := g.findReplica(logical, target)
	if err != nil {
		if _, _, own := g.findReplica(logical, ""); own != nil {
			return err
		}
		physical = g.physical(target, logical)
	}
	parent := path.Dir(logical)
	jobs, err := collect(
		endpoint{display: logical, physical: physical, logical: true},
		endpoint{display: parent, physical: g.physical(target, parent), logical: true},
	)
	if err != nil {
		return services.Wrap(services.ErrExecution, component, "replicate", "scan source", err)
	}
	for i := range jobs {
		jobs[i].skipIfSameSize = true
	}
	return g.run(ctx, remote.OpReplicate, target, jobs, sink, control)
}

// Copy duplicates a remote path into another remote collection.
func (g *Grid) Copy(ctx context.Context, cred vault.Credential, req remote.Request, sink remote.Sink, control *remote.Control) error {
	if err := g.authenticate(cred); err != nil {
		return err
	}
	source := cleanLogical(req.SourcePath)
	_, physical, err := g.findReplica(source, "")
	if err != nil {
		return err
	}
	resource := g.resourceFor(cred, req.Resource)
	target := cleanLogical(req.TargetPath)
	if target == source || strings.HasPrefix(target, strings.TrimSuffix(source, "/")+"/") {
		return services.Validation(component, "copy", "target collection is inside the source")
	}
	jobs, err := collect(
		endpoint{display: source, physical: physical, logical: true},
		endpoint{display: target, physical: g.physical(resource, target), logical: true},
	)
	if err != nil {
		return services.Wrap(services.ErrExecution, component, "copy", "scan source", err)
	}
	return g.run(ctx, remote.OpCopy, resource, jobs, sink, control)
}
