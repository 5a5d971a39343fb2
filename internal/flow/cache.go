package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"conveyor/internal/logging"
	"conveyor/internal/services"
)

const reloadDebounce = 250 * time.Millisecond

// Cache holds the specs loaded from a directory in file then document order.
type Cache struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	specs []Spec
}

// NewCache returns an empty cache for dir. Call Load to populate it.
func NewCache(dir string, logger *slog.Logger) *Cache {
	return &Cache{dir: dir, logger: logging.NewComponentLogger(logger, "flow")}
}

// Specs returns a snapshot of the cached specs.
func (c *Cache) Specs() []Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Spec(nil), c.specs...)
}

// Replace swaps in specs directly.
func (c *Cache) Replace(specs []Spec) {
	c.mu.Lock()
	c.specs = append([]Spec(nil), specs...)
	c.mu.Unlock()
}

// Load reads every *.yaml and *.yml file in the directory. On error the
// previous contents are kept.
func (c *Cache) Load() error {
	specs, err := LoadDir(c.dir)
	if err != nil {
		return err
	}
	c.Replace(specs)
	c.logger.Info("flow specs loaded",
		logging.Int("count", len(specs)),
		logging.String("dir", c.dir),
		logging.String(logging.FieldEventType, "flow_specs_loaded"),
	)
	return nil
}

// LoadDir parses every spec file in dir. A missing directory yields no specs.
func LoadDir(dir string) ([]Spec, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrConfiguration, "flow", "load specs", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isSpecFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var specs []Spec
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		fileSpecs, err := parseFile(path)
		if err != nil {
			return nil, err
		}
		for _, spec := range fileSpecs {
			if prev, ok := seen[spec.Name]; ok {
				return nil, services.Wrap(services.ErrConfiguration, "flow", "load specs",
					fmt.Sprintf("spec %q in %s already defined in %s", spec.Name, path, prev), nil)
			}
			seen[spec.Name] = path
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

func isSpecFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(name, ".")
}

func parseFile(path string) ([]Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "flow", "open spec file", path, err)
	}
	defer f.Close()

	var specs []Spec
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	for {
		var spec Spec
		if err := decoder.Decode(&spec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, services.Wrap(services.ErrConfiguration, "flow", "parse spec file", path, err)
		}
		spec.Source = path
		spec.Selector.Action = Action(strings.ToUpper(strings.TrimSpace(string(spec.Selector.Action))))
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Watch reloads the cache whenever a spec file in the directory changes,
// until ctx is cancelled. Bursts of events collapse into one reload and a
// failed reload keeps the previous specs.
func (c *Cache) Watch(ctx context.Context) error {
	if strings.TrimSpace(c.dir) == "" {
		<-ctx.Done()
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("ensure flow spec dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create flow spec watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch flow spec dir: %w", err)
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSpecFile(filepath.Base(event.Name)) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			if err := c.Load(); err != nil {
				logging.WarnWithContext(c.logger, "flow spec reload failed", "flow_reload_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the spec file; previous specs stay active"),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(c.logger, "flow spec watcher error", "flow_watch_error", logging.Error(err))
		}
	}
}
