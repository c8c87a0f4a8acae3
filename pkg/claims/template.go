package claims

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/cids/pkg/observability"
)

// Template is an administrator-defined whitelist of claim keys, matched by
// group membership. A template with no groups is the default, applying when
// no group-matched template does.
type Template struct {
	Name     string   `yaml:"name" json:"name"`
	Groups   []string `yaml:"groups,omitempty" json:"groups,omitempty"`
	Priority int      `yaml:"priority" json:"priority"`
	Claims   []string `yaml:"claims" json:"claims"`
}

// matches reports whether any of the user's groups appear in the template.
func (t Template) matches(groups []string) bool {
	for _, want := range t.Groups {
		for _, have := range groups {
			if want == have {
				return true
			}
		}
	}
	return false
}

// TemplateStore holds the configured token templates. Replace swaps the
// whole set atomically so concurrent composition never sees a partial
// reload.
type TemplateStore struct {
	mu        sync.RWMutex
	templates []Template
}

// NewTemplateStore creates an empty template store. With no templates
// configured, composition passes all claims through.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{}
}

// Replace swaps the template set, ordered by descending priority so Match
// scans highest priority first.
func (s *TemplateStore) Replace(templates []Template) {
	sorted := make([]Template, len(templates))
	copy(sorted, templates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = sorted
}

// Templates returns a copy of the configured templates, highest priority
// first.
func (s *TemplateStore) Templates() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, len(s.templates))
	copy(out, s.templates)
	return out
}

// Match selects the template for a user: the highest-priority template whose
// groups intersect the user's, else the default (zero-group) template, else
// none, in which case all claims pass through.
func (s *TemplateStore) Match(groups []string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.templates {
		if len(t.Groups) > 0 && t.matches(groups) {
			return t, true
		}
	}
	for _, t := range s.templates {
		if len(t.Groups) == 0 {
			return t, true
		}
	}
	return Template{}, false
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplateFile parses a token-template YAML file.
func LoadTemplateFile(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token template file: %w", err)
	}
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing token template file %s: %w", path, err)
	}
	return file.Templates, nil
}

// LoadFile replaces the store's contents from a YAML file.
func (s *TemplateStore) LoadFile(path string) error {
	templates, err := LoadTemplateFile(path)
	if err != nil {
		return err
	}
	s.Replace(templates)
	return nil
}

// Watch reloads the store whenever the template file changes, until ctx is
// cancelled. A reload that fails to parse keeps the previous templates.
func (s *TemplateStore) Watch(ctx context.Context, path string, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating template watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.LoadFile(path); err != nil {
					logger.WithError(err).WithField("path", path).Error("reloading token templates")
					continue
				}
				logger.WithField("path", path).Info("token templates reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("token template watcher error")
			}
		}
	}()
	return nil
}
