package policy

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

// RoleMapping is one group's role grants per application.
type RoleMapping map[string][]string

// MappingTable maps identity-provider groups to application roles. It is safe
// for concurrent use; Replace swaps the whole table atomically so readers
// never observe a partially applied reload.
type MappingTable struct {
	mu     sync.RWMutex
	groups map[string]RoleMapping
}

// NewMappingTable creates an empty mapping table.
func NewMappingTable() *MappingTable {
	return &MappingTable{groups: make(map[string]RoleMapping)}
}

// Set assigns the role mapping for one group.
func (t *MappingTable) Set(group string, mapping RoleMapping) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups[group] = mapping
}

// Delete removes a group's mapping.
func (t *MappingTable) Delete(group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.groups, group)
}

// Replace swaps the entire table.
func (t *MappingTable) Replace(groups map[string]RoleMapping) {
	if groups == nil {
		groups = make(map[string]RoleMapping)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups = groups
}

// Groups returns the configured group names, sorted.
func (t *MappingTable) Groups() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.groups))
	for g := range t.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// RolesFor unions the role mappings of the given groups into one
// appID→roles map. Role lists are deduplicated and sorted; groups with no
// mapping contribute nothing. A user may hold roles in zero applications.
func (t *MappingTable) RolesFor(groups []string) map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	merged := make(map[string]map[string]struct{})
	for _, group := range groups {
		for appID, roles := range t.groups[group] {
			set, ok := merged[appID]
			if !ok {
				set = make(map[string]struct{})
				merged[appID] = set
			}
			for _, role := range roles {
				set[role] = struct{}{}
			}
		}
	}

	out := make(map[string][]string, len(merged))
	for appID, set := range merged {
		roles := make([]string, 0, len(set))
		for role := range set {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		out[appID] = roles
	}
	return out
}

// mappingFile is the on-disk YAML shape:
//
//	groups:
//	  hr-admins:
//	    hr-portal: [admin, auditor]
type mappingFile struct {
	Groups map[string]map[string][]string `yaml:"groups"`
}

// LoadMappingFile parses a role-mapping YAML file.
func LoadMappingFile(path string) (map[string]RoleMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading role mapping file: %w", err)
	}

	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing role mapping file %s: %w", path, err)
	}

	groups := make(map[string]RoleMapping, len(file.Groups))
	for group, apps := range file.Groups {
		mapping := make(RoleMapping, len(apps))
		for appID, roles := range apps {
			mapping[appID] = roles
		}
		groups[group] = mapping
	}
	return groups, nil
}

// LoadFile replaces the table's contents from a YAML file.
func (t *MappingTable) LoadFile(path string) error {
	groups, err := LoadMappingFile(path)
	if err != nil {
		return err
	}
	t.Replace(groups)
	return nil
}

// Watch reloads the table whenever the mapping file changes, until ctx is
// cancelled. A reload that fails to parse keeps the previous table and logs
// the error. The watch is placed on the file's directory so editors that
// replace the file via rename are still observed.
func (t *MappingTable) Watch(ctx context.Context, path string, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating mapping watcher: %w", err)
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
				if err := t.LoadFile(path); err != nil {
					logger.WithError(err).WithField("path", path).Error("reloading role mappings")
					continue
				}
				logger.WithField("path", path).Info("role mappings reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("role mapping watcher error")
			}
		}
	}()
	return nil
}
