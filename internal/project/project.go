// Package project manages the registry of audit projects. A project names
// one regulation file, the procedure documents audited against it, and a
// data directory holding the run document and index artifacts.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Project is one registered audit target.
type Project struct {
	Name           string   `yaml:"name"`
	RegulationFile string   `yaml:"regulation_file"`
	ProcedureDocs  []string `yaml:"procedure_docs"`
	DataDir        string   `yaml:"data_dir"`
}

// Validate checks the project definition is usable.
func (p Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if p.RegulationFile == "" {
		return fmt.Errorf("project %s: regulation file is required", p.Name)
	}
	if len(p.ProcedureDocs) == 0 {
		return fmt.Errorf("project %s: at least one procedure document is required", p.Name)
	}
	if p.DataDir == "" {
		return fmt.Errorf("project %s: data dir is required", p.Name)
	}
	return nil
}

// RunStatePath is the project's run document location.
func (p Project) RunStatePath() string {
	return filepath.Join(p.DataDir, "run.json")
}

// IndexPath is the project's persisted vector index artifact.
func (p Project) IndexPath() string {
	return filepath.Join(p.DataDir, "index.gob")
}

// Registry is the on-disk set of projects (projects.yaml).
type Registry struct {
	path     string
	Projects map[string]Project `yaml:"projects"`
}

// DefaultRegistryPath returns the registry location under the user config
// directory.
func DefaultRegistryPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "regaudit", "projects.yaml")
}

// LoadRegistry reads the registry, returning an empty one when the file
// does not exist yet.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, Projects: map[string]Project{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read project registry %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse project registry %s: %w", path, err)
	}
	if r.Projects == nil {
		r.Projects = map[string]Project{}
	}
	return r, nil
}

// Get returns a project by name.
func (r *Registry) Get(name string) (Project, error) {
	p, ok := r.Projects[name]
	if !ok {
		return Project{}, fmt.Errorf("unknown project %q (register it with 'regaudit projects add')", name)
	}
	return p, nil
}

// Add registers a project. An existing project with the same name is
// replaced.
func (r *Registry) Add(p Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.Projects[p.Name] = p
	return r.save()
}

// Remove deletes a project from the registry. The project's data directory
// is left untouched.
func (r *Registry) Remove(name string) error {
	if _, ok := r.Projects[name]; !ok {
		return fmt.Errorf("unknown project %q", name)
	}
	delete(r.Projects, name)
	return r.save()
}

// Names returns registered project names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Projects))
	for n := range r.Projects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode project registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write project registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace project registry: %w", err)
	}
	return nil
}
