package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProject(name string) Project {
	return Project{
		Name:           name,
		RegulationFile: "/data/reg.yaml",
		ProcedureDocs:  []string{"/data/proc1.md"},
		DataDir:        "/data/" + name,
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	r, err := LoadRegistry(path)
	require.NoError(t, err)
	require.NoError(t, r.Add(testProject("iso27001")))

	r2, err := LoadRegistry(path)
	require.NoError(t, err)
	p, err := r2.Get("iso27001")
	require.NoError(t, err)
	assert.Equal(t, "/data/reg.yaml", p.RegulationFile)
	assert.Len(t, p.ProcedureDocs, 1)
}

func TestRegistryGetUnknown(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "projects.yaml"))
	require.NoError(t, err)
	_, err = r.Get("nope")
	assert.Error(t, err)
}

func TestRegistryRemove(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "projects.yaml"))
	require.NoError(t, err)
	require.NoError(t, r.Add(testProject("a")))
	assert.NoError(t, r.Remove("a"))
	assert.Error(t, r.Remove("a"), "removing twice should fail")
}

func TestRegistryNamesSorted(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "projects.yaml"))
	require.NoError(t, err)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Add(testProject(n)))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
}

func TestProjectValidate(t *testing.T) {
	assert.NoError(t, testProject("ok").Validate())

	for name, mutate := range map[string]func(*Project){
		"missing name":       func(p *Project) { p.Name = "" },
		"missing regulation": func(p *Project) { p.RegulationFile = "" },
		"missing docs":       func(p *Project) { p.ProcedureDocs = nil },
		"missing data dir":   func(p *Project) { p.DataDir = "" },
	} {
		p := testProject("bad")
		mutate(&p)
		assert.Error(t, p.Validate(), name)
	}
}

func TestProjectPaths(t *testing.T) {
	p := testProject("x")
	assert.Equal(t, filepath.Join(p.DataDir, "run.json"), p.RunStatePath())
	assert.Equal(t, filepath.Join(p.DataDir, "index.gob"), p.IndexPath())
}
