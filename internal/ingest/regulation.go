package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"regaudit/internal/types"
)

// clauseRecord is the on-disk shape of one regulation clause.
type clauseRecord struct {
	ID       string            `json:"id" yaml:"id"`
	Title    string            `json:"title" yaml:"title"`
	Text     string            `json:"text" yaml:"text"`
	Metadata map[string]string `json:"metadata" yaml:"metadata"`
}

// LoadClauses parses the regulation file (JSON or YAML list of clauses).
// The regulation file is the master list the run state merges against, so
// a malformed file or duplicate IDs abort before any work starts.
func LoadClauses(path string) ([]*types.Clause, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading regulation file %s: %v", types.ErrIngestion, path, err)
	}

	var records []clauseRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &records)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &records)
	default:
		return nil, fmt.Errorf("%w: unsupported regulation file format %s", types.ErrIngestion, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parsing regulation file %s: %v", types.ErrIngestion, path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: regulation file %s contains no clauses", types.ErrIngestion, path)
	}

	seen := map[string]bool{}
	clauses := make([]*types.Clause, 0, len(records))
	for i, rec := range records {
		c := &types.Clause{
			ID:       rec.ID,
			Title:    rec.Title,
			Text:     rec.Text,
			Metadata: rec.Metadata,
			State:    types.StatePending,
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: clause %d in %s: %v", types.ErrIngestion, i, path, err)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: duplicate clause ID %s in %s", types.ErrIngestion, c.ID, path)
		}
		seen[c.ID] = true
		clauses = append(clauses, c)
	}
	return clauses, nil
}
