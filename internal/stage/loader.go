package stage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Table is the on-disk form of a stage table.
type Table struct {
	Stages []Definition `yaml:"stages"`
}

// ParseDefinitionsYAML decodes a stage table. Canonical stages may omit their
// mandate to inherit the built-in one. Graph checks (unknown dependencies,
// cycles) are left to the pipeline.
func ParseDefinitionsYAML(data []byte) ([]Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("stage table: payload is empty")
	}
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, errors.Wrap(err, "stage table: decode")
	}
	if len(table.Stages) == 0 {
		return nil, errors.New("stage table: no stages declared")
	}
	defs := make([]Definition, 0, len(table.Stages))
	for i, d := range table.Stages {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, errors.Newf("stage table: stage %d has no name", i+1)
		}
		d.Mandate = strings.TrimSpace(d.Mandate)
		if d.Mandate == "" {
			m, ok := DefaultMandate(d.Name)
			if !ok {
				return nil, errors.Newf("stage table: stage %q has no mandate", d.Name)
			}
			d.Mandate = m
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// LoadDefinitions reads a stage table from path. An empty path yields the
// built-in defaults.
func LoadDefinitions(path string) ([]Definition, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stage table: read %s", path)
	}
	defs, err := ParseDefinitionsYAML(data)
	if err != nil {
		return nil, errors.Wrapf(err, "stage table: %s", filepath.Clean(path))
	}
	return defs, nil
}
