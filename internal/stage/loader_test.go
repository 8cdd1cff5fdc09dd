package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	defs := Defaults()
	require.Len(t, defs, 3)
	assert.Equal(t, Structure, defs[0].Name)
	assert.Empty(t, defs[0].DependsOn)
	assert.Equal(t, []string{Structure}, defs[1].DependsOn)
	assert.Equal(t, []string{Structure, Risk}, defs[2].DependsOn)
	for _, d := range defs {
		assert.NotEmpty(t, d.Mandate, d.Name)
	}
	assert.True(t, defs[2].DependsOnStage(Risk))
	assert.False(t, defs[1].DependsOnStage(Negotiation))
}

func TestParseDefinitionsYAML(t *testing.T) {
	data := []byte(`
stages:
  - name: structure
  - name: obligations
    mandate: |
      List every obligation of each party with its clause.
    depends_on: [structure]
    concurrent_with: [risk]
  - name: risk
    depends_on: [structure]
`)
	defs, err := ParseDefinitionsYAML(data)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, StructureMandate, defs[0].Mandate)
	assert.Equal(t, "List every obligation of each party with its clause.", defs[1].Mandate)
	assert.Equal(t, []string{"risk"}, defs[1].ConcurrentWith)
	assert.Equal(t, RiskMandate, defs[2].Mandate)
}

func TestParseDefinitionsYAML_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":             "   ",
		"no stages":         "stages: []",
		"unnamed":           "stages:\n  - mandate: x\n",
		"custom no mandate": "stages:\n  - name: bespoke\n",
		"bad yaml":          "stages: [",
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinitionsYAML([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestLoadDefinitions(t *testing.T) {
	defs, err := LoadDefinitions("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), defs)

	path := filepath.Join(t.TempDir(), "stages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stages:\n  - name: risk\n"), 0o644))
	defs, err = LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, Risk, defs[0].Name)

	_, err = LoadDefinitions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
