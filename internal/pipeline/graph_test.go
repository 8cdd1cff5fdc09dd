package pipeline

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/contractlens/internal/stage"
)

func def(name string, deps ...string) stage.Definition {
	return stage.Definition{Name: name, Mandate: "mandate:" + name, DependsOn: deps}
}

func TestNewGraph_DefaultOrder(t *testing.T) {
	g, err := NewGraph(stage.Defaults())
	require.NoError(t, err)
	assert.Equal(t, []string{stage.Structure, stage.Risk, stage.Negotiation}, g.Order())
	assert.Equal(t, []string{stage.Risk, stage.Negotiation}, g.Dependents(stage.Structure))
	assert.Empty(t, g.Dependents(stage.Negotiation))
}

func TestNewGraph_TiesFollowDeclarationOrder(t *testing.T) {
	g, err := NewGraph([]stage.Definition{def("c"), def("a"), def("b", "c")})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, g.Order())

	g, err = NewGraph([]stage.Definition{def("x", "y"), def("y"), def("z")})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x", "z"}, g.Order())
}

func TestNewGraph_OrderRespectsDependencies(t *testing.T) {
	defs := []stage.Definition{
		def("report", "risk", "negotiation"),
		def("negotiation", "structure", "risk"),
		def("risk", "structure"),
		def("structure"),
		def("glossary"),
	}
	g, err := NewGraph(defs)
	require.NoError(t, err)

	pos := map[string]int{}
	for i, name := range g.Order() {
		pos[name] = i
	}
	for _, d := range defs {
		for _, dep := range d.DependsOn {
			assert.Less(t, pos[dep], pos[d.Name], "%s must precede %s", dep, d.Name)
		}
	}
}

func TestNewGraph_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		defs  []stage.Definition
		cycle bool
	}{
		{"empty", nil, false},
		{"unnamed", []stage.Definition{def(" ")}, false},
		{"duplicate", []stage.Definition{def("a"), def("a")}, false},
		{"unknown dependency", []stage.Definition{def("a", "ghost")}, false},
		{"self dependency", []stage.Definition{def("a", "a")}, false},
		{"repeated dependency", []stage.Definition{def("a"), def("b", "a", "a")}, false},
		{"two cycle", []stage.Definition{def("a", "b"), def("b", "a")}, true},
		{"three cycle", []stage.Definition{def("s"), def("a", "c"), def("b", "a"), def("c", "b")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGraph(tt.defs)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, ErrInvalidPipelineConfig), "got %v", err)
			assert.Equal(t, tt.cycle, errors.Is(err, ErrDependencyCycle))
		})
	}
}

func TestNewGraph_CycleWitnessIsStable(t *testing.T) {
	defs := []stage.Definition{def("a", "c"), def("b", "a"), def("c", "b")}
	_, err := NewGraph(defs)
	require.Error(t, err)
	first := err.Error()
	for range 5 {
		_, err := NewGraph(defs)
		assert.Equal(t, first, err.Error())
	}
	assert.Contains(t, first, "cycle: ")
	assert.Contains(t, first, "a -> b -> c -> a")
}

func TestNewGraph_UnknownConcurrentWith(t *testing.T) {
	d := def("a")
	d.ConcurrentWith = []string{"ghost"}
	_, err := NewGraph([]stage.Definition{d})
	assert.True(t, errors.Is(err, ErrInvalidPipelineConfig))
}
