package pipeline

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidPipelineConfig covers every stage-table defect: no stages,
	// empty or duplicate names, unknown or self dependencies, cycles.
	ErrInvalidPipelineConfig = errors.New("invalid pipeline configuration")
	// ErrDependencyCycle additionally marks configuration errors caused by a cycle.
	ErrDependencyCycle = errors.New("dependency cycle")

	ErrStageFailed   = errors.New("stage failed")
	ErrConsolidation = errors.New("consolidation failed")

	// ErrAlreadyPublished reports a second publish for the same stage in one
	// run. It indicates a scheduler bug, never a provider problem.
	ErrAlreadyPublished = errors.New("stage result already published")

	ErrStopped = errors.New("orchestrator stopped")
)

// ConfigError describes one stage-table defect.
type ConfigError struct {
	Kind error
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &ConfigError{Kind: ErrInvalidPipelineConfig, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	msg := "cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return errors.Mark(&ConfigError{Kind: ErrInvalidPipelineConfig, Msg: msg}, ErrDependencyCycle)
}

// StageError names the stage whose failure ended a run.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

func (e *StageError) Is(target error) bool { return target == ErrStageFailed }

// ConsolidationError wraps a failure of the merge step. The stage ledger of
// the run is kept.
type ConsolidationError struct {
	Cause error
}

func (e *ConsolidationError) Error() string {
	return fmt.Sprintf("consolidation failed: %v", e.Cause)
}

func (e *ConsolidationError) Unwrap() error { return e.Cause }

func (e *ConsolidationError) Is(target error) bool { return target == ErrConsolidation }
