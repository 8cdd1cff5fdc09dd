// Package delivery turns finished runs into chat-sized replies and posts
// them back to the messaging channel.
package delivery

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/contractlens/internal/document"
	"github.com/dgallion1/contractlens/internal/parser"
	"github.com/dgallion1/contractlens/internal/pipeline"
)

// Replies sent on the messaging channel.
const (
	SendPDFMessage = "Please send a PDF contract for analysis."
	NoTextMessage  = "Could not extract text from PDF!"
	failurePrefix  = "Failed to analyze contract: "
)

// Message renders a finished run: the report when it completed, otherwise
// one labeled failure message. Partial results are never returned.
func Message(run *pipeline.Run) string {
	if run == nil {
		return FailureMessage(errors.New("no analysis was started"))
	}
	if rep := run.Report(); run.Status() == pipeline.RunCompleted && rep != nil {
		return rep.Text
	}
	err := run.Err()
	if err == nil {
		err = errors.Newf("analysis ended in state %s", run.Status())
	}
	return FailureMessage(err)
}

// FailureMessage describes what could not be completed and why, followed by
// any hints attached to err.
func FailureMessage(err error) string {
	var b strings.Builder
	b.WriteString(failurePrefix)
	b.WriteString(describe(err))
	if hints := errors.FlattenHints(err); hints != "" {
		b.WriteString("\n")
		b.WriteString(hints)
	}
	return b.String()
}

func describe(err error) string {
	var se *pipeline.StageError
	var ce *pipeline.ConsolidationError
	switch {
	case errors.Is(err, document.ErrEmptyDocument), errors.Is(err, parser.ErrExtraction):
		return "no text could be extracted from the document."
	case errors.As(err, &se):
		return fmt.Sprintf("the %s analysis did not complete (%v).", se.Stage, se.Cause)
	case errors.As(err, &ce):
		return fmt.Sprintf("the stage findings could not be merged into a report (%v).", ce.Cause)
	case errors.Is(err, pipeline.ErrInvalidPipelineConfig):
		return fmt.Sprintf("the analysis pipeline is misconfigured (%v).", err)
	default:
		return err.Error()
	}
}
