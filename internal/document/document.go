// Package document holds the ingested contract text and splits it into
// bounded chunks for the analysis stages.
package document

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrEmptyDocument is returned when the extracted text is empty or whitespace only.
// It is terminal: no stage is dispatched for such a document.
var ErrEmptyDocument = errors.New("document has no usable text")

// Document is the extracted text of one contract, immutable once ingested.
type Document struct {
	Name      string // provenance label, usually the uploaded file name
	Text      string
	SessionID string // opaque identity/session token, never interpreted
}

// New builds a Document. An empty sessionID is replaced by a fresh UUID.
func New(name, text, sessionID string) Document {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return Document{Name: name, Text: text, SessionID: sessionID}
}
