package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/contractlens/internal/delivery"
	"github.com/dgallion1/contractlens/internal/document"
	"github.com/dgallion1/contractlens/internal/parser"
)

// handleWebhookVerify answers the messaging platform's subscription
// handshake. Both the hub.* and the bare parameter names are accepted.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := firstNonEmpty(q.Get("hub.mode"), q.Get("mode"))
	token := firstNonEmpty(q.Get("hub.verify_token"), q.Get("verify_token"))
	challenge := firstNonEmpty(q.Get("hub.challenge"), q.Get("challenge"))

	if mode != "subscribe" || s.cfg.WebhookVerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.WebhookVerifyToken)) != 1 {
		s.log.Warn("webhook verification rejected", "mode", mode)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(challenge))
}

// WebhookMessage is an inbound chat message. FileBytes is base64 in JSON.
type WebhookMessage struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	SessionID string `json:"session_id,omitempty"`
	FileName  string `json:"file_name"`
	FileBytes []byte `json:"file_bytes"`
	ReplyURL  string `json:"reply_url,omitempty"`
}

// handleWebhookMessage analyzes an attached PDF synchronously and replies
// with the report split into chat-sized segments.
func (s *Server) handleWebhookMessage(w http.ResponseWriter, r *http.Request) {
	// base64 inflates by 4/3; allow headroom for the other fields.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes/3*4+1024*1024)

	var msg WebhookMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		jsonError(w, "invalid message: "+err.Error(), http.StatusBadRequest)
		return
	}
	log := s.log.With("from", msg.From, "filename", msg.FileName)

	var segments []string
	switch {
	case msg.FileName == "" || len(msg.FileBytes) == 0 || !parser.IsPDF(msg.FileName):
		segments = []string{delivery.SendPDFMessage}
	default:
		sessionID := firstNonEmpty(msg.SessionID, msg.From)
		run, err := s.orchestrator.Analyze(r.Context(), sanitizeFilename(msg.FileName), msg.FileBytes, sessionID, 0)
		switch {
		case run == nil || errors.Is(err, document.ErrEmptyDocument):
			log.Warn("no text extracted", "error", err)
			segments = []string{delivery.NoTextMessage}
		default:
			if err != nil {
				log.Warn("analysis failed", "run_id", run.ID, "error", err)
			}
			segments = delivery.Segment(delivery.Message(run), s.cfg.SegmentLimit)
		}
	}

	resp := map[string]any{"reply": segments}
	if msg.ReplyURL != "" && s.replier != nil {
		err := s.replier.Send(r.Context(), msg.ReplyURL, msg.From, segments)
		if err != nil {
			log.Warn("reply forwarding failed", "error", err)
		}
		resp["forwarded"] = err == nil
	}
	writeJSON(w, http.StatusOK, resp)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

