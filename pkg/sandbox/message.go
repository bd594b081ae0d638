package sandbox

import (
	"fmt"

	"github.com/grothkopp/ainb/pkg/api"
)

// Kind discriminates the messages exchanged with an execution context.
type Kind string

const (
	// KindHello is the runner handshake. It is consumed by the transport
	// layer and never surfaces above a Conn.
	KindHello Kind = "hello"
	// KindJobRequest carries cell source into a context for evaluation.
	KindJobRequest Kind = "job-request"
	// KindJobResult carries a successful evaluation result back.
	KindJobResult Kind = "job-result"
	// KindJobError carries an evaluation failure back.
	KindJobError Kind = "job-error"
)

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	switch k {
	case KindHello, KindJobRequest, KindJobResult, KindJobError:
		return true
	}
	return false
}

// Message is the envelope for everything crossing a Conn, in both
// directions. Token names the context a message belongs to; Conn
// implementations stamp it on outgoing messages and drop incoming
// messages whose token does not match their own.
type Message struct {
	ID           string     `json:"id"`
	Kind         Kind       `json:"kind"`
	CellID       api.CellID `json:"cell_id,omitempty"`
	Generation   uint64     `json:"generation,omitempty"`
	SourceText   string     `json:"source_text,omitempty"`
	Value        string     `json:"value,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	TimeoutMs    int64      `json:"timeout_ms,omitempty"`
	Token        string     `json:"token,omitempty"`
}

// NewJobRequest builds the request envelope for one evaluation of a cell.
// The Conn stamps the token when the message is sent.
func NewJobRequest(cellID api.CellID, generation uint64, source string) Message {
	return Message{
		ID:         api.NewMessageID(),
		Kind:       KindJobRequest,
		CellID:     cellID,
		Generation: generation,
		SourceText: source,
	}
}

// NewJobResult builds the reply for a completed evaluation, echoing the
// request's cell, generation and token.
func NewJobResult(req Message, value string) Message {
	return Message{
		ID:         api.NewMessageID(),
		Kind:       KindJobResult,
		CellID:     req.CellID,
		Generation: req.Generation,
		Value:      value,
		Token:      req.Token,
	}
}

// NewJobError builds the reply for a failed evaluation, echoing the
// request's cell, generation and token.
func NewJobError(req Message, errorMessage string) Message {
	return Message{
		ID:           api.NewMessageID(),
		Kind:         KindJobError,
		CellID:       req.CellID,
		Generation:   req.Generation,
		ErrorMessage: errorMessage,
		Token:        req.Token,
	}
}

// NewHello builds the handshake a runner emits once at startup.
func NewHello(token string) Message {
	return Message{
		ID:    api.NewMessageID(),
		Kind:  KindHello,
		Token: token,
	}
}

// Validate checks structural integrity before a message is acted on.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message has no id")
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	switch m.Kind {
	case KindHello:
		if m.Token == "" {
			return fmt.Errorf("hello message has no token")
		}
	case KindJobRequest:
		if m.CellID == "" {
			return fmt.Errorf("job-request has no cell id")
		}
		if m.Generation == 0 {
			return fmt.Errorf("job-request has no generation")
		}
	case KindJobResult, KindJobError:
		if m.CellID == "" {
			return fmt.Errorf("%s has no cell id", m.Kind)
		}
		if m.Generation == 0 {
			return fmt.Errorf("%s has no generation", m.Kind)
		}
		if m.Kind == KindJobError && m.ErrorMessage == "" {
			return fmt.Errorf("job-error has no error message")
		}
	}
	return nil
}
