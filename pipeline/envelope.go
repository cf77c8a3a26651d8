package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
)

// Op selects which phase of a pipeline an invocation runs.
type Op int

const (
	// OpCollection fetches upstream data and writes raw documents.
	OpCollection Op = iota
	// OpAggregation rolls raw snapshots up into daily aggregates.
	OpAggregation
	// OpCleanup prunes raw snapshots past the retention window.
	OpCleanup
	// OpFull runs collection, aggregation, and cleanup in sequence.
	OpFull
	// OpUnknown marks an unrecognized selector; the invocation logs
	// and does nothing.
	OpUnknown
)

func (op Op) String() string {
	switch op {
	case OpCollection:
		return "collection"
	case OpAggregation:
		return "aggregation"
	case OpCleanup:
		return "cleanup"
	case OpFull:
		return "full"
	}
	return "unknown"
}

// ParseOp maps a selector string to an Op. The empty string selects
// the default collection operation.
func ParseOp(s string) Op {
	switch s {
	case "", "collection":
		return OpCollection
	case "aggregation":
		return OpAggregation
	case "cleanup":
		return OpCleanup
	case "full":
		return OpFull
	}
	return OpUnknown
}

// Message is the trigger envelope delivered to a pipeline invocation.
// Data carries a base64-encoded JSON body; Attributes carry string
// metadata that takes precedence over the body.
type Message struct {
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}

type messageBody struct {
	Type string `json:"type"`
}

// Operation extracts the operation selector from the envelope.
// Attributes win over the encoded body; a missing or malformed
// envelope falls back to the default operation.
func (m *Message) Operation() Op {
	if m == nil {
		return OpCollection
	}
	if t, ok := m.Attributes["type"]; ok && t != "" {
		return ParseOp(t)
	}
	if m.Data == "" {
		return OpCollection
	}

	raw, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		slog.Warn("malformed envelope data, using default operation", slog.Any("error", err))
		return OpCollection
	}
	var body messageBody
	if err := json.Unmarshal(raw, &body); err != nil {
		slog.Warn("malformed envelope body, using default operation", slog.Any("error", err))
		return OpCollection
	}
	return ParseOp(body.Type)
}
