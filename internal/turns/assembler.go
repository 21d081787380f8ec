// Package turns assembles streamed transcript fragments into completed
// conversational turns, extracting embedded correction payloads.
package turns

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// CorrectionMarker is the sentinel the model emits between conversational
// text and the structured correction payload. External wire contract: no
// escaping rules, assumed to never occur in normal output.
const CorrectionMarker = "---CORRECTION---"

// CorrectionType is the kind of language error being corrected.
type CorrectionType string

const (
	Grammar       CorrectionType = "grammar"
	Pronunciation CorrectionType = "pronunciation"
)

// Correction is a structured note attached to a user turn. Either fully
// valid or absent, never partial.
type Correction struct {
	Type        CorrectionType `json:"type"`
	Original    string         `json:"original"`
	Corrected   string         `json:"corrected"`
	Explanation string         `json:"explanation"`
}

// valid reports whether every field is present and the type is known.
func (c *Correction) valid() bool {
	if c.Original == "" || c.Corrected == "" || c.Explanation == "" {
		return false
	}
	return c.Type == Grammar || c.Type == Pronunciation
}

// Turn is one completed exchange. Input or Output may be empty when nothing
// was transcribed on that side.
type Turn struct {
	Input      string
	Output     string
	Correction *Correction
}

// Callbacks receive live partial updates and completed turns. Nil members
// are skipped.
type Callbacks struct {
	OnInput  func(text string) // running input transcript, every fragment
	OnOutput func(text string) // running output transcript, every fragment
	OnTurn   func(turn Turn)
}

// Assembler accumulates fragments for the current turn. Fragments always
// precede their turn boundary; the assembler never buffers across turns.
type Assembler struct {
	mu     sync.Mutex
	input  strings.Builder
	output strings.Builder
	cb     Callbacks
}

// NewAssembler creates an assembler delivering to cb.
func NewAssembler(cb Callbacks) *Assembler {
	return &Assembler{cb: cb}
}

// AddInput appends an input-transcript fragment and emits the running text.
func (a *Assembler) AddInput(text string) {
	a.mu.Lock()
	a.input.WriteString(text)
	current := a.input.String()
	a.mu.Unlock()

	if a.cb.OnInput != nil {
		a.cb.OnInput(current)
	}
}

// AddOutput appends an output-transcript fragment and emits the running text.
func (a *Assembler) AddOutput(text string) {
	a.mu.Lock()
	a.output.WriteString(text)
	current := a.output.String()
	a.mu.Unlock()

	if a.cb.OnOutput != nil {
		a.cb.OnOutput(current)
	}
}

// CompleteTurn closes out the current turn: splits any embedded correction
// from the output text, emits exactly one Turn, and resets both
// accumulators. Malformed correction payloads are logged and dropped; the
// turn still completes.
func (a *Assembler) CompleteTurn() {
	a.mu.Lock()
	input := a.input.String()
	output := a.output.String()
	a.input.Reset()
	a.output.Reset()
	a.mu.Unlock()

	text, correction := splitCorrection(output)

	if a.cb.OnTurn != nil {
		a.cb.OnTurn(Turn{Input: input, Output: text, Correction: correction})
	}
}

// splitCorrection separates conversational text from the structured payload
// after the sentinel marker, if present and valid.
func splitCorrection(output string) (string, *Correction) {
	idx := strings.Index(output, CorrectionMarker)
	if idx == -1 {
		return output, nil
	}

	text := strings.TrimSpace(output[:idx])
	payload := output[idx+len(CorrectionMarker):]

	var c Correction
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		slog.Debug("failed to parse correction payload", "error", err)
		return text, nil
	}
	if !c.valid() {
		slog.Debug("discarding incomplete correction payload", "type", string(c.Type))
		return text, nil
	}
	return text, &c
}
