package turns

import (
	"testing"
)

type recorder struct {
	inputs  []string
	outputs []string
	turns   []Turn
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnInput:  func(t string) { r.inputs = append(r.inputs, t) },
		OnOutput: func(t string) { r.outputs = append(r.outputs, t) },
		OnTurn:   func(t Turn) { r.turns = append(r.turns, t) },
	}
}

func TestFragmentsAccumulate(t *testing.T) {
	rec := &recorder{}
	a := NewAssembler(rec.callbacks())

	a.AddInput("I has ")
	a.AddInput("a apple")
	a.AddOutput("I see")

	if len(rec.inputs) != 2 {
		t.Fatalf("expected 2 partial input updates, got %d", len(rec.inputs))
	}
	if rec.inputs[1] != "I has a apple" {
		t.Errorf("running input = %q", rec.inputs[1])
	}
	if rec.outputs[0] != "I see" {
		t.Errorf("running output = %q", rec.outputs[0])
	}
}

func TestCompleteTurnWithCorrection(t *testing.T) {
	rec := &recorder{}
	a := NewAssembler(rec.callbacks())

	a.AddInput("I has a apple")
	a.AddOutput(`I see, that's nice! ---CORRECTION---{"type":"grammar","original":"I has a apple","corrected":"I have an apple","explanation":"Use 'have' with 'I', and 'an' before a vowel sound."}`)
	a.CompleteTurn()

	if len(rec.turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(rec.turns))
	}
	turn := rec.turns[0]

	if turn.Input != "I has a apple" {
		t.Errorf("input = %q", turn.Input)
	}
	if turn.Output != "I see, that's nice!" {
		t.Errorf("conversational text = %q", turn.Output)
	}
	if turn.Correction == nil {
		t.Fatal("expected correction")
	}
	if turn.Correction.Type != Grammar {
		t.Errorf("type = %q", turn.Correction.Type)
	}
	if turn.Correction.Original != "I has a apple" ||
		turn.Correction.Corrected != "I have an apple" ||
		turn.Correction.Explanation != "Use 'have' with 'I', and 'an' before a vowel sound." {
		t.Errorf("correction fields mismatch: %+v", turn.Correction)
	}
}

func TestCompleteTurnWithoutMarker(t *testing.T) {
	rec := &recorder{}
	a := NewAssembler(rec.callbacks())

	a.AddOutput("Just a normal reply.")
	a.CompleteTurn()

	turn := rec.turns[0]
	if turn.Output != "Just a normal reply." {
		t.Errorf("output = %q, want verbatim text", turn.Output)
	}
	if turn.Correction != nil {
		t.Error("no marker should mean no correction")
	}
}

func TestMalformedPayloadSwallowed(t *testing.T) {
	rec := &recorder{}
	a := NewAssembler(rec.callbacks())

	a.AddOutput(`Good try! ---CORRECTION---{not valid json`)
	a.CompleteTurn()

	if len(rec.turns) != 1 {
		t.Fatalf("turn must still complete, got %d turns", len(rec.turns))
	}
	turn := rec.turns[0]
	if turn.Output != "Good try!" {
		t.Errorf("output = %q, want pre-marker text", turn.Output)
	}
	if turn.Correction != nil {
		t.Error("malformed payload must not yield a correction")
	}
}

func TestInvalidPayloadsDiscarded(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing type", `{"original":"a","corrected":"b","explanation":"c"}`},
		{"missing original", `{"type":"grammar","corrected":"b","explanation":"c"}`},
		{"missing corrected", `{"type":"grammar","original":"a","explanation":"c"}`},
		{"missing explanation", `{"type":"grammar","original":"a","corrected":"b"}`},
		{"unknown type", `{"type":"vocabulary","original":"a","corrected":"b","explanation":"c"}`},
		{"empty fields", `{"type":"grammar","original":"","corrected":"","explanation":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			a := NewAssembler(rec.callbacks())
			a.AddOutput("Hello! " + CorrectionMarker + tt.payload)
			a.CompleteTurn()

			if len(rec.turns) != 1 {
				t.Fatalf("turn must complete, got %d", len(rec.turns))
			}
			if rec.turns[0].Correction != nil {
				t.Errorf("payload %q should be discarded", tt.payload)
			}
			if rec.turns[0].Output != "Hello!" {
				t.Errorf("output = %q", rec.turns[0].Output)
			}
		})
	}
}

func TestPronunciationCorrection(t *testing.T) {
	rec := &recorder{}
	a := NewAssembler(rec.callbacks())

	a.AddOutput(`Nice attempt. ---CORRECTION---{"type":"pronunciation","original":"sheep","corrected":"ship","explanation":"Short 'i' sound."}`)
	a.CompleteTurn()

	c := rec.turns[0].Correction
	if c == nil || c.Type != Pronunciation {
		t.Fatalf("expected pronunciation correction, got %+v", c)
	}
}

func TestAccumulatorsResetAfterTurn(t *testing.T) {
	rec := &recorder{}
	a := NewAssembler(rec.callbacks())

	a.AddInput("first in")
	a.AddOutput("first out")
	a.CompleteTurn()

	a.AddInput("second in")
	a.AddOutput("second out")
	a.CompleteTurn()

	if len(rec.turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(rec.turns))
	}
	if rec.turns[1].Input != "second in" || rec.turns[1].Output != "second out" {
		t.Errorf("second turn leaked first turn's text: %+v", rec.turns[1])
	}
}

func TestEmptyTurnIsStillEmitted(t *testing.T) {
	rec := &recorder{}
	a := NewAssembler(rec.callbacks())

	a.CompleteTurn()

	if len(rec.turns) != 1 {
		t.Fatalf("empty turn is valid, got %d turns", len(rec.turns))
	}
	if rec.turns[0].Input != "" || rec.turns[0].Output != "" || rec.turns[0].Correction != nil {
		t.Errorf("empty turn should be all-empty: %+v", rec.turns[0])
	}
}

func TestNilCallbacksTolerated(t *testing.T) {
	a := NewAssembler(Callbacks{})
	a.AddInput("x")
	a.AddOutput("y")
	a.CompleteTurn()
}
