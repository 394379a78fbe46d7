package llm

import "context"

// Mode selects the shape of the generated output.
type Mode int

const (
	// ModeText asks for free text.
	ModeText Mode = iota
	// ModeJSON asks the provider to constrain output to one JSON document.
	ModeJSON
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	if m == ModeJSON {
		return "json"
	}
	return "text"
}

// GenerateRequest is a single-turn generation: an optional system
// instruction followed by one user prompt.
type GenerateRequest struct {
	Prompt     string
	System     string
	Mode       Mode
	Capability string

	// Temperature is passed through unchanged; nil uses the endpoint default.
	Temperature *float64
}

// Generator turns a prompt into text. Workflow stages depend on this
// interface only, so tests can script answers without a network.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

func (g GenerateRequest) toRequest() Request {
	msgs := make([]Message, 0, 2)
	if g.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: g.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: g.Prompt})

	return Request{
		Capability:  g.Capability,
		Messages:    msgs,
		Temperature: g.Temperature,
		JSON:        g.Mode == ModeJSON,
	}
}
