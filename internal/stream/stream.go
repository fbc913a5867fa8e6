// Package stream reassembles model turns from provider deltas.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
)

var (
	// ErrAfterTerminal is returned for any delta that follows done or error.
	ErrAfterTerminal = errors.New("delta after terminal delta")
	// ErrNoTerminal marks a stream that closed without done or error.
	ErrNoTerminal = errors.New("stream ended without a terminal delta")
)

var log = logging.New("stream")

// Result is one assembled model turn.
type Result struct {
	Content          string
	Reasoning        string
	ReasoningDetails json.RawMessage
	ToolCalls        []domain.ToolCall
	// Malformed lists tool calls that were dropped: no id, no name, or
	// arguments that are not a JSON object.
	Malformed []string
	Done      bool
	Err       string
}

type partial struct {
	id   string
	name string
	args strings.Builder
}

// Accumulator collects the deltas of one turn. It is not safe for
// concurrent use.
type Accumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	details   []json.RawMessage

	calls   []*partial
	byID    map[string]*partial
	byIndex map[int]*partial

	terminal *domain.StreamDelta
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		byID:    map[string]*partial{},
		byIndex: map[int]*partial{},
	}
}

// Add folds d into the turn.
func (a *Accumulator) Add(d domain.StreamDelta) error {
	if a.terminal != nil {
		return fmt.Errorf("%w: %s", ErrAfterTerminal, d.Type)
	}
	switch d.Type {
	case domain.DeltaContent:
		a.content.WriteString(d.Content)
	case domain.DeltaReasoning:
		a.reasoning.WriteString(d.Reasoning)
	case domain.DeltaReasoningDetails:
		if len(d.ReasoningDetails) > 0 {
			a.details = append(a.details, append(json.RawMessage(nil), d.ReasoningDetails...))
		}
	case domain.DeltaToolCall:
		if d.ToolCall != nil {
			a.addToolCall(*d.ToolCall)
		}
	case domain.DeltaThinkingStart:
	case domain.DeltaDone, domain.DeltaError:
		t := d
		a.terminal = &t
	default:
		return fmt.Errorf("unknown delta type %q", d.Type)
	}
	return nil
}

func (a *Accumulator) addToolCall(tc domain.ToolCallDelta) {
	var p *partial
	if tc.ID != "" {
		p = a.byID[tc.ID]
		if p == nil {
			p = &partial{id: tc.ID}
			a.byID[tc.ID] = p
			a.calls = append(a.calls, p)
		}
		a.byIndex[tc.Index] = p
	} else {
		p = a.byIndex[tc.Index]
		if p == nil {
			p = &partial{}
			a.byIndex[tc.Index] = p
			a.calls = append(a.calls, p)
		}
	}
	if p.name == "" {
		p.name = tc.Name
	}
	p.args.WriteString(tc.Arguments)
}

// Finished reports whether the terminal delta has arrived.
func (a *Accumulator) Finished() bool { return a.terminal != nil }

// Result returns the turn so far. Tool calls keep the order in which they
// first appeared.
func (a *Accumulator) Result() Result {
	r := Result{
		Content:          a.content.String(),
		Reasoning:        a.reasoning.String(),
		ReasoningDetails: mergeDetails(a.details),
	}
	for _, p := range a.calls {
		args := strings.TrimSpace(p.args.String())
		if args == "" {
			args = "{}"
		}
		switch {
		case p.id == "" || p.name == "":
			r.Malformed = append(r.Malformed, fmt.Sprintf("tool call %q without id or name", p.name))
			continue
		case !isObject(args):
			r.Malformed = append(r.Malformed, fmt.Sprintf("tool call %s (%s) has invalid arguments", p.id, p.name))
			continue
		}
		r.ToolCalls = append(r.ToolCalls, domain.ToolCall{ID: p.id, Name: p.name, Arguments: args})
	}
	if a.terminal != nil {
		r.Done = a.terminal.Type == domain.DeltaDone
		r.Err = a.terminal.Error
	}
	return r
}

func isObject(s string) bool {
	var m map[string]any
	return json.Unmarshal([]byte(s), &m) == nil
}

// mergeDetails joins reasoning detail payloads. A single payload is kept
// as sent; several are spliced into one array without re-encoding their
// elements.
func mergeDetails(parts []json.RawMessage) json.RawMessage {
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	var elems []json.RawMessage
	for _, p := range parts {
		var arr []json.RawMessage
		if bytes.HasPrefix(bytes.TrimSpace(p), []byte("[")) && json.Unmarshal(p, &arr) == nil {
			elems = append(elems, arr...)
			continue
		}
		elems = append(elems, p)
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// Pipe drains in into an accumulator and forwards every accepted delta to
// out, which may be nil. Exactly one terminal delta reaches out and it is
// the last one: anything after it is dropped, and a stream that closes
// early gets a synthetic error delta.
func Pipe(ctx context.Context, in <-chan domain.StreamDelta, out chan<- domain.StreamDelta) (Result, error) {
	acc := NewAccumulator()
	forward := func(d domain.StreamDelta) error {
		if out == nil {
			return nil
		}
		select {
		case out <- d:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return acc.Result(), ctx.Err()
		case d, ok := <-in:
			if !ok {
				if acc.Finished() {
					return acc.Result(), nil
				}
				end := domain.StreamDelta{Type: domain.DeltaError, Error: ErrNoTerminal.Error()}
				_ = acc.Add(end)
				if err := forward(end); err != nil {
					return acc.Result(), err
				}
				return acc.Result(), nil
			}
			if err := acc.Add(d); err != nil {
				log.Warn("delta_dropped", map[string]any{"type": string(d.Type)}, err)
				continue
			}
			if err := forward(d); err != nil {
				return acc.Result(), err
			}
		}
	}
}
