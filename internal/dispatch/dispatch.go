// Package dispatch routes a tool name to the core set or to the extra
// bundle that owns it.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/tool"
)

// Dispatcher is the single entry point the plan and execution engines use
// to classify and run tools.
type Dispatcher struct {
	core   *tool.Set
	extras *extratool.Registry
	policy *tool.Policy
}

// New creates a dispatcher. extras and policy may be nil.
func New(core *tool.Set, extras *extratool.Registry, policy *tool.Policy) *Dispatcher {
	return &Dispatcher{core: core, extras: extras, policy: policy}
}

// Core returns the core tool set.
func (d *Dispatcher) Core() *tool.Set { return d.core }

// Extras returns the bundle registry.
func (d *Dispatcher) Extras() *extratool.Registry { return d.extras }

func (d *Dispatcher) owned(name string) (core bool, ok bool) {
	if d.core != nil && d.core.Has(name) {
		return true, true
	}
	if d.extras != nil {
		if _, found := d.extras.ResolveOwner(name); found {
			return false, true
		}
	}
	return false, false
}

// Known reports whether any set defines name.
func (d *Dispatcher) Known(name string) bool {
	_, ok := d.owned(name)
	return ok
}

// IsReadOnly reports whether name is in its owner's read-only set.
// Unknown tools are treated as writes.
func (d *Dispatcher) IsReadOnly(name string) bool {
	core, ok := d.owned(name)
	switch {
	case !ok:
		return false
	case core:
		return d.core.IsReadOnly(name)
	default:
		return d.extras.IsReadOnly(name)
	}
}

// AffectedChats returns the chats a call declares.
func (d *Dispatcher) AffectedChats(name string, args tool.Args) []string {
	core, ok := d.owned(name)
	switch {
	case !ok:
		return nil
	case core:
		return d.core.AffectedChats(name, args)
	default:
		return d.extras.AffectedChats(name, args)
	}
}

// Inverse derives the undo action for a completed call.
func (d *Dispatcher) Inverse(name string, args tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	core, ok := d.owned(name)
	switch {
	case !ok:
		return domain.UndoAction{}, false
	case core:
		return d.core.Inverse(name, args, result)
	default:
		return d.extras.Inverse(name, args, result)
	}
}

// IsHeavy reports whether name declares itself heavy.
func (d *Dispatcher) IsHeavy(name string) bool {
	core, ok := d.owned(name)
	switch {
	case !ok:
		return false
	case core:
		return d.core.IsHeavy(name)
	default:
		return d.extras.IsHeavy(name)
	}
}

// Names returns every known tool name, sorted.
func (d *Dispatcher) Names() []string {
	var out []string
	if d.core != nil {
		out = append(out, d.core.Names()...)
	}
	if d.extras != nil {
		out = append(out, d.extras.ToolNames()...)
	}
	sort.Strings(out)
	return out
}

// Execute runs name. Like every executor it reports failures as results.
func (d *Dispatcher) Execute(ctx context.Context, name string, args tool.Args) domain.ToolResult {
	core, ok := d.owned(name)
	if !ok {
		msg := fmt.Sprintf("Unknown tool: %s", name)
		if sugg := tool.Suggest(name, d.Names()); len(sugg) > 0 {
			msg += ". Did you mean: " + strings.Join(sugg, ", ") + "?"
		}
		return domain.Fail(domain.ErrorKindValidation, msg)
	}
	if !core {
		return d.extras.ExecuteTool(ctx, name, args)
	}
	if !d.policy.Allowed(d.core.Name(), name) {
		return domain.Failf(domain.ErrorKindPolicy, "Tool %s/%s is disabled by configuration", d.core.Name(), name)
	}
	return d.core.Execute(ctx, name, args)
}

// CoreDefinitions returns the core tools exposed in mode: all of them in
// agent and plan mode, the read-only subset in ask mode. Tools disabled by
// policy are left out.
func (d *Dispatcher) CoreDefinitions(mode domain.Mode) []domain.ToolDefinition {
	if d.core == nil {
		return nil
	}
	var out []domain.ToolDefinition
	for _, def := range d.core.Definitions() {
		if !d.policy.Allowed(d.core.Name(), def.Name) {
			continue
		}
		if mode == domain.ModeAsk && !d.core.IsReadOnly(def.Name) {
			continue
		}
		out = append(out, def)
	}
	return out
}
