// Package parallel decides whether the tool calls a model emits in one turn
// may execute concurrently. The decision gates real side effects in the tool
// executor, so analysis is a pure function of its inputs: identical calls and
// configuration always produce the identical decision and reason string.
package parallel

import (
	"fmt"
	"strings"

	"inferd/pkg/types"
)

// Mode is the execution mode for a turn's tool calls.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// Decision is the analyzer's verdict. Reason is set for sequential decisions.
type Decision struct {
	Mode   Mode
	Reason string
}

// Parallel returns the concurrent-execution decision.
func Parallel() Decision { return Decision{Mode: ModeParallel} }

// Sequential returns a serialized-execution decision with its reason.
func Sequential(reason string) Decision {
	return Decision{Mode: ModeSequential, Reason: reason}
}

// Analyzer classifies tool-call turns against operator policy. It never
// mutates its config or the call list, and never errors: malformed input
// degrades toward the sequential side.
type Analyzer struct {
	cfg types.ParallelConfig
}

// NewAnalyzer builds an analyzer over the given (read-only) policy.
func NewAnalyzer(cfg types.ParallelConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze applies checks cheapest and most certain first; the first match
// wins.
func (a *Analyzer) Analyze(calls []types.ToolCall) Decision {
	// 1. Nothing to parallelize.
	if len(calls) <= 1 {
		return Sequential("single tool call")
	}

	// 2. Operator-declared conflicts.
	if d, ok := a.explicitConflict(calls); ok {
		return d
	}

	// 3. Parameter data-flow between calls.
	if d, ok := dataFlowDependency(calls); ok {
		return d
	}

	// 4. Inferred or configured resource conflicts.
	if d, ok := a.resourceConflict(calls); ok {
		return d
	}

	// 5. Repeated identical calls, or repeated mutating calls to one tool,
	// are assumed order-sensitive. Read-only repeats against disjoint
	// resources passed step 4 and are allowed through.
	if duplicateSensitive(calls) {
		return Sequential("Duplicate tool names detected")
	}

	// 6. Independent by every check.
	return Parallel()
}

// explicitConflict checks the operator's tool_conflicts and never_parallel
// lists against every pair present in the turn.
func (a *Analyzer) explicitConflict(calls []types.ToolCall) (Decision, bool) {
	present := make(map[string]bool, len(calls))
	for _, c := range calls {
		present[c.Name] = true
	}
	for _, tc := range a.cfg.ToolConflicts {
		if present[tc.Tool1] && present[tc.Tool2] {
			reason := fmt.Sprintf("configured conflict between %s and %s", tc.Tool1, tc.Tool2)
			if tc.Description != "" {
				reason += ": " + tc.Description
			}
			return Sequential(reason), true
		}
	}
	for _, p := range a.cfg.NeverParallel {
		if present[p.Tool1] && present[p.Tool2] {
			return Sequential(fmt.Sprintf("%s and %s are configured to never run in parallel", p.Tool1, p.Tool2)), true
		}
	}
	return Decision{}, false
}

// dataFlowDependency scans each call's arguments for references to another
// call's tool name. References are reported in the order discovered.
func dataFlowDependency(calls []types.ToolCall) (Decision, bool) {
	names := make(map[string]bool, len(calls))
	for _, c := range calls {
		names[c.Name] = true
	}
	for _, c := range calls {
		for _, ref := range scanReferences(c.Arguments) {
			if ref == c.Name {
				continue
			}
			if names[ref] {
				return Sequential(fmt.Sprintf("%s depends on the result of %s", c.Name, ref)), true
			}
		}
	}
	return Decision{}, false
}

// resourceConflict groups calls by normalized resource key and reports the
// first key with more than one accessor where at least one access mutates
// (or demands exclusivity).
func (a *Analyzer) resourceConflict(calls []types.ToolCall) (Decision, bool) {
	type accessor struct {
		tool     string
		mutating bool
	}
	byKey := make(map[string][]accessor)
	var keyOrder []string
	for _, c := range calls {
		for _, acc := range a.accessesFor(c) {
			key := resourceKey(acc.Resource)
			if _, seen := byKey[key]; !seen {
				keyOrder = append(keyOrder, key)
			}
			byKey[key] = append(byKey[key], accessor{
				tool:     c.Name,
				mutating: acc.Access.Mutating() || acc.Exclusive,
			})
		}
	}
	for _, key := range keyOrder {
		accs := byKey[key]
		if len(accs) < 2 {
			continue
		}
		mutates := false
		tools := make([]string, 0, len(accs))
		seen := make(map[string]bool, len(accs))
		for _, acc := range accs {
			if acc.mutating {
				mutates = true
			}
			if !seen[acc.tool] {
				seen[acc.tool] = true
				tools = append(tools, acc.tool)
			}
		}
		// A single tool touching one resource twice without another party is
		// handled by the duplicate check, not here.
		if len(tools) < 2 && !mutates {
			continue
		}
		if mutates && len(accs) > 1 {
			return Sequential(fmt.Sprintf("resource conflict on %s between %s", key, strings.Join(tools, " and "))), true
		}
	}
	return Decision{}, false
}

// accessesFor resolves a call's resource accesses: the operator override for
// the exact tool name wins; otherwise accesses are inferred from the tool
// name and its serialized arguments.
func (a *Analyzer) accessesFor(c types.ToolCall) []types.ResourceAccess {
	if override, ok := a.cfg.ResourceAccessPatterns[c.Name]; ok {
		return override
	}
	return inferAccesses(c)
}

// duplicateSensitive reports whether the turn repeats a tool in a way that
// may be stateful or order-sensitive: identical name+arguments, or repeated
// mutating calls to the same tool.
func duplicateSensitive(calls []types.ToolCall) bool {
	seenExact := make(map[string]bool, len(calls))
	mutatingNames := make(map[string]int, len(calls))
	for _, c := range calls {
		exact := c.Name + "\x00" + string(c.Arguments)
		if seenExact[exact] {
			return true
		}
		seenExact[exact] = true
		if accessKindForName(c.Name).Mutating() {
			mutatingNames[c.Name]++
			if mutatingNames[c.Name] > 1 {
				return true
			}
		}
	}
	return false
}

// resourceKey normalizes a resource to its grouping key, e.g. "file:/a/b",
// "net:https://x", "mem:shared".
func resourceKey(r types.Resource) string {
	switch r.Kind {
	case types.ResourceFile, types.ResourceFileSystem:
		return "file:" + r.ID
	case types.ResourceNetwork:
		return "net:" + r.ID
	case types.ResourceDatabase:
		return "db:" + r.ID
	case types.ResourceMemory:
		return "mem:" + r.ID
	case types.ResourceSystem:
		return "sys:" + r.ID
	default:
		return "other:" + r.ID
	}
}
