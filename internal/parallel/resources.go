package parallel

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"inferd/pkg/types"
)

// Tool-name substrings used when no operator override exists. Mutating hints
// are checked before read hints so an ambiguous name lands on the
// conservative side.
var (
	deleteHints = []string{"delete", "remove"}
	writeHints  = []string{"write", "create", "update"}
	readHints   = []string{"read", "list", "get"}

	fsHints  = []string{"file", "path", "directory", "dir"}
	netHints = []string{"http", "api", "fetch", "request", "url", "web"}
	dbHints  = []string{"database", "db", "sql", "query"}
)

var (
	reURL = regexp.MustCompile(`https?://[^\s"'<>]+`)
	// A path-like value: contains a separator, or is a bare filename with an
	// extension ("a.txt").
	rePathish = regexp.MustCompile(`^(~?/|\.{1,2}/)?[\w.-]+(/[\w.-]+)*$`)
	reExt     = regexp.MustCompile(`^[\w-]+\.[A-Za-z0-9]{1,8}$`)
)

// accessKindForName infers how a tool touches its resources from its name.
func accessKindForName(name string) types.AccessKind {
	lower := strings.ToLower(name)
	for _, h := range deleteHints {
		if strings.Contains(lower, h) {
			return types.AccessDelete
		}
	}
	for _, h := range writeHints {
		if strings.Contains(lower, h) {
			return types.AccessWrite
		}
	}
	for _, h := range readHints {
		if strings.Contains(lower, h) {
			return types.AccessRead
		}
	}
	return types.AccessReadWrite
}

// inferAccesses derives a call's resource-access list from its name and the
// string values inside its arguments. Specific resources found in the
// arguments (paths, URLs) win; otherwise the call is charged against a
// coarse shared resource for its inferred kind.
func inferAccesses(c types.ToolCall) []types.ResourceAccess {
	access := accessKindForName(c.Name)
	lower := strings.ToLower(c.Name)

	var out []types.ResourceAccess
	for _, s := range stringValues(c.Arguments) {
		if u := reURL.FindString(s); u != "" {
			out = append(out, types.ResourceAccess{
				Resource: types.Resource{Kind: types.ResourceNetwork, ID: u},
				Access:   access,
			})
			continue
		}
		if looksLikePath(s) {
			out = append(out, types.ResourceAccess{
				Resource: types.Resource{Kind: types.ResourceFile, ID: s},
				Access:   access,
			})
		}
	}
	if len(out) > 0 {
		return out
	}

	// No identifiable resource in the arguments: group by the coarse kind
	// the tool name implies.
	kind := types.ResourceMemory
	id := "shared"
	switch {
	case containsAny(lower, fsHints):
		kind = types.ResourceFileSystem
	case containsAny(lower, netHints):
		kind = types.ResourceNetwork
	case containsAny(lower, dbHints):
		kind = types.ResourceDatabase
	}
	// Read-only tools with no identified resource cannot conflict through
	// the shared key; mutating ones are charged against it conservatively.
	if !access.Mutating() {
		return nil
	}
	return []types.ResourceAccess{{
		Resource: types.Resource{Kind: kind, ID: id},
		Access:   access,
	}}
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// looksLikePath reports whether a string value identifies a filesystem path.
// Reference placeholders and free text are excluded.
func looksLikePath(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n${}") {
		return false
	}
	if strings.Contains(s, "/") || strings.Contains(s, `\`) {
		return rePathish.MatchString(strings.ReplaceAll(s, `\`, "/"))
	}
	return reExt.MatchString(s)
}

// stringValues collects every string leaf in the arguments JSON, object keys
// visited in sorted order for determinism.
func stringValues(args json.RawMessage) []string {
	if len(args) == 0 {
		return nil
	}
	var root any
	if err := json.Unmarshal(args, &root); err != nil {
		return []string{string(args)}
	}
	return walkStrings(root, nil)
}

func walkStrings(v any, acc []string) []string {
	switch t := v.(type) {
	case string:
		acc = append(acc, t)
	case []any:
		for _, e := range t {
			acc = walkStrings(e, acc)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			acc = walkStrings(t[k], acc)
		}
	}
	return acc
}
