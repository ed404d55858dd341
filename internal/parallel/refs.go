package parallel

import (
	"encoding/json"
	"regexp"
	"sort"
)

// Reference patterns a model uses to mention another tool's output inside an
// argument value: ${name}, @name, or the phrase "result of name".
var (
	reDollarRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)
	reAtRef     = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_-]*)`)
	reResultOf  = regexp.MustCompile("(?i)result of [`\"']?([A-Za-z_][A-Za-z0-9_-]*)[`\"']?")
)

// scanReferences walks the arguments JSON recursively and returns every
// referenced name, in a deterministic discovery order (object keys are
// visited sorted).
func scanReferences(args json.RawMessage) []string {
	if len(args) == 0 {
		return nil
	}
	var root any
	if err := json.Unmarshal(args, &root); err != nil {
		// Malformed arguments: fall back to scanning the raw text so a
		// reference is still caught rather than silently dropped.
		return scanText(string(args), nil)
	}
	return walkRefs(root, nil)
}

func walkRefs(v any, acc []string) []string {
	switch t := v.(type) {
	case string:
		acc = scanText(t, acc)
	case []any:
		for _, e := range t {
			acc = walkRefs(e, acc)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			acc = walkRefs(t[k], acc)
		}
	}
	return acc
}

func scanText(s string, acc []string) []string {
	for _, m := range reDollarRef.FindAllStringSubmatch(s, -1) {
		acc = append(acc, m[1])
	}
	for _, m := range reAtRef.FindAllStringSubmatch(s, -1) {
		acc = append(acc, m[1])
	}
	for _, m := range reResultOf.FindAllStringSubmatch(s, -1) {
		acc = append(acc, m[1])
	}
	return acc
}
