// Package guardrails applies deterministic, idempotent text rewrites to
// generated circuit source before it reaches the external validators.
package guardrails

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	netDeclRe     = regexp.MustCompile(`<net\s+name="([^"]+)"\s*/>`)
	digitStartRe  = regexp.MustCompile(`^[0-9]`)
	traceTagRe    = regexp.MustCompile(`<trace\b(?:[^>"]|"[^"]*")*/>`)
	traceFromRe   = regexp.MustCompile(`from="([^"]*)"`)
	traceToRe     = regexp.MustCompile(`to="([^"]*)"`)
	selectorPairRe = regexp.MustCompile(`^\.[A-Za-z0-9_]+\s*>\s*\.[A-Za-z0-9_]+$`)
	selectorNetRe  = regexp.MustCompile(`^net\.[A-Za-z0-9_]+$`)
	collapseWSRe   = regexp.MustCompile(`\s+`)
)

// Apply runs the three guardrail passes in order and returns the rewritten
// code plus the ordered list of actions it took, one per rewrite. Apply is
// idempotent: Apply(Apply(code)) yields no further actions.
func Apply(code string) (string, []string) {
	var actions []string

	code, renameActions := normalizeNetNames(code)
	actions = append(actions, renameActions...)

	code, dedupeActions := dedupeNetDeclarations(code)
	actions = append(actions, dedupeActions...)

	code, removeActions := removeMalformedTraces(code)
	actions = append(actions, removeActions...)

	return code, actions
}

func normalizeNetNames(code string) (string, []string) {
	var actions []string
	seen := map[string]bool{}

	for _, m := range netDeclRe.FindAllStringSubmatch(code, -1) {
		old := m[1]
		if !digitStartRe.MatchString(old) || seen[old] {
			continue
		}
		seen[old] = true
		newName := "V" + old

		code = strings.ReplaceAll(code, fmt.Sprintf(`<net name="%s"/>`, old), fmt.Sprintf(`<net name="%s"/>`, newName))
		code = strings.ReplaceAll(code, fmt.Sprintf(`<net name="%s" />`, old), fmt.Sprintf(`<net name="%s"/>`, newName))
		code = strings.ReplaceAll(code, "net."+old, "net."+newName)

		actions = append(actions, fmt.Sprintf("normalize_net_name:%s->%s", old, newName))
	}

	return code, actions
}

func dedupeNetDeclarations(code string) (string, []string) {
	var actions []string
	seenName := map[string]bool{}

	out := netDeclRe.ReplaceAllStringFunc(code, func(tag string) string {
		m := netDeclRe.FindStringSubmatch(tag)
		name := m[1]
		if seenName[name] {
			actions = append(actions, fmt.Sprintf("dedupe_net_declaration:%s", name))
			return ""
		}
		seenName[name] = true
		return tag
	})

	return out, actions
}

func removeMalformedTraces(code string) (string, []string) {
	var actions []string

	out := traceTagRe.ReplaceAllStringFunc(code, func(tag string) string {
		toMatch := traceToRe.FindStringSubmatch(tag)
		if toMatch == nil {
			actions = append(actions, fmt.Sprintf("remove_malformed_trace:%s", signature(tag)))
			return ""
		}
		fromMatch := traceFromRe.FindStringSubmatch(tag)
		from := ""
		if fromMatch != nil {
			from = fromMatch[1]
		}
		to := toMatch[1]

		if !validSelector(from) || !validSelector(to) {
			actions = append(actions, fmt.Sprintf("remove_malformed_trace:%s", signature(tag)))
			return ""
		}
		return tag
	})

	return out, actions
}

func validSelector(s string) bool {
	s = strings.TrimSpace(s)
	return selectorPairRe.MatchString(s) || selectorNetRe.MatchString(s)
}

func signature(tag string) string {
	return collapseWSRe.ReplaceAllString(strings.TrimSpace(tag), " ")
}
