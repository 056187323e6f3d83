package editengine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	componentTagRe = regexp.MustCompile(`<component\s+name="([^"]+)"\s+pcbX="(-?[0-9.]+)"\s+pcbY="(-?[0-9.]+)"([^/]*)/>`)
	valueAttrRe    = regexp.MustCompile(`\bvalue="[^"]*"`)
)

// ErrReferenceNotFound is returned when a surgical edit names a reference
// that doesn't exist in the source.
type ErrReferenceNotFound struct{ Reference string }

func (e ErrReferenceNotFound) Error() string {
	return fmt.Sprintf("editengine: reference %q not found", e.Reference)
}

// Apply applies one parsed Edit to code and returns the new source (the
// input string is left unchanged) plus a short human-readable description of what changed, matching
// the repair package's applied-actions wire format.
func Apply(code string, e Edit) (string, string, error) {
	switch e.Kind {
	case KindSetValue:
		return applySetValue(code, e)
	case KindAddNear:
		return applyAddNear(code, e)
	case KindConnect:
		return applyConnect(code, e)
	case KindRouteWire:
		return applyRouteWire(code, e)
	case KindRemove:
		return applyRemove(code, e)
	default:
		return code, "", fmt.Errorf("editengine: unknown edit kind %q", e.Kind)
	}
}

func findComponentTag(code, ref string) (tag string, ok bool) {
	for _, m := range componentTagRe.FindAllString(code, -1) {
		sub := componentTagRe.FindStringSubmatch(m)
		if sub[1] == ref {
			return m, true
		}
	}
	return "", false
}

func applySetValue(code string, e Edit) (string, string, error) {
	tag, ok := findComponentTag(code, e.Reference)
	if !ok {
		return code, "", ErrReferenceNotFound{Reference: e.Reference}
	}

	newValueAttr := fmt.Sprintf(`value="%s"`, e.Value)
	var newTag string
	if valueAttrRe.MatchString(tag) {
		newTag = valueAttrRe.ReplaceAllString(tag, newValueAttr)
	} else {
		newTag = strings.Replace(tag, "/>", " "+newValueAttr+"/>", 1)
	}

	return strings.Replace(code, tag, newTag, 1),
		fmt.Sprintf("set_value:%s=%s", e.Reference, e.Value), nil
}

func applyAddNear(code string, e Edit) (string, string, error) {
	tag, ok := findComponentTag(code, e.NearReference)
	if !ok {
		return code, "", ErrReferenceNotFound{Reference: e.NearReference}
	}
	m := componentTagRe.FindStringSubmatch(tag)
	x, _ := strconv.ParseFloat(m[2], 64)
	y, _ := strconv.ParseFloat(m[3], 64)

	ref := syntheticReference(e.ComponentSpec, code)
	newTag := fmt.Sprintf(`<component name="%s" pcbX="%d" pcbY="%d"/>`, ref, int(x)+5, int(y)+5)

	return strings.Replace(code, tag, tag+"\n  "+newTag, 1),
		fmt.Sprintf("add_near:%s near %s", ref, e.NearReference), nil
}

func applyConnect(code string, e Edit) (string, string, error) {
	if _, ok := findComponentTag(code, e.FromRef); !ok {
		return code, "", ErrReferenceNotFound{Reference: e.FromRef}
	}
	if _, ok := findComponentTag(code, e.ToRef); !ok {
		return code, "", ErrReferenceNotFound{Reference: e.ToRef}
	}

	netName := fmt.Sprintf("%s_%s", e.FromRef, e.ToRef)
	connectFrom := fmt.Sprintf(`<connect pin="%s.1" net="net.%s"/>`, e.FromRef, netName)
	connectTo := fmt.Sprintf(`<connect pin="%s.1" net="net.%s"/>`, e.ToRef, netName)

	return code + "\n" + connectFrom + "\n" + connectTo,
		fmt.Sprintf("connect:%s<->%s", e.FromRef, e.ToRef), nil
}

func applyRouteWire(code string, e Edit) (string, string, error) {
	trace := fmt.Sprintf(`<trace from="xy.%s,%s" to="xy.%s,%s"/>`,
		formatCoord(e.FromX), formatCoord(e.FromY), formatCoord(e.ToX), formatCoord(e.ToY))

	return code + "\n" + trace,
		fmt.Sprintf("route_wire:%.1f,%.1f->%.1f,%.1f", e.FromX, e.FromY, e.ToX, e.ToY), nil
}

func applyRemove(code string, e Edit) (string, string, error) {
	tag, ok := findComponentTag(code, e.Reference)
	if !ok {
		return code, "", ErrReferenceNotFound{Reference: e.Reference}
	}
	return strings.Replace(code, tag, "", 1),
		fmt.Sprintf("remove:%s", e.Reference), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// syntheticReference manufactures an unused reference designator for a
// freeform component spec like "a 10k resistor", defaulting to a generic
// "X" prefix since the spec text carries no designator of its own.
func syntheticReference(spec string, code string) string {
	n := strings.Count(code, `<component name="X`) + 1
	return fmt.Sprintf("X%d", n)
}
