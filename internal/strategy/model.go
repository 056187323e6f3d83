// Package strategy implements the three deterministic structural code
// mutations used to escalate a stuck repair: trace rebuild, congestion
// relief, and layout spread. All transforms are pure.
package strategy

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	connectRe   = regexp.MustCompile(`<connect\s+pin="([^"]+)"\s+net="net\.([A-Za-z0-9_]+)"\s*/>`)
	traceTagRe  = regexp.MustCompile(`<trace\b(?:[^>"]|"[^"]*")*/>\s*`)
	boardRe     = regexp.MustCompile(`<board\s+width="([0-9.]+)"\s+height="([0-9.]+)"\s*/>`)
	componentRe = regexp.MustCompile(`<component\s+name="([^"]+)"\s+pcbX="(-?[0-9.]+)"\s+pcbY="(-?[0-9.]+)"([^/]*)/>`)
)

// component is one placed part on the board.
type component struct {
	name string
	x, y float64
	rest string // any other attributes on the tag, preserved verbatim
	raw  string // the exact original tag text, for exact-match replacement
}

// connectivityModel is the lightweight picture the trace rebuild strategy
// works from: which pin selectors intend to join which named net.
type connectivityModel struct {
	netEndpoints map[string][]string // net name -> ordered pin selectors
	netOrder     []string
}

func parseConnectivity(code string) connectivityModel {
	model := connectivityModel{netEndpoints: map[string][]string{}}
	for _, m := range connectRe.FindAllStringSubmatch(code, -1) {
		pin, net := m[1], m[2]
		if _, ok := model.netEndpoints[net]; !ok {
			model.netOrder = append(model.netOrder, net)
		}
		model.netEndpoints[net] = append(model.netEndpoints[net], pin)
	}
	return model
}

func parseBoard(code string) (width, height float64, ok bool) {
	m := boardRe.FindStringSubmatch(code)
	if m == nil {
		return 0, 0, false
	}
	w, _ := strconv.ParseFloat(m[1], 64)
	h, _ := strconv.ParseFloat(m[2], 64)
	return w, h, true
}

func parseComponents(code string) []component {
	var out []component
	for _, m := range componentRe.FindAllStringSubmatch(code, -1) {
		x, _ := strconv.ParseFloat(m[2], 64)
		y, _ := strconv.ParseFloat(m[3], 64)
		out = append(out, component{name: m[1], x: x, y: y, rest: m[4], raw: m[0]})
	}
	return out
}

func formatBoardTag(width, height float64) string {
	return fmt.Sprintf(`<board width="%s" height="%s"/>`, formatNum(width), formatNum(height))
}

func formatComponentTag(c component) string {
	return fmt.Sprintf(`<component name="%s" pcbX="%s" pcbY="%s"%s/>`, c.name, formatNum(c.x), formatNum(c.y), c.rest)
}

func formatNum(v float64) string {
	rounded := roundToInt(v)
	return strconv.Itoa(rounded)
}
