// Package editengine parses and applies the surgical-edit command grammar:
// short, targeted natural-language instructions the orchestrator can act on
// directly instead of routing a whole attempt through the generation model.
package editengine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind tags which surgical-edit form an instruction parsed as.
type Kind string

const (
	KindSetValue    Kind = "set_value"
	KindAddNear     Kind = "add_near"
	KindConnect     Kind = "connect"
	KindRouteWire   Kind = "route_wire"
	KindRemove      Kind = "remove"
)

// Edit is one parsed surgical instruction.
type Edit struct {
	Kind Kind

	Reference     string // set_value, remove
	Value         string // set_value
	ComponentSpec string // add_near
	NearReference string // add_near
	FromRef       string // connect
	ToRef         string // connect
	FromX, FromY  float64 // route_wire
	ToX, ToY      float64 // route_wire
}

var referenceRe = regexp.MustCompile(`^[A-Z]{1,3}\d+[A-Z]?$`)

var (
	setValueRe = regexp.MustCompile(`(?i)^(?:change|set|modify|update|adjust)\s+(\S+)\s+.*?(?:to|=)\s+(\S+)\s*$`)
	addNearRe  = regexp.MustCompile(`(?i)^(?:add|insert|place|put)\s+(.+?)\s+near\s+(\S+)\s*$`)
	connectRe  = regexp.MustCompile(`(?i)^(?:connect|wire)\s+(\S+)\s+(?:to|and|with)\s+(\S+)\s*$`)
	routeWireRe = regexp.MustCompile(`(?i)^(?:add|draw|route)\s+wire\s+(?:from\s+)?([\d.]+)\s*,\s*([\d.]+)\s+(?:to|and)\s+([\d.]+)\s*,\s*([\d.]+)\s*$`)
	removeRe   = regexp.MustCompile(`(?i)^(?:remove|delete)\s+(\S+)\s*$`)
)

// ErrNotSurgical signals the instruction doesn't match any surgical-edit
// form and must fall through to a full generation attempt.
var ErrNotSurgical = fmt.Errorf("editengine: instruction is not a surgical edit")

// Parse attempts to match instruction against the surgical-edit grammar, in
// the order given in the command table: set-value, add-near, connect,
// route-wire, remove. The first match wins.
func Parse(instruction string) (Edit, error) {
	in := strings.TrimSpace(instruction)

	if m := setValueRe.FindStringSubmatch(in); m != nil {
		ref := stripReference(m[1])
		if !referenceRe.MatchString(ref) {
			return Edit{}, ErrNotSurgical
		}
		return Edit{Kind: KindSetValue, Reference: ref, Value: m[2]}, nil
	}

	if m := addNearRe.FindStringSubmatch(in); m != nil {
		near := stripReference(m[2])
		if !referenceRe.MatchString(near) {
			return Edit{}, ErrNotSurgical
		}
		return Edit{Kind: KindAddNear, ComponentSpec: strings.TrimSpace(m[1]), NearReference: near}, nil
	}

	if m := connectRe.FindStringSubmatch(in); m != nil {
		from, to := stripReference(m[1]), stripReference(m[2])
		if !referenceRe.MatchString(from) || !referenceRe.MatchString(to) {
			return Edit{}, ErrNotSurgical
		}
		return Edit{Kind: KindConnect, FromRef: from, ToRef: to}, nil
	}

	if m := routeWireRe.FindStringSubmatch(in); m != nil {
		fx, err1 := strconv.ParseFloat(m[1], 64)
		fy, err2 := strconv.ParseFloat(m[2], 64)
		tx, err3 := strconv.ParseFloat(m[3], 64)
		ty, err4 := strconv.ParseFloat(m[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return Edit{}, ErrNotSurgical
		}
		return Edit{Kind: KindRouteWire, FromX: fx, FromY: fy, ToX: tx, ToY: ty}, nil
	}

	if m := removeRe.FindStringSubmatch(in); m != nil {
		ref := stripReference(m[1])
		if !referenceRe.MatchString(ref) {
			return Edit{}, ErrNotSurgical
		}
		return Edit{Kind: KindRemove, Reference: ref}, nil
	}

	return Edit{}, ErrNotSurgical
}

// stripReference trims common trailing punctuation a user's instruction may
// carry (periods, colons, possessive "'s" pin references trimmed elsewhere).
func stripReference(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".:,")
}
