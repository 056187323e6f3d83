package strategy

import (
	"fmt"
	"math"
)

// CongestionReliefParams configures one pass of targeted congestion relief.
// BoardScale is the staged-ramp ratio (pass k of N uses k/N).
type CongestionReliefParams struct {
	BoardScale           float64
	MaxBoardGrowthPct    float64
	ComponentShiftMm     float64
	ComponentShiftCapMm  float64
}

// TargetedCongestionRelief grows the board by a capped percentage and
// nudges every component outward from the board center by a capped amount,
// both scaled by the staged-ramp BoardScale.
func TargetedCongestionRelief(code string, p CongestionReliefParams) (string, []string) {
	width, height, hasBoard := parseBoard(code)
	components := parseComponents(code)

	capScale := 1 + p.MaxBoardGrowthPct/100
	requestedScale := 1 + (p.MaxBoardGrowthPct*p.BoardScale)/100
	effectiveScale := math.Min(requestedScale, capScale)

	shiftMagnitude := math.Min(p.ComponentShiftMm*p.BoardScale, p.ComponentShiftCapMm)

	newCode := code
	if hasBoard {
		newCode = boardRe.ReplaceAllString(newCode, formatBoardTag(width*effectiveScale, height*effectiveScale))
	}

	centerX, centerY := width/2, height/2
	adjusted := 0
	for _, c := range components {
		nc := shiftOutward(c, centerX, centerY, shiftMagnitude)
		if nc.x != c.x || nc.y != c.y {
			adjusted++
		}
		newCode = replaceComponentTag(newCode, c, nc)
	}

	actions := []string{
		fmt.Sprintf("congestion_relief:board_scale_%s", formatRatio(effectiveScale)),
		fmt.Sprintf("congestion_relief:max_move_mm_%s", formatRatio(shiftMagnitude)),
		fmt.Sprintf("congestion_relief:components_adjusted_%d", adjusted),
	}
	return newCode, actions
}

func shiftOutward(c component, centerX, centerY, magnitude float64) component {
	dx, dy := c.x-centerX, c.y-centerY
	dist := math.Hypot(dx, dy)
	if dist == 0 || magnitude == 0 {
		return c
	}
	ux, uy := dx/dist, dy/dist
	return component{
		name: c.name,
		x:    c.x + ux*magnitude,
		y:    c.y + uy*magnitude,
		rest: c.rest,
		raw:  c.raw,
	}
}

func replaceComponentTag(code string, old, updated component) string {
	return replaceFirst(code, old.raw, formatComponentTag(updated))
}

func formatRatio(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
