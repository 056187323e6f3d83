package strategy

import "fmt"

const (
	layoutSpreadBoardFactor     = 1.2
	layoutSpreadComponentFactor = 1.2
)

// StructuralLayoutSpread is the fixed, non-parameterized escalation beyond
// targeted congestion relief: the board grows by 1.2x and every component
// moves 1.2x farther from the board center.
func StructuralLayoutSpread(code string) (string, []string) {
	width, height, hasBoard := parseBoard(code)
	components := parseComponents(code)

	newCode := code
	if hasBoard {
		newCode = boardRe.ReplaceAllString(newCode, formatBoardTag(width*layoutSpreadBoardFactor, height*layoutSpreadBoardFactor))
	}

	centerX, centerY := width/2, height/2
	for _, c := range components {
		nc := component{
			name: c.name,
			x:    centerX + (c.x-centerX)*layoutSpreadComponentFactor,
			y:    centerY + (c.y-centerY)*layoutSpreadComponentFactor,
			rest: c.rest,
			raw:  c.raw,
		}
		newCode = replaceComponentTag(newCode, c, nc)
	}

	return newCode, []string{fmt.Sprintf("layout_spread:board_scale_%s", formatRatio(layoutSpreadBoardFactor))}
}
