package canvas

import (
	"fmt"
	"math"
	"strings"
)

// glyph rows are 3 bits wide (MSB = leftmost column), 5 rows tall.
// The bitmap font table itself is a stand-in asset — the production
// font table is an external resource per the system's scope (see
// DESIGN.md) — but the drawing contract below (3x5 cells, 1px
// spacing, '?' fallback) is the one scenes are written against.
type glyph [5]uint8

const (
	glyphW       = 3
	glyphH       = 5
	glyphSpacing = 1
)

var glyphRows = map[rune][5]string{
	'0': {"###", "#.#", "#.#", "#.#", "###"},
	'1': {".#.", "##.", ".#.", ".#.", "###"},
	'2': {"###", "..#", "###", "#..", "###"},
	'3': {"###", "..#", "###", "..#", "###"},
	'4': {"#.#", "#.#", "###", "..#", "..#"},
	'5': {"###", "#..", "###", "..#", "###"},
	'6': {"###", "#..", "###", "#.#", "###"},
	'7': {"###", "..#", "..#", "..#", "..#"},
	'8': {"###", "#.#", "###", "#.#", "###"},
	'9': {"###", "#.#", "###", "..#", "###"},
	'-': {"...", "...", "###", "...", "..."},
	'.': {"...", "...", "...", "...", ".#."},
	':': {".#.", "...", "...", ".#.", "..."},
	' ': {"...", "...", "...", "...", "..."},
	'?': {"###", "..#", ".##", "...", ".#."},
	'A': {".#.", "#.#", "###", "#.#", "#.#"},
	'B': {"##.", "#.#", "##.", "#.#", "##."},
	'C': {"###", "#..", "#..", "#..", "###"},
	'D': {"##.", "#.#", "#.#", "#.#", "##."},
	'E': {"###", "#..", "##.", "#..", "###"},
	'F': {"###", "#..", "##.", "#..", "#.."},
	'G': {"###", "#..", "#.#", "#.#", "###"},
	'H': {"#.#", "#.#", "###", "#.#", "#.#"},
	'I': {"###", ".#.", ".#.", ".#.", "###"},
	'J': {"..#", "..#", "..#", "#.#", "###"},
	'K': {"#.#", "#.#", "##.", "#.#", "#.#"},
	'L': {"#..", "#..", "#..", "#..", "###"},
	'M': {"#.#", "###", "###", "#.#", "#.#"},
	'N': {"#.#", "##.", "#.#", "#.#", "#.#"},
	'O': {"###", "#.#", "#.#", "#.#", "###"},
	'P': {"###", "#.#", "###", "#..", "#.."},
	'Q': {"###", "#.#", "#.#", "###", "..#"},
	'R': {"###", "#.#", "##.", "#.#", "#.#"},
	'S': {"###", "#..", "###", "..#", "###"},
	'T': {"###", ".#.", ".#.", ".#.", ".#."},
	'U': {"#.#", "#.#", "#.#", "#.#", "###"},
	'V': {"#.#", "#.#", "#.#", "#.#", ".#."},
	'W': {"#.#", "#.#", "###", "###", "#.#"},
	'X': {"#.#", "#.#", ".#.", "#.#", "#.#"},
	'Y': {"#.#", "#.#", ".#.", ".#.", ".#."},
	'Z': {"###", "..#", ".#.", "#..", "###"},
}

func glyphFor(r rune) glyph {
	rows, ok := glyphRows[r]
	if !ok {
		rows = glyphRows['?']
	}
	var g glyph
	for i, row := range rows {
		var bits uint8
		for _, ch := range row {
			bits <<= 1
			if ch != '.' {
				bits |= 1
			}
		}
		g[i] = bits
	}
	return g
}

func (c *Canvas) drawGlyph(g glyph, pos Point, col Color) {
	for row := 0; row < glyphH; row++ {
		bits := g[row]
		for bit := 0; bit < glyphW; bit++ {
			if bits&(1<<(glyphW-1-bit)) != 0 {
				c.DrawPixel(pos.X+bit, pos.Y+row, col)
			}
		}
	}
}

func textWidth(s string) int {
	if s == "" {
		return 0
	}
	return len(s)*glyphW + (len(s)-1)*glyphSpacing
}

// DrawText draws s using the 3x5 bitmap font, 1px inter-char spacing,
// anchored at pos according to alignment. Unknown characters render
// as '?'. Returns the pixel width drawn (0 for an empty string).
func (c *Canvas) DrawText(s string, pos Point, col Color, align Alignment) int {
	if s == "" {
		return 0
	}
	w := textWidth(s)
	start := pos.X
	switch align {
	case AlignCenter:
		start = pos.X - w/2
	case AlignRight:
		start = pos.X - w
	}

	x := start
	for _, r := range s {
		c.drawGlyph(glyphFor(r), Point{X: x, Y: pos.Y}, col)
		x += glyphW + glyphSpacing
	}
	return w
}

// The narrow decimal mark is decimalMarkWidth wide, with configurable
// left/right padding; minusWidth is the advance of the minus sign.
const (
	decimalMarkLeftPad  = 1
	decimalMarkWidth    = 1
	decimalMarkRightPad = 1
	minusWidth          = 4
)

// kerning applied after digits that render visually "tight" on their
// right edge (4, 7, 9) so following glyphs don't look crowded.
var narrowKerning = map[byte]int{'4': 1, '7': 1, '9': 1}

// DrawNumeric formats value with adaptive decimal precision: if
// maxTotalDigits==1 or the integer part already uses maxTotalDigits
// digits or more, it renders the rounded integer; otherwise it renders
// with (maxTotalDigits - integerDigits) decimal places using a narrow
// decimal separator mark and per-digit kerning. Negative numbers
// prefix a 4px-wide minus sign.
func (c *Canvas) DrawNumeric(value float64, pos Point, col Color, align Alignment, maxTotalDigits int) int {
	negative := value < 0
	abs := math.Abs(value)

	intDigits := digitsIn(abs)
	var text string
	if maxTotalDigits <= 1 || intDigits >= maxTotalDigits {
		text = fmt.Sprintf("%d", int64(math.Round(abs)))
	} else {
		decimals := maxTotalDigits - intDigits
		text = fmt.Sprintf("%.*f", decimals, abs)
		// Rounding may push the integer part to one more digit than
		// anticipated (e.g. 9.996 -> "10.0" when intDigits was 1);
		// re-measure against the actual formatted integer part.
		if dot := strings.IndexByte(text, '.'); dot > 0 && dot > intDigits {
			decimals = maxTotalDigits - dot
			if decimals < 0 {
				decimals = 0
			}
			text = fmt.Sprintf("%.*f", decimals, abs)
		}
	}

	// A value that rounds to exactly zero at the chosen precision
	// (e.g. -0.004 at 2 decimals) collapses to a bare "0": a falsely
	// precise "0.00" carries no signal, and neither does a sign.
	if isAllZero(text) {
		text = "0"
		negative = false
	}

	w := c.measureNumeric(text, negative)
	start := pos.X
	switch align {
	case AlignCenter:
		start = pos.X - w/2
	case AlignRight:
		start = pos.X - w
	}

	x := start
	if negative {
		c.DrawLine(Point{X: x, Y: pos.Y + glyphH / 2}, Point{X: x + minusWidth - 2, Y: pos.Y + glyphH/2}, col)
		x += minusWidth
	}
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch == '.' {
			x += decimalMarkLeftPad
			c.DrawLine(Point{X: x, Y: pos.Y + glyphH - 2}, Point{X: x, Y: pos.Y + glyphH - 1}, col)
			x += decimalMarkWidth + decimalMarkRightPad
			continue
		}
		c.drawGlyph(glyphFor(rune(ch)), Point{X: x, Y: pos.Y}, col)
		x += glyphW + glyphSpacing
		if k, ok := narrowKerning[ch]; ok {
			x += k
		}
	}
	return w
}

func (c *Canvas) measureNumeric(text string, negative bool) int {
	w := 0
	if negative {
		w += minusWidth
	}
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch == '.' {
			w += decimalMarkLeftPad + decimalMarkWidth + decimalMarkRightPad
			continue
		}
		w += glyphW + glyphSpacing
		if k, ok := narrowKerning[ch]; ok {
			w += k
		}
	}
	if w > 0 {
		w -= glyphSpacing // no trailing spacing after the last glyph
	}
	return w
}

func isAllZero(text string) bool {
	for _, ch := range text {
		if ch != '0' && ch != '.' {
			return false
		}
	}
	return true
}

func digitsIn(abs float64) int {
	n := int64(abs)
	if n == 0 {
		return 1
	}
	digits := 0
	for n > 0 {
		digits++
		n /= 10
	}
	return digits
}
