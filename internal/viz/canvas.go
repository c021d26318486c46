package viz

import (
	"strings"
)

// Braille cells hold 2x4 dots:
//
//	1 4
//	2 5
//	3 6
//	7 8
var dotBits = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Plane is a braille canvas mapped onto a rectangle of world coordinates.
type Plane struct {
	cols, rows             int
	minX, maxX, minY, maxY float64
	cells                  [][]rune
}

func NewPlane(cols, rows int, minX, maxX, minY, maxY float64) *Plane {
	p := &Plane{cols: cols, rows: rows, minX: minX, maxX: maxX, minY: minY, maxY: maxY}
	p.cells = make([][]rune, rows)
	for i := range p.cells {
		p.cells[i] = make([]rune, cols)
	}
	p.Clear()
	return p
}

func (p *Plane) Clear() {
	for _, row := range p.cells {
		for j := range row {
			row[j] = brailleBlank
		}
	}
}

// Fit widens the world rectangle so that (x, y) is visible.
func (p *Plane) Fit(x, y float64) {
	p.minX, p.maxX = min(p.minX, x), max(p.maxX, x)
	p.minY, p.maxY = min(p.minY, y), max(p.maxY, y)
}

// dot maps world coordinates to sub-cell dot coordinates; y grows upward.
func (p *Plane) dot(x, y float64) (int, int) {
	w, h := p.cols*2-1, p.rows*4-1
	spanX, spanY := p.maxX-p.minX, p.maxY-p.minY
	if spanX <= 0 {
		spanX = 1
	}
	if spanY <= 0 {
		spanY = 1
	}
	dx := int((x - p.minX) / spanX * float64(w))
	dy := h - int((y-p.minY)/spanY*float64(h))
	return dx, dy
}

func (p *Plane) set(dx, dy int) {
	if dx < 0 || dy < 0 {
		return
	}
	col, row := dx/2, dy/4
	if col >= p.cols || row >= p.rows {
		return
	}
	p.cells[row][col] |= dotBits[dy%4][dx%2]
}

func (p *Plane) Point(x, y float64) {
	p.set(p.dot(x, y))
}

// Segment draws a straight line between two world points (Bresenham).
func (p *Plane) Segment(x0, y0, x1, y1 float64) {
	ax, ay := p.dot(x0, y0)
	bx, by := p.dot(x1, y1)
	dx, dy := absInt(bx-ax), absInt(by-ay)
	sx, sy := -1, -1
	if ax < bx {
		sx = 1
	}
	if ay < by {
		sy = 1
	}
	err := dx - dy
	for {
		p.set(ax, ay)
		if ax == bx && ay == by {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			ax += sx
		}
		if e2 < dx {
			err += dx
			ay += sy
		}
	}
}

func (p *Plane) String() string {
	var b strings.Builder
	for _, row := range p.cells {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
