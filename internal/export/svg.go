// Package export renders stored runs as standalone SVG documents.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/storage"
)

// Plane selects the two position axes drawn by PathSVG.
type Plane [2]int

var (
	PlaneXY = Plane{0, 1}
	PlaneXZ = Plane{0, 2}
	PlaneYZ = Plane{1, 2}
)

// ParsePlane accepts "xy", "xz" or "yz".
func ParsePlane(s string) (Plane, error) {
	switch s {
	case "", "xy":
		return PlaneXY, nil
	case "xz":
		return PlaneXZ, nil
	case "yz":
		return PlaneYZ, nil
	}
	return Plane{}, fmt.Errorf("%w: unknown plane %q", dynamo.ErrParameterBounds, s)
}

var phasePalette = []string{"#ff6b6b", "#4dabf7", "#ffd43b", "#b197fc", "#63e6be"}

// PathSVG draws the robot path of a stored run projected on plane, with a
// marker every tenth of the run coloured by the leading phase.
func PathSVG(w io.Writer, series *storage.Series, plane Plane, width, height int) error {
	if len(series.States) < 2 {
		return fmt.Errorf("export: need at least two samples, got %d", len(series.States))
	}
	ax, ay := plane[0], plane[1]

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, s := range series.States {
		minX, maxX = math.Min(minX, s[ax]), math.Max(maxX, s[ax])
		minY, maxY = math.Min(minY, s[ay]), math.Max(maxY, s[ay])
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	project := func(s []float64) (float64, float64) {
		x := (s[ax] - minX) / rangeX * float64(width)
		y := float64(height) - (s[ay]-minY)/rangeY*float64(height)
		return x, y
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="#00ff00" stroke-width="1.5" d="M`, width, height, width, height)

	for i, s := range series.States {
		x, y := project(s)
		if i == 0 {
			fmt.Fprintf(bw, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(bw, " L%.1f,%.1f", x, y)
		}
	}
	bw.WriteString(`"/>` + "\n")

	step := len(series.States) / 10
	if step == 0 {
		step = 1
	}
	for i := 0; i < len(series.States); i += step {
		x, y := project(series.States[i])
		colour := "#ffffff"
		if i < len(series.Phases) {
			if lead := leading(series.Phases[i]); lead >= 0 {
				colour = phasePalette[lead%len(phasePalette)]
			}
		}
		fmt.Fprintf(bw, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>`+"\n", x, y, colour)
	}
	bw.WriteString("</svg>\n")
	return bw.Flush()
}

// leading is the index of the most advanced live phase, or -1.
func leading(phases []float64) int {
	best, idx := -1.0, -1
	for i, p := range phases {
		if p > best {
			best, idx = p, i
		}
	}
	return idx
}
