package reportsvc

import (
	"bytes"
	"fmt"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/trezcool/tos/core/assessment"
)

// chart geometry, in SVG units
const (
	chartWidth  = 600
	rowHeight   = 40
	barHeight   = 12
	barGap      = 4
	hatchStep   = 2
	chartMargin = 6
)

// barChart is a horizontal bar chart split in layers: gofpdf only strokes SVG paths,
// so each layer is drawn with its own color.
type barChart struct {
	Width  int
	Height int
	Grid   []byte
	Self   []byte // nil when there is no self score
	Others []byte // nil when there is no others score
}

// hatchedBar returns the path of a bar filled with horizontal lines.
func hatchedBar(x0, y0, length, height float64) string {
	var d strings.Builder
	fmt.Fprintf(&d, "M%.1f %.1f L%.1f %.1f L%.1f %.1f L%.1f %.1f Z",
		x0, y0, x0+length, y0, x0+length, y0+height, x0, y0+height)
	for y := y0 + hatchStep; y < y0+height; y += hatchStep {
		fmt.Fprintf(&d, " M%.1f %.1f L%.1f %.1f", x0, y, x0+length, y)
	}
	return d.String()
}

func barLength(score float64, scaleMax int) float64 {
	if scaleMax <= 0 {
		return 0
	}
	if score > float64(scaleMax) {
		score = float64(scaleMax)
	}
	return score * chartWidth / float64(scaleMax)
}

func newCanvas(buf *bytes.Buffer, width, height int) *svg.SVG {
	canvas := svg.New(buf)
	canvas.Start(width, height)
	return canvas
}

// competencyChart draws self vs others scores per competency on a 0..scaleMax axis.
func competencyChart(comps []assessment.CompetencyStats, scaleMax int) barChart {
	if scaleMax < 1 {
		scaleMax = assessment.DefaultScaleMax
	}
	height := len(comps)*rowHeight + 2*chartMargin
	chart := barChart{Width: chartWidth, Height: height}

	var gridBuf bytes.Buffer
	grid := newCanvas(&gridBuf, chartWidth, height)
	for i := 0; i <= scaleMax; i++ {
		x := float64(i * chartWidth / scaleMax)
		grid.Path(fmt.Sprintf("M%.1f 0 L%.1f %d", x, x, height), "fill:none;stroke:black")
	}
	grid.Path(fmt.Sprintf("M0 %d L%d %d", height, chartWidth, height), "fill:none;stroke:black")
	grid.End()
	chart.Grid = gridBuf.Bytes()

	layer := func(score func(c assessment.CompetencyStats) *float64, offset float64) []byte {
		var buf bytes.Buffer
		canvas := newCanvas(&buf, chartWidth, height)
		var bars int
		for i, c := range comps {
			s := score(c)
			if s == nil || *s <= 0 {
				continue
			}
			y := float64(chartMargin+i*rowHeight) + offset
			canvas.Path(hatchedBar(0, y, barLength(*s, scaleMax), barHeight), "fill:none;stroke:black")
			bars++
		}
		canvas.End()
		if bars == 0 {
			return nil
		}
		return buf.Bytes()
	}
	chart.Self = layer(func(c assessment.CompetencyStats) *float64 { return c.Self }, 0)
	chart.Others = layer(func(c assessment.CompetencyStats) *float64 { return c.Others }, barHeight+barGap)
	return chart
}
