package reportsvc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/assessment"
)

// page geometry, in mm
const (
	pageMargin   = 15
	contentWidth = 210 - 2*pageMargin
	labelWidth   = 45
	lineHeight   = 6
	dateLayout   = "2 Jan 2006"
)

var relationshipLabels = map[string]string{
	assessment.RelSelf:         "Self",
	assessment.RelManager:      "Manager",
	assessment.RelPeer:         "Peers",
	assessment.RelDirectReport: "Direct reports",
	assessment.RelOther:        "Others",
}

type renderer struct {
	appName string
}

var _ assessment.ReportRenderer = (*renderer)(nil)

func NewRenderer(conf *core.Config) assessment.ReportRenderer {
	return &renderer{appName: conf.AppName}
}

func fmtScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *score)
}

// doc wraps a gofpdf document with the report's text helpers.
type doc struct {
	*gofpdf.Fpdf
	tr func(string) string
}

func (d *doc) heading(text string) {
	d.Ln(4)
	d.SetFont("Helvetica", "B", 13)
	d.SetTextColor(33, 37, 41)
	d.CellFormat(contentWidth, 8, d.tr(text), "B", 1, "L", false, 0, "")
	d.Ln(2)
	d.SetFont("Helvetica", "", 10)
}

func (d *doc) field(label, value string) {
	d.SetFont("Helvetica", "B", 10)
	d.CellFormat(labelWidth, lineHeight, d.tr(label), "", 0, "L", false, 0, "")
	d.SetFont("Helvetica", "", 10)
	d.MultiCell(contentWidth-labelWidth, lineHeight, d.tr(value), "", "L", false)
}

// row draws a table row, one width per cell.
func (d *doc) row(cells []string, widths []float64, bold bool) {
	style := ""
	if bold {
		style = "B"
		d.SetFillColor(233, 236, 239)
	}
	d.SetFont("Helvetica", style, 9)
	for i, cell := range cells {
		align := "C"
		if i == 0 {
			align = "L"
		}
		d.CellFormat(widths[i], lineHeight, d.tr(cell), "1", 0, align, bold, 0, "")
	}
	d.Ln(-1)
}

func (r *renderer) Render(data assessment.ReportData) ([]byte, error) {
	a := data.Assessment
	pdf := gofpdf.New("P", "mm", "A4", "")
	d := &doc{Fpdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetTitle(a.Title, true)
	pdf.SetAuthor(r.appName, true)
	pdf.SetCreationDate(data.GeneratedAt)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(108, 117, 125)
		pdf.CellFormat(0, 10, d.tr(fmt.Sprintf("%s - %s - page %d", r.appName, a.Title, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	r.cover(d, data)
	if err := r.chart(d, data); err != nil {
		return nil, err
	}
	r.competencies(d, data.Stats)
	r.relationships(d, data.Stats)
	r.questions(d, data.Stats)
	r.comments(d, data.Stats)

	if err := pdf.Error(); err != nil {
		return nil, errors.Wrap(err, "rendering report")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "writing report")
	}
	return buf.Bytes(), nil
}

func (r *renderer) cover(d *doc, data assessment.ReportData) {
	a := data.Assessment
	d.SetFont("Helvetica", "B", 20)
	d.SetTextColor(13, 71, 161)
	d.MultiCell(contentWidth, 10, d.tr(a.Title), "", "L", false)
	d.SetFont("Helvetica", "", 12)
	d.SetTextColor(73, 80, 87)
	d.CellFormat(contentWidth, 8, d.tr(a.Kind+" feedback report"), "", 1, "L", false, 0, "")
	d.SetTextColor(33, 37, 41)
	d.Ln(4)

	d.field("Subject", data.SubjectName)
	if a.OpenedAt != nil {
		d.field("Opened", a.OpenedAt.Format(dateLayout))
	}
	if a.ClosedAt != nil {
		d.field("Closed", a.ClosedAt.Format(dateLayout))
	}
	d.field("Generated", data.GeneratedAt.Format(dateLayout))
	d.field("Scale", fmt.Sprintf("1 to %d", a.ScaleMax))
	d.field("Response rate", fmt.Sprintf("%d of %d raters (%.0f%%)",
		data.Stats.Submitted, data.Stats.Invited, data.Stats.ResponseRate*100))
	d.field("Self / others", fmt.Sprintf("%s / %s (gap %s)",
		fmtScore(data.Stats.Self), fmtScore(data.Stats.Others), fmtScore(data.Stats.Gap)))
	if a.Description != "" {
		d.Ln(2)
		d.MultiCell(contentWidth, 5, d.tr(a.Description), "", "L", false)
	}
}

func (r *renderer) chart(d *doc, data assessment.ReportData) error {
	comps := data.Stats.Competencies
	if len(comps) == 0 {
		return nil
	}
	d.heading("Competencies: self vs others")

	scaleMax := data.Assessment.ScaleMax
	if scaleMax < 1 {
		scaleMax = assessment.DefaultScaleMax
	}
	chart := competencyChart(comps, scaleMax)
	chartW := float64(contentWidth - labelWidth)
	scale := chartW / float64(chart.Width)
	if d.GetY()+float64(chart.Height)*scale+2*lineHeight > 297-pageMargin {
		d.AddPage()
	}
	x0, y0 := d.GetX()+labelWidth, d.GetY()

	layers := []struct {
		svg        []byte
		r, g, b    int
		lineWidth  float64
		layerLabel string
	}{
		{chart.Grid, 206, 212, 218, 0.1, "grid"},
		{chart.Self, 13, 71, 161, 0.3, "self"},
		{chart.Others, 255, 143, 0, 0.3, "others"},
	}
	for _, l := range layers {
		if l.svg == nil {
			continue
		}
		sb, err := gofpdf.SVGBasicParse(l.svg)
		if err != nil {
			return errors.Wrapf(err, "parsing %s chart layer", l.layerLabel)
		}
		d.SetDrawColor(l.r, l.g, l.b)
		d.SetLineWidth(l.lineWidth)
		d.SetXY(x0, y0)
		d.SVGBasicWrite(&sb, scale)
	}
	d.SetDrawColor(0, 0, 0)
	d.SetLineWidth(0.2)

	// competency labels next to their bars
	d.SetFont("Helvetica", "", 9)
	for i, c := range comps {
		y := y0 + float64(chartMargin+i*rowHeight)*scale
		d.SetXY(pageMargin, y)
		d.CellFormat(labelWidth-2, float64(2*barHeight+barGap)*scale, d.tr(c.Competency), "", 0, "L", false, 0, "")
	}
	// scale ticks under the axis
	axisY := y0 + float64(chart.Height)*scale
	for i := 0; i <= scaleMax; i++ {
		x := x0 + float64(i)*chartW/float64(scaleMax)
		d.SetXY(x-3, axisY)
		d.CellFormat(6, 4, fmt.Sprint(i), "", 0, "C", false, 0, "")
	}
	d.SetXY(pageMargin, axisY+5)

	// legend
	d.SetFillColor(13, 71, 161)
	d.Rect(x0, d.GetY()+1.5, 3, 3, "F")
	d.SetX(x0 + 4)
	d.CellFormat(20, lineHeight, "Self", "", 0, "L", false, 0, "")
	d.SetFillColor(255, 143, 0)
	d.Rect(d.GetX(), d.GetY()+1.5, 3, 3, "F")
	d.SetX(d.GetX() + 4)
	d.CellFormat(20, lineHeight, "Others", "", 1, "L", false, 0, "")
	return nil
}

func groupScore(groups []assessment.GroupScore, rel string) string {
	for _, g := range groups {
		if g.Relationship == rel {
			return fmt.Sprintf("%.2f", g.Mean)
		}
	}
	return "-"
}

// visibleGroups returns the relationships reported in the overall stats, in order.
func visibleGroups(stats assessment.Stats) []string {
	rels := make([]string, 0, len(stats.Groups))
	for _, g := range stats.Groups {
		rels = append(rels, g.Relationship)
	}
	return rels
}

func scoreColumns(rels []string, first float64) ([]string, []float64) {
	header := []string{"", "Self", "Others", "Gap"}
	for _, rel := range rels {
		header = append(header, relationshipLabels[rel])
	}
	rest := float64(contentWidth) - first
	widths := []float64{first}
	for range header[1:] {
		widths = append(widths, rest/float64(len(header)-1))
	}
	return header, widths
}

func (r *renderer) competencies(d *doc, stats assessment.Stats) {
	if len(stats.Competencies) == 0 {
		return
	}
	d.heading("Scores by competency")
	rels := visibleGroups(stats)
	header, widths := scoreColumns(rels, 50)
	header[0] = "Competency"
	d.row(header, widths, true)
	for _, c := range stats.Competencies {
		cells := []string{c.Competency, fmtScore(c.Self), fmtScore(c.Others), fmtScore(c.Gap)}
		for _, rel := range rels {
			cells = append(cells, groupScore(c.Groups, rel))
		}
		d.row(cells, widths, false)
	}
}

func (r *renderer) relationships(d *doc, stats assessment.Stats) {
	d.heading("Raters")
	widths := []float64{80, 50, 50}
	d.row([]string{"Relationship", "Raters", "Mean"}, widths, true)
	for _, g := range stats.Groups {
		d.row([]string{relationshipLabels[g.Relationship], fmt.Sprint(g.Raters), fmt.Sprintf("%.2f", g.Mean)}, widths, false)
	}
	d.SetFont("Helvetica", "I", 8)
	d.MultiCell(contentWidth, 4, d.tr("Small rater groups are merged or hidden to protect anonymity; their scores still count in \"Others\"."), "", "L", false)
}

func (r *renderer) questions(d *doc, stats assessment.Stats) {
	if len(stats.Questions) == 0 {
		return
	}
	d.heading("Scores by question")
	rels := visibleGroups(stats)
	header, widths := scoreColumns(rels, 80)
	header[0] = "Question"
	d.row(header, widths, true)
	for _, q := range stats.Questions {
		text := []rune(fmt.Sprintf("%d. %s", q.Position, q.Text))
		if len(text) > 60 {
			text = append(text[:57], []rune("...")...)
		}
		cells := []string{string(text), fmtScore(q.Self), fmtScore(q.Others), fmtScore(q.Gap)}
		for _, rel := range rels {
			cells = append(cells, groupScore(q.Groups, rel))
		}
		d.row(cells, widths, false)
	}
}

func (r *renderer) comments(d *doc, stats assessment.Stats) {
	var hasComments bool
	for _, q := range stats.Questions {
		if len(q.Comments) > 0 {
			hasComments = true
			break
		}
	}
	if !hasComments {
		return
	}
	d.heading("Comments")
	for _, q := range stats.Questions {
		if len(q.Comments) == 0 {
			continue
		}
		d.SetFont("Helvetica", "B", 10)
		d.MultiCell(contentWidth, lineHeight, d.tr(fmt.Sprintf("%d. %s", q.Position, q.Text)), "", "L", false)
		d.SetFont("Helvetica", "", 10)
		for _, cmt := range q.Comments {
			d.MultiCell(contentWidth, 5, d.tr("- "+strings.TrimSpace(cmt)), "", "L", false)
		}
		d.Ln(2)
	}
}
