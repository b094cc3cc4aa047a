package assessment

import "time"

// ReportData is everything a report is rendered from.
type ReportData struct {
	Assessment  Assessment
	SubjectName string
	Stats       Stats
	GeneratedAt time.Time
}

// ReportRenderer renders assessment reports as PDF documents.
type ReportRenderer interface {
	Render(data ReportData) ([]byte, error)
}
