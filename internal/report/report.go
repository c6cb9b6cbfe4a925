// Package report summarizes archived fetch transcripts: volumes, status
// codes, block verdicts by vendor, and per-domain breakdowns.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"text/template"
	"time"

	"github.com/carsift/carsift/internal/archive"
)

// Summary contains aggregated metrics about archived upstream fetches.
type Summary struct {
	TotalFetches  int
	TotalErrors   int
	TotalBlocked  int
	StatusCodes   map[int]int
	BlocksBySrc   map[string]int
	FetchesByHost map[string]int
	TotalBytes    int64
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// GenerateSummary folds a slice of archived records into summary metrics.
func GenerateSummary(records []*archive.FetchRecord) Summary {
	s := Summary{
		StatusCodes:   make(map[int]int),
		BlocksBySrc:   make(map[string]int),
		FetchesByHost: make(map[string]int),
	}

	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt

	for _, r := range records {
		s.TotalFetches++
		if r.Error != "" {
			s.TotalErrors++
		}
		if r.Blocked {
			s.TotalBlocked++
			s.BlocksBySrc[r.BlockSrc]++
		}
		if r.StatusCode > 0 {
			s.StatusCodes[r.StatusCode]++
		}
		if u, err := url.Parse(r.URL); err == nil && u.Hostname() != "" {
			s.FetchesByHost[u.Hostname()]++
		}
		s.TotalBytes += int64(len(r.Body))

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Carsift Fetch Archive Summary
-----------------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Total Fetches: {{.TotalFetches}}
Total Bytes:   {{.TotalBytes}} bytes
Total Errors:  {{.TotalErrors}}

By Host:
{{- range $host, $count := .FetchesByHost}}
  {{$host}}: {{$count}}
{{- else}}
  None
{{- end}}

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Blocked: {{.TotalBlocked}}
{{- range $src, $count := .BlocksBySrc}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Carsift Fetch Archive Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Carsift Fetch Archive Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Total Fetches</div>
    <div class="stat-val">{{.TotalFetches}}</div>
  </div>
  <div class="stat-card">
    <div>Errors</div>
    <div class="stat-val">{{.TotalErrors}}</div>
  </div>
  <div class="stat-card">
    <div>Blocked</div>
    <div class="stat-val" style="color: {{if gt .TotalBlocked 0}}red{{else}}green{{end}};">{{.TotalBlocked}}</div>
  </div>
  <div class="stat-card">
    <div>Total Bytes</div>
    <div class="stat-val">{{.TotalBytes}}</div>
  </div>

  <h3>Fetches By Host</h3>
  <table>
    <tr><th>Host</th><th>Count</th></tr>
    {{- range $host, $count := .FetchesByHost}}
    <tr><td>{{$host}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Status Codes</h3>
  <table>
    <tr><th>Code</th><th>Count</th></tr>
    {{- range $code, $count := .StatusCodes}}
    <tr><td>{{$code}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Blocks By Vendor</h3>
  <table>
    <tr><th>Vendor</th><th>Count</th></tr>
    {{- range $src, $count := .BlocksBySrc}}
    <tr><td>{{$src}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	return nil
}
