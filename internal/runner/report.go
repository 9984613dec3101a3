package runner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"autoschema/internal/association"
)

// Status is the outcome of one config file.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusWritten Status = "written"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// FileReport is the outcome of one config file
type FileReport struct {
	File   string `json:"file"`
	Config string `json:"config"`
	Schema string `json:"schema"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report summarises a run.
type Report struct {
	Files       []FileReport
	Association association.Mode
	Elapsed     time.Duration
}

// reportJSON is the --report-json rendering of a Report
type reportJSON struct {
	Files        []FileReport `json:"files"`
	Association  string       `json:"association,omitempty"`
	WrittenCount int          `json:"writtenCount"`
	PartialCount int          `json:"partialCount"`
	SkippedCount int          `json:"skippedCount"`
	ElapsedMs    int64        `json:"elapsedMs"`
}

// Count returns how many files ended with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == s {
			n++
		}
	}
	return n
}

// Partial returns the files whose schema was written as a fallback.
func (r *Report) Partial() []FileReport {
	var out []FileReport
	for _, f := range r.Files {
		if f.Status == StatusPartial {
			out = append(out, f)
		}
	}
	return out
}

// Format renders the report as human-readable text.
func (r *Report) Format() string {
	var sb strings.Builder
	for _, f := range r.Files {
		sb.WriteString(fmt.Sprintf("%-8s %s", f.Status, f.File))
		if f.Reason != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", f.Reason))
		}
		sb.WriteString("\n")
		if f.Error != "" {
			sb.WriteString(fmt.Sprintf("         error: %s\n", f.Error))
		}
	}
	sb.WriteString(fmt.Sprintf("%d written, %d partial, %d up to date",
		r.Count(StatusWritten), r.Count(StatusPartial), r.Count(StatusSkipped)))
	if r.Association != "" {
		sb.WriteString(fmt.Sprintf("; associated via %s", r.Association))
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatJSON renders the report as JSON for --report-json.
func (r *Report) FormatJSON() (string, error) {
	out := reportJSON{
		Files:        r.Files,
		Association:  string(r.Association),
		WrittenCount: r.Count(StatusWritten),
		PartialCount: r.Count(StatusPartial),
		SkippedCount: r.Count(StatusSkipped),
		ElapsedMs:    r.Elapsed.Milliseconds(),
	}
	if out.Files == nil {
		out.Files = []FileReport{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}
