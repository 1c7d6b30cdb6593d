// Package report assembles and writes the per-collection output JSON.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/54b3r/docrank/internal/collection"
	"github.com/54b3r/docrank/internal/rank"
)

// TimestampLayout is the processing_timestamp format: local time with
// microseconds and no zone offset.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// documentExt is appended to a block title to name its source document.
const documentExt = ".pdf"

// Report is the output document of one collection.
type Report struct {
	Metadata           Metadata            `json:"metadata"`
	ExtractedSections  []ExtractedSection  `json:"extracted_sections"`
	SubsectionAnalysis []SubsectionAnalysis `json:"subsection_analysis"`
}

// Metadata echoes the task descriptor and stamps the run time.
type Metadata struct {
	InputDocuments      []string `json:"input_documents"`
	Persona             string   `json:"persona"`
	JobToBeDone         string   `json:"job_to_be_done"`
	ProcessingTimestamp string   `json:"processing_timestamp"`
}

// ExtractedSection summarises one ranked block.
type ExtractedSection struct {
	Document       string `json:"document"`
	SectionTitle   string `json:"section_title"`
	ImportanceRank int    `json:"importance_rank"`
	PageNumber     int    `json:"page_number"`
}

// SubsectionAnalysis carries the full text of one ranked block.
type SubsectionAnalysis struct {
	Document    string `json:"document"`
	RefinedText string `json:"refined_text"`
	PageNumber  int    `json:"page_number"`
}

// Build assembles the report. The two section lists are index-aligned with
// ranked and never nil.
func Build(task *collection.Task, ranked []rank.Ranked, now time.Time) *Report {
	r := &Report{
		Metadata: Metadata{
			InputDocuments:      task.Filenames(),
			Persona:             task.Persona.Role,
			JobToBeDone:         task.JobToBeDone.Task,
			ProcessingTimestamp: now.Local().Format(TimestampLayout),
		},
		ExtractedSections:  make([]ExtractedSection, 0, len(ranked)),
		SubsectionAnalysis: make([]SubsectionAnalysis, 0, len(ranked)),
	}

	for _, rr := range ranked {
		doc := rr.Title + documentExt
		r.ExtractedSections = append(r.ExtractedSections, ExtractedSection{
			Document:       doc,
			SectionTitle:   rr.SectionTitle,
			ImportanceRank: rr.Rank,
			PageNumber:     rr.Page,
		})
		r.SubsectionAnalysis = append(r.SubsectionAnalysis, SubsectionAnalysis{
			Document:    doc,
			RefinedText: rr.Text,
			PageNumber:  rr.Page,
		})
	}
	return r
}

// Marshal renders r as 4-space indented JSON with non-ASCII text and HTML
// characters written verbatim.
func Marshal(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("report: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Write serializes r to path, creating the parent directory and replacing
// any existing file.
func Write(path string, r *Report) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}
