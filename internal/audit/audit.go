package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ReportWriter keeps JSON snapshots of maintenance runs (availability
// checks and repairs) next to the audit trail, one file per run.
type ReportWriter struct {
	Dir string
}

func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{Dir: dir}
}

// Report is the envelope written for every run.
type Report struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Data      any       `json:"data"`
}

// Save writes data as <kind>-<uuid>.json and returns the file name.
func (w *ReportWriter) Save(kind string, data any) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	report := Report{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.json", kind, report.ID)
	path := filepath.Join(w.Dir, filename)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	log.Printf("Saved %s report: %s", kind, path)

	return filename, nil
}
