package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

const (
	ExportFilename   = "mod_log.csv"
	exportTimeLayout = "2006-01-02 15:04:05"
)

var exportHeader = []string{"ID", "Action Type", "Username", "Details", "Time", "Submission ID", "Can Approve"}

// WriteCSV writes records in the column layout moderators already import into
// spreadsheets. Times are rendered in loc.
func WriteCSV(w io.Writer, records []Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.ActionType,
			rec.Identity,
			rec.Details,
			rec.Timestamp.In(loc).Format(exportTimeLayout),
			rec.SubmissionID,
			titleBool(rec.Reversible),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", rec.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// titleBool keeps the True/False spelling of earlier exports.
func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
