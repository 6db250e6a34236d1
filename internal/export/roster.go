package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/classtrack-portal/internal/models"
)

const rosterSheet = "Roster"

var rosterHeader = []string{"ID", "Student", "Submitted at", "Time spent (min)", "Attachment", "Grade", "Feedback"}

// RosterWorkbook renders the submissions of one assignment as xlsx.
func RosterWorkbook(a models.Assignment, subs []models.Submission) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", rosterSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(rosterSheet, "A1", &rosterHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, s := range subs {
		row := []any{
			s.ID,
			s.StudentName,
			s.SubmittedAt.UTC().Format("2006-01-02 15:04"),
			s.TimeSpentMinutes,
			attachment(s),
			gradeCell(s),
			deref(s.Feedback),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(rosterSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := ApplyDefaultFormatting(f, rosterSheet); err != nil {
		return nil, err
	}
	_ = f.SetDocProps(&excelize.DocProperties{Title: a.Name, Creator: "classtrack-portal"})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func attachment(s models.Submission) string {
	if !s.HasFile() {
		return ""
	}
	return deref(s.FileName)
}

func gradeCell(s models.Submission) any {
	if s.Grade == nil {
		return ""
	}
	return strconv.FormatFloat(*s.Grade, 'f', -1, 64)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
