// Package export renders submitted responses as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"live-response-service/internal/domain"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	SheetName  = "응답"
	timeLayout = "2006-01-02 15:04:05"
	bom        = "\uFEFF"
)

// File is a rendered export ready to be served or written.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Headers returns the column titles for the question type.
func Headers(q domain.Question) []string {
	if q.Type == domain.QuestionTypePoll {
		return []string{"번호", "닉네임", "선택 항목", "제출 시간"}
	}
	return []string{"번호", "닉네임", "텍스트 답변", "그림 여부", "제출 시간"}
}

// Rows converts responses to table rows. In-progress responses are skipped.
func Rows(q domain.Question, responses []domain.Response, loc *time.Location) [][]string {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([][]string, 0, len(responses))
	for _, r := range responses {
		if r.IsInProgress {
			continue
		}
		submitted := ""
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.In(loc).Format(timeLayout)
		}
		if q.Type == domain.QuestionTypePoll {
			rows = append(rows, []string{r.StudentNumber, r.Nickname, strings.Join(r.PollAnswer, ", "), submitted})
			continue
		}
		drawing := "X"
		if r.DrawingData != "" {
			drawing = "O"
		}
		rows = append(rows, []string{r.StudentNumber, r.Nickname, r.TextAnswer, drawing, submitted})
	}
	return rows
}

// CSV writes a BOM prefixed CSV so spreadsheet tools detect UTF-8.
func CSV(w io.Writer, q domain.Question, responses []domain.Response, loc *time.Location) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(Headers(q)); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range Rows(q, responses, loc) {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// XLSX renders the same table as CSV on a single sheet.
func XLSX(q domain.Question, responses []domain.Response, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for col, header := range Headers(q) {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			return nil, err
		}
	}
	for i, row := range Rows(q, responses, loc) {
		for col, value := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName is 응답_<first 20 runes of content>_<date>.<ext>.
func FileName(q domain.Question, ext string, now time.Time) string {
	content := strings.TrimSpace(q.Content)
	if utf8.RuneCountInString(content) > 20 {
		content = string([]rune(content)[:20])
	}
	content = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r':
			return '_'
		}
		return r
	}, content)
	return fmt.Sprintf("응답_%s_%s.%s", content, now.Format("2006-01-02"), ext)
}
