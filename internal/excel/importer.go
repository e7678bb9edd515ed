package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/mindmentor/pkg/models"
)

// TopicUpserter stores imported topics
type TopicUpserter interface {
	Upsert(ctx context.Context, t models.Topic) error
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath            string // Path to the Excel or CSV file
	IDColumn            string // Column with the topic id
	SubjectColumn       string // Column with the subject
	NameColumn          string // Column with the topic name
	WeightColumn        string // Column with the exam weight
	PrerequisitesColumn string // Column with comma separated prerequisite ids
	SheetName           string // Name of the sheet to import, empty means the first sheet
	StartRow            int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		IDColumn:            "A",
		SubjectColumn:       "B",
		NameColumn:          "C",
		WeightColumn:        "D",
		PrerequisitesColumn: "E",
		StartRow:            2, // skip header
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

// ImportTopics reads topics from an Excel or CSV file and upserts the valid rows
func ImportTopics(ctx context.Context, config ImportConfig, repo TopicUpserter) (*ImportResult, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		rows, err = readCSV(config.FilePath)
	} else {
		rows, err = readExcel(config.FilePath, config.SheetName)
	}
	if err != nil {
		return nil, err
	}

	start := config.StartRow
	if start < 1 {
		start = 1
	}
	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		if i < start-1 || blank(row) {
			continue
		}
		result.TotalProcessed++

		topic, err := parseRow(row, config)
		if err == nil {
			err = repo.Upsert(ctx, topic)
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}
	return result, nil
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %v", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %v", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseRow turns one sheet row into a topic
func parseRow(row []string, config ImportConfig) (models.Topic, error) {
	cell := func(col string) string {
		if col == "" {
			return ""
		}
		if idx := columnToIndex(col); idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var t models.Topic
	id, err := strconv.ParseInt(cell(config.IDColumn), 10, 64)
	if err != nil || id <= 0 {
		return t, fmt.Errorf("invalid topic id %q", cell(config.IDColumn))
	}
	t.ID = id
	t.Subject = cell(config.SubjectColumn)
	t.Name = cell(config.NameColumn)
	if t.Name == "" {
		return t, fmt.Errorf("topic %d has no name", id)
	}

	weight := cell(config.WeightColumn)
	if weight == "" {
		t.ExamWeight = 1
	} else {
		w, err := strconv.ParseFloat(weight, 64)
		if err != nil || w <= 0 {
			return t, fmt.Errorf("invalid exam weight %q", weight)
		}
		t.ExamWeight = w
	}

	t.Prerequisites = make([]int64, 0)
	for _, part := range strings.FieldsFunc(cell(config.PrerequisitesColumn), func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	}) {
		p, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return t, fmt.Errorf("invalid prerequisite %q", part)
		}
		t.Prerequisites = append(t.Prerequisites, p)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
