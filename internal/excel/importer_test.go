package excel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/example/mindmentor/pkg/models"
)

type recordingRepo struct {
	topics []models.Topic
}

func (r *recordingRepo) Upsert(ctx context.Context, t models.Topic) error {
	if t.ID == 99 {
		return fmt.Errorf("%w: rejected", models.ErrValidation)
	}
	r.topics = append(r.topics, t)
	return nil
}

func TestImportTopicsFromExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.xlsx")
	f := excelize.NewFile()
	rows := [][]any{
		{"id", "subject", "name", "weight", "prerequisites"},
		{1, "Physics", "Kinematics", 2.5, ""},
		{2, "Physics", "Dynamics", "", "1"},
		{"x", "Physics", "Broken", 1, ""},
		{3, "Physics", "Work and Energy", 1.5, "1, 2"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	cfg := DefaultImportConfig()
	cfg.FilePath = path
	repo := &recordingRepo{}
	res, err := ImportTopics(context.Background(), cfg, repo)
	if err != nil {
		t.Fatalf("ImportTopics: %v", err)
	}
	if res.TotalProcessed != 4 || res.Imported != 3 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Row 4:") {
		t.Errorf("errors = %v", res.Errors)
	}
	if repo.topics[0].ExamWeight != 2.5 || repo.topics[1].ExamWeight != 1 {
		t.Errorf("weights = %v, %v", repo.topics[0].ExamWeight, repo.topics[1].ExamWeight)
	}
	if !reflect.DeepEqual(repo.topics[2].Prerequisites, []int64{1, 2}) {
		t.Errorf("prerequisites = %v", repo.topics[2].Prerequisites)
	}
}

func TestImportTopicsFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.csv")
	data := "id,subject,name,weight,prerequisites\n" +
		"10,Chemistry,Moles,1,\n" +
		"\n" +
		"11,Chemistry,Stoichiometry,-2,10\n" +
		"99,Chemistry,Rejected,1,\n" +
		"12,Chemistry,Equilibrium,3,\"10,11\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultImportConfig()
	cfg.FilePath = path
	repo := &recordingRepo{}
	res, err := ImportTopics(context.Background(), cfg, repo)
	if err != nil {
		t.Fatalf("ImportTopics: %v", err)
	}
	if res.TotalProcessed != 4 || res.Imported != 2 || res.Skipped != 2 {
		t.Fatalf("result = %+v", res)
	}
	if repo.topics[1].Name != "Equilibrium" || len(repo.topics[1].Prerequisites) != 2 {
		t.Errorf("topic = %+v", repo.topics[1])
	}
}

func TestImportTopicsMissingFile(t *testing.T) {
	cfg := DefaultImportConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "nope.xlsx")
	if _, err := ImportTopics(context.Background(), cfg, &recordingRepo{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestColumnToIndex(t *testing.T) {
	cases := map[string]int{"A": 0, "e": 4, "Z": 25, "AA": 26}
	for col, want := range cases {
		if got := columnToIndex(col); got != want {
			t.Errorf("columnToIndex(%q) = %d, want %d", col, got, want)
		}
	}
}
