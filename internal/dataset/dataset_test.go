package dataset

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"voice-geo-go/internal/events"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cellName, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "events.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestLoadDetectsColumns(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Incident", "Details", "Date", "Latitude", "Longitude"},
		{"Robbery", "Main St", "2023-09-01", "45.52", "-122.67"},
		{"Fire", "", "9/2/2023", "41.88", "-87.62"},
		{"Bad", "no coords", "2023-09-03", "", ""},
		{"", "untitled", "2023-09-04", "25.77", "-80.19"},
		{"Worse", "out of range", "2023-09-05", "123", "0"},
	})
	got, skipped, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(got) != 3 {
		t.Fatalf("events = %+v", got)
	}
	want := events.Event{Title: "Robbery", Description: "Main St", Date: "2023-09-01", Latitude: 45.52, Longitude: -122.67}
	if got[0] != want {
		t.Errorf("first = %+v, want %+v", got[0], want)
	}
	if got[1].Date != "2023-09-02" {
		t.Errorf("US date parsed as %q", got[1].Date)
	}
	if got[2].Title != "Event 4" {
		t.Errorf("untitled row got %q", got[2].Title)
	}
}

func TestLoadRequiresCoordinates(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"title", "date"},
		{"x", "2023-09-01"},
	})
	if _, _, err := Load(path); err == nil {
		t.Fatal("expected error for missing coordinate columns")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2023-09-01", "2023-09-01", true},
		{"09-01-23", "2023-09-01", true},
		{"45170", "2023-09-01", true},
		{"yesterday", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parseDate(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseDate(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]events.Event{
		{Title: "Fire", Date: "2023-09-02"},
		{Title: "Robbery", Date: "2023-09-01"},
		{Title: "Fire", Date: "2023-09-03"},
	}, 1)
	if s.Total != 3 || s.Skipped != 1 || s.FirstDate != "2023-09-01" || s.LastDate != "2023-09-03" {
		t.Errorf("summary = %+v", s)
	}
	if len(s.TopTitles) != 2 || s.TopTitles[0] != "Fire" {
		t.Errorf("top titles = %v", s.TopTitles)
	}
}
