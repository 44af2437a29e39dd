package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"voice-geo-go/internal/events"
)

var dateLayouts = []string{
	events.DateLayout,
	"01-02-06",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"2006-01-02 15:04:05",
	"2006/01/02",
	time.RFC3339,
}

// Load reads historical events from the first sheet of an xlsx workbook.
// Columns are found by header heuristics; rows without usable coordinates or
// date are skipped and counted.
func Load(path string) ([]events.Event, int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, 0, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	if cols.lat == -1 || cols.lon == -1 || cols.date == -1 {
		return nil, 0, fmt.Errorf("missing latitude, longitude or date column in header %v", rows[0])
	}

	var (
		out     []events.Event
		skipped int
	)
	for i, r := range rows {
		if i == 0 {
			continue
		}
		lat, errLat := strconv.ParseFloat(cell(r, cols.lat), 64)
		lon, errLon := strconv.ParseFloat(cell(r, cols.lon), 64)
		date, okDate := parseDate(cell(r, cols.date))
		if errLat != nil || errLon != nil || !okDate || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			skipped++
			continue
		}
		e := events.Event{
			Latitude:    lat,
			Longitude:   lon,
			Title:       cell(r, cols.title),
			Description: cell(r, cols.description),
			Date:        date,
		}
		if e.Title == "" {
			e.Title = fmt.Sprintf("Event %d", i)
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

type columns struct {
	lat, lon, title, description, date int
}

func detectColumns(header []string) columns {
	c := columns{-1, -1, -1, -1, -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case l == "lat" || strings.Contains(l, "latitude"):
			if c.lat == -1 {
				c.lat = i
			}
		case l == "lon" || l == "lng" || l == "long" || strings.Contains(l, "longitude"):
			if c.lon == -1 {
				c.lon = i
			}
		case strings.Contains(l, "title") || strings.Contains(l, "incident") || strings.Contains(l, "event") || l == "name":
			if c.title == -1 {
				c.title = i
			}
		case strings.Contains(l, "desc") || strings.Contains(l, "detail") || strings.Contains(l, "note"):
			if c.description == -1 {
				c.description = i
			}
		case strings.Contains(l, "date") || l == "when" || l == "day":
			if c.date == -1 {
				c.date = i
			}
		}
	}
	return c
}

func cell(r []string, idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[idx])
}

// parseDate accepts common spreadsheet renderings and raw serial numbers.
func parseDate(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(events.DateLayout), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(events.DateLayout), true
		}
	}
	return "", false
}
