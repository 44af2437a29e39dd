package dataset

import (
	"sort"

	"voice-geo-go/internal/events"
)

// Summary describes an import batch for the seeder's log line.
type Summary struct {
	Total     int            `json:"total"`
	Skipped   int            `json:"skipped"`
	FirstDate string         `json:"first_date"`
	LastDate  string         `json:"last_date"`
	ByDate    map[string]int `json:"by_date"`
	TopTitles []string       `json:"top_titles"`
}

// Summarize counts events per day and lists the three most frequent titles.
func Summarize(evs []events.Event, skipped int) Summary {
	s := Summary{Total: len(evs), Skipped: skipped, ByDate: map[string]int{}, TopTitles: []string{}}
	titles := map[string]int{}
	for _, e := range evs {
		s.ByDate[e.Date]++
		titles[e.Title]++
		if s.FirstDate == "" || e.Date < s.FirstDate {
			s.FirstDate = e.Date
		}
		if e.Date > s.LastDate {
			s.LastDate = e.Date
		}
	}

	type tc struct {
		t string
		c int
	}
	var arr []tc
	for k, v := range titles {
		arr = append(arr, tc{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].c != arr[j].c {
			return arr[i].c > arr[j].c
		}
		return arr[i].t < arr[j].t
	})
	for i := 0; i < len(arr) && i < 3; i++ {
		s.TopTitles = append(s.TopTitles, arr[i].t)
	}
	return s
}
