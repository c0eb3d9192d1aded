package recommend

import (
	"sort"

	"github.com/vexmx/avotex/internal/models"
)

// NoDisease is reported as the most frequent disease of a healthy history.
const NoDisease = "N/A"

// DayCount holds per-label counts for one calendar day (UTC).
type DayCount struct {
	Date   string         `json:"date"` // YYYY-MM-DD
	Counts map[string]int `json:"counts"`
}

// Summary is the overview shown above the scan history.
type Summary struct {
	Total               int          `json:"total_scans"`
	HealthyPercentage   float64      `json:"healthy_percentage"`
	MostFrequentDisease string       `json:"most_frequent_disease"`
	Counts              []LabelCount `json:"counts"`
	Daily               []DayCount   `json:"daily"`
}

// Summarize computes totals, label counts and the daily trend.
func Summarize(records []models.ScanRecord) Summary {
	s := Summary{MostFrequentDisease: NoDisease, Counts: []LabelCount{}, Daily: []DayCount{}}
	if len(records) == 0 {
		return s
	}

	counts := make(map[string]int)
	days := make(map[string]map[string]int)
	healthy := 0
	for _, r := range records {
		counts[r.Label]++
		if r.Healthy() {
			healthy++
		}
		day := r.CreatedAt.UTC().Format("2006-01-02")
		if days[day] == nil {
			days[day] = make(map[string]int)
		}
		days[day][r.Label]++
	}

	s.Total = len(records)
	s.HealthyPercentage = float64(healthy) / float64(s.Total) * 100
	s.Counts = sortCounts(counts)
	if label, ok := MostFrequentDisease(records); ok {
		s.MostFrequentDisease = label
	}

	for day, c := range days {
		s.Daily = append(s.Daily, DayCount{Date: day, Counts: c})
	}
	sort.Slice(s.Daily, func(i, j int) bool { return s.Daily[i].Date < s.Daily[j].Date })
	return s
}
