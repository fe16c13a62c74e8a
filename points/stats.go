/*
stats.go - Category aggregation over the event log

PURPOSE:
  Derives the dashboard breakdown from the raw event log: per-reason
  category totals, and per-reason-per-day totals for the history chart.
  Pure functions over fetched data; no store access.

AGGREGATION RULES:
  - Events with an empty reason are grouped under "General"
  - Dated categories bucket by the event's effective date (not the time
    it was recorded), truncated to the day in UTC

SEE ALSO:
  - types.go: Category, DatedCategory, TotalWithStats
*/
package points

import (
	"sort"
	"time"
)

// GeneralCategory is the bucket for events without an explicit reason.
const GeneralCategory = "General"

// BuildStats joins the running totals with a category breakdown computed
// from the event log.
func BuildStats(totals []Total, events []Event) []TotalWithStats {
	result := make([]TotalWithStats, 0, len(totals))
	for _, total := range totals {
		result = append(result, TotalWithStats{
			Total:           total,
			Categories:      categorize(events, total.House),
			DatedCategories: categorizeByDay(events, total.House),
		})
	}
	return result
}

func reasonOf(ev Event) string {
	if ev.Reason == "" {
		return GeneralCategory
	}
	return ev.Reason
}

func categorize(events []Event, house House) []Category {
	sums := make(map[string]Category)
	var order []string
	for _, ev := range events {
		if ev.House != house {
			continue
		}
		name := reasonOf(ev)
		c, ok := sums[name]
		if !ok {
			c = Category{Name: name}
			order = append(order, name)
		}
		c.Amount = c.Amount.Add(ev.Delta)
		sums[name] = c
	}

	result := make([]Category, 0, len(order))
	for _, name := range order {
		result = append(result, sums[name])
	}
	return result
}

func categorizeByDay(events []Event, house House) []DatedCategory {
	type bucket struct {
		name string
		day  time.Time
	}
	sums := make(map[bucket]DatedCategory)
	for _, ev := range events {
		if ev.House != house {
			continue
		}
		b := bucket{name: reasonOf(ev), day: ev.EffectiveAt.UTC().Truncate(24 * time.Hour)}
		c, ok := sums[b]
		if !ok {
			c = DatedCategory{Name: b.name, Date: b.day}
		}
		c.Amount = c.Amount.Add(ev.Delta)
		sums[b] = c
	}

	result := make([]DatedCategory, 0, len(sums))
	for _, c := range sums {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Name < result[j].Name
	})
	return result
}
