package stats

import (
	"math"
	"sort"
	"time"

	"github.com/epicare/platform/pkg/common/models"
)

type monthBucket struct {
	count         int
	durationSum   float64
	durationCount int
}

// Aggregate summarizes a set of episodes. Open episodes count toward totals
// and trend counts but are excluded from every duration average. The
// this-month count is measured against now, not the selection window.
func Aggregate(episodes []models.SeizureEpisode, now time.Time) models.StatisticsSummary {
	summary := models.StatisticsSummary{
		SeizuresByType: map[string]int{},
		MonthlyTrend:   []models.MonthlyTrendEntry{},
	}
	if len(episodes) == 0 {
		return summary
	}

	now = now.UTC()
	months := make(map[string]*monthBucket)
	var durationSum float64
	var durationCount int

	for _, ep := range episodes {
		summary.TotalSeizures++
		summary.SeizuresByType[string(ep.Type)]++

		start := ep.StartTime.UTC()
		if start.Year() == now.Year() && start.Month() == now.Month() {
			summary.SeizuresThisMonth++
		}

		key := start.Format("2006-01")
		bucket := months[key]
		if bucket == nil {
			bucket = &monthBucket{}
			months[key] = bucket
		}
		bucket.count++

		if minutes, ok := ep.DurationMinutes(); ok {
			durationSum += minutes
			durationCount++
			bucket.durationSum += minutes
			bucket.durationCount++
		}
	}

	if durationCount > 0 {
		summary.AverageDurationMinutes = round2(durationSum / float64(durationCount))
	}

	keys := make([]string, 0, len(months))
	for key := range months {
		keys = append(keys, key)
	}
	// "YYYY-MM" is fixed width, so lexicographic order is chronological.
	sort.Strings(keys)

	// Only the overall average is rounded; trend averages stay exact.
	for _, key := range keys {
		bucket := months[key]
		entry := models.MonthlyTrendEntry{Month: key, Count: bucket.count}
		if bucket.durationCount > 0 {
			entry.AverageDurationMinutes = bucket.durationSum / float64(bucket.durationCount)
		}
		summary.MonthlyTrend = append(summary.MonthlyTrend, entry)
	}

	return summary
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
