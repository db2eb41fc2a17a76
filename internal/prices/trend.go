package prices

import (
	"fmt"
	"sort"
	"time"
)

// DefaultWindowDays is the trailing window used when none is configured.
const DefaultWindowDays = 7

// Aggregate computes the latest price of a group and compares it against the
// average of the observations in the trailing window [latest-windowDays, latest).
// Rows with an absent value or an unrecognized timestamp are ignored.
func Aggregate(ds Dataset, group string, windowDays int) (Trend, error) {
	trend := Trend{Group: group}

	var rows []ParsedObservation
	for i, o := range ds {
		if o.Group != group {
			continue
		}
		if err := o.Value.Validate(); err != nil {
			return trend, fmt.Errorf("group %q row %d: %w", group, i, err)
		}
		p := Parse(o)
		if !p.Valid {
			continue
		}
		rows = append(rows, p)
	}
	if len(rows) == 0 {
		return trend, nil
	}

	// Stable so that duplicates keep arrival order across runs.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Instant.After(rows[j].Instant)
	})

	latest := rows[0]
	current, _ := latest.Value.Get()
	trend.Current = &Reading{
		Value:     current,
		Timestamp: latest.TimestampRaw,
		Instant:   latest.Instant,
	}

	if windowDays <= 0 {
		return trend, nil
	}
	lower := latest.Instant.Add(-time.Duration(windowDays) * 24 * time.Hour)

	var sum float64
	for _, r := range rows[1:] {
		if !inWindow(r.Instant, lower, latest.Instant) {
			continue
		}
		v, _ := r.Value.Get()
		sum += v
		trend.WindowCount++
	}
	if trend.WindowCount == 0 {
		return trend, nil
	}

	avg := sum / float64(trend.WindowCount)
	delta := current - avg
	trend.WindowAverage = &avg
	trend.Delta = &delta
	return trend, nil
}

// inWindow reports whether t lies in [lower, upper).
func inWindow(t, lower, upper time.Time) bool {
	return !t.Before(lower) && t.Before(upper)
}

// AggregateAll runs Aggregate for every group, preserving the given order.
func AggregateAll(ds Dataset, groups []string, windowDays int) ([]Trend, error) {
	trends := make([]Trend, 0, len(groups))
	for _, g := range groups {
		t, err := Aggregate(ds, g, windowDays)
		if err != nil {
			return nil, err
		}
		trends = append(trends, t)
	}
	return trends, nil
}
