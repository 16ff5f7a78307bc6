package redis

import (
	"fmt"
	"strconv"

	"github.com/attison/penance/internal/storage"
)

// parseTotals converts a Redis hash to a Totals snapshot
func parseTotals(data map[string]string) (*storage.Totals, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	totals := &storage.Totals{}
	fields := []struct {
		name string
		dst  *int64
	}{
		{"all_time_activity", &totals.AllTimeActivity},
		{"all_time_usage", &totals.AllTimeUsage},
		{"year_activity", &totals.YearActivity},
		{"year_usage", &totals.YearUsage},
		{"month_activity", &totals.MonthActivity},
		{"month_usage", &totals.MonthUsage},
	}

	for _, field := range fields {
		raw, ok := data[field.name]
		if !ok {
			continue
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", field.name, err)
		}
		*field.dst = value
	}

	return totals, nil
}
