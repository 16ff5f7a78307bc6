package storage

import "time"

// DateKeyFormat is the canonical per-day key layout, local time.
const DateKeyFormat = "2006-01-02"

// DateKey formats t as a per-day storage key.
func DateKey(t time.Time) string {
	return t.Format(DateKeyFormat)
}

// ParseDateKey parses a per-day storage key in the local timezone.
func ParseDateKey(key string) (time.Time, error) {
	return time.ParseInLocation(DateKeyFormat, key, time.Local)
}

// DayRecord holds one calendar day of history.
type DayRecord struct {
	ActivityCount int64 `json:"activity_count"`
	UsageMinutes  int64 `json:"usage_minutes"`
}

// IsZero reports whether the record carries no data.
func (r DayRecord) IsZero() bool {
	return r.ActivityCount == 0 && r.UsageMinutes == 0
}

// DayEntry pairs a date key with its record during scans.
type DayEntry struct {
	Date   string    `json:"date"`
	Record DayRecord `json:"record"`
}

// Totals is the derived snapshot cached alongside the daily history. It is
// always replaced wholesale by a recompute, never incremented in place.
type Totals struct {
	AllTimeActivity int64 `json:"all_time_activity"`
	AllTimeUsage    int64 `json:"all_time_usage"`
	YearActivity    int64 `json:"year_activity"`
	YearUsage       int64 `json:"year_usage"`
	MonthActivity   int64 `json:"month_activity"`
	MonthUsage      int64 `json:"month_usage"`
}
