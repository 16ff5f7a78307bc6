package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/attison/penance/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyDays          = "penance:days"
	keyTotals        = "penance:totals"
	keyBalance       = "penance:balance"
	keyYearEpoch     = "penance:year_epoch"
	prefixDayAct     = "penance:day:activity:"
	prefixDayUsage   = "penance:day:usage:"
)

type ledgerStore struct {
	client *redis.Client
}

func (s *ledgerStore) AddActivity(ctx context.Context, date string, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("negative activity delta: %d", delta)
	}
	script := redis.NewScript(addActivityScript)
	keys := []string{prefixDayAct + date, keyDays}
	return script.Run(ctx, s.client, keys, date, delta).Err()
}

func (s *ledgerStore) SetUsageMinutes(ctx context.Context, date string, minutes int64) error {
	if minutes < 0 {
		return fmt.Errorf("negative usage minutes: %d", minutes)
	}
	script := redis.NewScript(setUsageScript)
	keys := []string{prefixDayUsage + date, keyDays}
	return script.Run(ctx, s.client, keys, date, minutes).Err()
}

func (s *ledgerStore) GetDay(ctx context.Context, date string) (storage.DayRecord, error) {
	pipe := s.client.Pipeline()
	actCmd := pipe.Get(ctx, prefixDayAct+date)
	usageCmd := pipe.Get(ctx, prefixDayUsage+date)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return storage.DayRecord{}, err
	}

	var record storage.DayRecord
	var err error
	if record.ActivityCount, err = intResult(actCmd); err != nil {
		return storage.DayRecord{}, err
	}
	if record.UsageMinutes, err = intResult(usageCmd); err != nil {
		return storage.DayRecord{}, err
	}
	return record, nil
}

func (s *ledgerStore) ScanDays(ctx context.Context) ([]storage.DayEntry, error) {
	dates, err := s.client.SMembers(ctx, keyDays).Result()
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return []storage.DayEntry{}, nil
	}

	pipe := s.client.Pipeline()
	actCmds := make([]*redis.StringCmd, len(dates))
	usageCmds := make([]*redis.StringCmd, len(dates))
	for i, date := range dates {
		actCmds[i] = pipe.Get(ctx, prefixDayAct+date)
		usageCmds[i] = pipe.Get(ctx, prefixDayUsage+date)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]storage.DayEntry, 0, len(dates))
	for i, date := range dates {
		var record storage.DayRecord
		if record.ActivityCount, err = intResult(actCmds[i]); err != nil {
			return nil, err
		}
		if record.UsageMinutes, err = intResult(usageCmds[i]); err != nil {
			return nil, err
		}
		entries = append(entries, storage.DayEntry{Date: date, Record: record})
	}
	return entries, nil
}

func (s *ledgerStore) ReplaceTotals(ctx context.Context, totals storage.Totals) error {
	// A single HSET replaces every field in one atomic command; a reader
	// never observes a half-updated snapshot.
	return s.client.HSet(ctx, keyTotals,
		"all_time_activity", totals.AllTimeActivity,
		"all_time_usage", totals.AllTimeUsage,
		"year_activity", totals.YearActivity,
		"year_usage", totals.YearUsage,
		"month_activity", totals.MonthActivity,
		"month_usage", totals.MonthUsage,
	).Err()
}

func (s *ledgerStore) GetTotals(ctx context.Context) (storage.Totals, error) {
	data, err := s.client.HGetAll(ctx, keyTotals).Result()
	if err != nil {
		return storage.Totals{}, err
	}
	if len(data) == 0 {
		return storage.Totals{}, nil
	}
	totals, err := parseTotals(data)
	if err != nil {
		return storage.Totals{}, err
	}
	return *totals, nil
}

func (s *ledgerStore) SetBalance(ctx context.Context, balance int64) error {
	return s.client.Set(ctx, keyBalance, balance, 0).Err()
}

func (s *ledgerStore) GetBalance(ctx context.Context) (int64, error) {
	value, err := s.client.Get(ctx, keyBalance).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

func (s *ledgerStore) GetYearEpoch(ctx context.Context) (int, error) {
	value, err := s.client.Get(ctx, keyYearEpoch).Result()
	if err == redis.Nil {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

func (s *ledgerStore) SetYearEpoch(ctx context.Context, year int) error {
	return s.client.Set(ctx, keyYearEpoch, year, 0).Err()
}

func (s *ledgerStore) Reset(ctx context.Context) error {
	script := redis.NewScript(resetLedgerScript)
	keys := []string{keyDays, keyTotals, keyBalance, keyYearEpoch}
	return script.Run(ctx, s.client, keys, prefixDayAct, prefixDayUsage).Err()
}

// intResult reads an integer GET result, treating a missing key as zero.
func intResult(cmd *redis.StringCmd) (int64, error) {
	value, err := cmd.Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}
