package bolt

import (
	"context"
	"errors"
	"fmt"

	"github.com/attison/penance/internal/storage"
	"go.etcd.io/bbolt"
)

type ledgerStore struct {
	db *bbolt.DB
}

func (s *ledgerStore) AddActivity(ctx context.Context, date string, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("negative activity delta: %d", delta)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDayActivity))
		if b == nil {
			return fmt.Errorf("day activity bucket missing")
		}
		var count int64
		if existing := b.Get([]byte(date)); existing != nil {
			if err := unmarshal(existing, &count); err != nil {
				return err
			}
		}
		count += delta
		data, err := marshal(count)
		if err != nil {
			return err
		}
		return b.Put([]byte(date), data)
	})
}

func (s *ledgerStore) SetUsageMinutes(ctx context.Context, date string, minutes int64) error {
	if minutes < 0 {
		return fmt.Errorf("negative usage minutes: %d", minutes)
	}
	return putBucketValue(ctx, s.db, bucketDayUsage, date, minutes)
}

func (s *ledgerStore) GetDay(ctx context.Context, date string) (storage.DayRecord, error) {
	var record storage.DayRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if b := tx.Bucket([]byte(bucketDayActivity)); b != nil {
			if v := b.Get([]byte(date)); v != nil {
				if err := unmarshal(v, &record.ActivityCount); err != nil {
					return err
				}
			}
		}
		if b := tx.Bucket([]byte(bucketDayUsage)); b != nil {
			if v := b.Get([]byte(date)); v != nil {
				if err := unmarshal(v, &record.UsageMinutes); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return record, err
}

func (s *ledgerStore) ScanDays(ctx context.Context) ([]storage.DayEntry, error) {
	byDate := make(map[string]storage.DayRecord)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(bucketDayActivity)); b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var count int64
				if err := unmarshal(v, &count); err != nil {
					return err
				}
				record := byDate[string(k)]
				record.ActivityCount = count
				byDate[string(k)] = record
				return nil
			}); err != nil {
				return err
			}
		}
		if b := tx.Bucket([]byte(bucketDayUsage)); b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var minutes int64
				if err := unmarshal(v, &minutes); err != nil {
					return err
				}
				record := byDate[string(k)]
				record.UsageMinutes = minutes
				byDate[string(k)] = record
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]storage.DayEntry, 0, len(byDate))
	for date, record := range byDate {
		entries = append(entries, storage.DayEntry{Date: date, Record: record})
	}
	return entries, nil
}

func (s *ledgerStore) ReplaceTotals(ctx context.Context, totals storage.Totals) error {
	return putBucketValue(ctx, s.db, bucketTotals, keyTotalsSnapshot, totals)
}

func (s *ledgerStore) GetTotals(ctx context.Context) (storage.Totals, error) {
	totals, err := getBucketValue[storage.Totals](ctx, s.db, bucketTotals, keyTotalsSnapshot)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Totals{}, nil
	}
	if err != nil {
		return storage.Totals{}, err
	}
	return *totals, nil
}

func (s *ledgerStore) SetBalance(ctx context.Context, balance int64) error {
	return putBucketValue(ctx, s.db, bucketTotals, keyBalance, balance)
}

func (s *ledgerStore) GetBalance(ctx context.Context) (int64, error) {
	balance, err := getBucketValue[int64](ctx, s.db, bucketTotals, keyBalance)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return *balance, nil
}

func (s *ledgerStore) GetYearEpoch(ctx context.Context) (int, error) {
	year, err := getBucketValue[int](ctx, s.db, bucketTotals, keyYearEpoch)
	if err != nil {
		return 0, err
	}
	return *year, nil
}

func (s *ledgerStore) SetYearEpoch(ctx context.Context, year int) error {
	return putBucketValue(ctx, s.db, bucketTotals, keyYearEpoch, year)
}

func (s *ledgerStore) Reset(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, name := range []string{bucketDayActivity, bucketDayUsage, bucketTotals} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return fmt.Errorf("delete bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return fmt.Errorf("recreate bucket %s: %w", name, err)
			}
		}
		return nil
	})
}
