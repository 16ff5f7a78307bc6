package bolt

import (
	"context"
	"time"

	"go.etcd.io/bbolt"
)

const (
	keyConversionRate   = "conversion_rate"
	keyActivityLabel    = "activity_label"
	keyStartDate        = "start_date"
	keySetupDone        = "setup_done"
	keyLastProcessedDay = "last_processed_day"
)

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) GetConversionRate(ctx context.Context) (int64, error) {
	rate, err := getBucketValue[int64](ctx, s.db, bucketSettings, keyConversionRate)
	if err != nil {
		return 0, err
	}
	return *rate, nil
}

func (s *settingsStore) SetConversionRate(ctx context.Context, rate int64) error {
	return putBucketValue(ctx, s.db, bucketSettings, keyConversionRate, rate)
}

func (s *settingsStore) GetActivityLabel(ctx context.Context) (string, error) {
	label, err := getBucketValue[string](ctx, s.db, bucketSettings, keyActivityLabel)
	if err != nil {
		return "", err
	}
	return *label, nil
}

func (s *settingsStore) SetActivityLabel(ctx context.Context, label string) error {
	return putBucketValue(ctx, s.db, bucketSettings, keyActivityLabel, label)
}

func (s *settingsStore) GetStartDate(ctx context.Context) (time.Time, error) {
	start, err := getBucketValue[time.Time](ctx, s.db, bucketSettings, keyStartDate)
	if err != nil {
		return time.Time{}, err
	}
	return *start, nil
}

func (s *settingsStore) SetStartDate(ctx context.Context, start time.Time) error {
	return putBucketValue(ctx, s.db, bucketSettings, keyStartDate, start)
}

func (s *settingsStore) GetSetupDone(ctx context.Context) (bool, error) {
	done, err := getBucketValue[bool](ctx, s.db, bucketSettings, keySetupDone)
	if err != nil {
		return false, err
	}
	return *done, nil
}

func (s *settingsStore) SetSetupDone(ctx context.Context, done bool) error {
	return putBucketValue(ctx, s.db, bucketSettings, keySetupDone, done)
}

func (s *settingsStore) GetLastProcessedDay(ctx context.Context) (string, error) {
	date, err := getBucketValue[string](ctx, s.db, bucketSettings, keyLastProcessedDay)
	if err != nil {
		return "", err
	}
	return *date, nil
}

func (s *settingsStore) SetLastProcessedDay(ctx context.Context, date string) error {
	return putBucketValue(ctx, s.db, bucketSettings, keyLastProcessedDay, date)
}
