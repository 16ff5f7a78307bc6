package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/attison/penance/internal/storage"
	"github.com/redis/go-redis/v9"
)

const keySettings = "penance:settings"

type settingsStore struct {
	client *redis.Client
}

func (s *settingsStore) GetConversionRate(ctx context.Context) (int64, error) {
	value, err := s.getField(ctx, "conversion_rate")
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

func (s *settingsStore) SetConversionRate(ctx context.Context, rate int64) error {
	return s.client.HSet(ctx, keySettings, "conversion_rate", rate).Err()
}

func (s *settingsStore) GetActivityLabel(ctx context.Context) (string, error) {
	return s.getField(ctx, "activity_label")
}

func (s *settingsStore) SetActivityLabel(ctx context.Context, label string) error {
	return s.client.HSet(ctx, keySettings, "activity_label", label).Err()
}

func (s *settingsStore) GetStartDate(ctx context.Context) (time.Time, error) {
	value, err := s.getField(ctx, "start_date")
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, value)
}

func (s *settingsStore) SetStartDate(ctx context.Context, start time.Time) error {
	return s.client.HSet(ctx, keySettings, "start_date", start.Format(time.RFC3339Nano)).Err()
}

func (s *settingsStore) GetSetupDone(ctx context.Context) (bool, error) {
	value, err := s.getField(ctx, "setup_done")
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

func (s *settingsStore) SetSetupDone(ctx context.Context, done bool) error {
	return s.client.HSet(ctx, keySettings, "setup_done", strconv.FormatBool(done)).Err()
}

func (s *settingsStore) GetLastProcessedDay(ctx context.Context) (string, error) {
	return s.getField(ctx, "last_processed_day")
}

func (s *settingsStore) SetLastProcessedDay(ctx context.Context, date string) error {
	return s.client.HSet(ctx, keySettings, "last_processed_day", date).Err()
}

func (s *settingsStore) getField(ctx context.Context, field string) (string, error) {
	value, err := s.client.HGet(ctx, keySettings, field).Result()
	if err == redis.Nil {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
