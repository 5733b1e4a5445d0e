package stats

import "errors"

var (
	// ErrInvalidCadence — расписание публикации не разобрано.
	ErrInvalidCadence = errors.New("invalid stats cadence")

	// ErrAggregatorStopped — агрегатор остановлен.
	ErrAggregatorStopped = errors.New("stats aggregator stopped")
)
