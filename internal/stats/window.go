package stats

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Atelier/internal/domain"
)

// record — последнее известное состояние задачи в окне.
type record struct {
	id           uuid.UUID
	workerID     string
	status       domain.TaskStatus
	dispatchedAt *time.Time
	startedAt    *time.Time
	finishedAt   *time.Time
}

// window — скользящее окно задач. Не потокобезопасно: принадлежит
// горутине Aggregator'а.
type window struct {
	length     time.Duration
	maxRecords int

	records map[uuid.UUID]*record
	order   []uuid.UUID // по первому появлению
}

func newWindow(length time.Duration, maxRecords int) *window {
	return &window{
		length:     length,
		maxRecords: maxRecords,
		records:    make(map[uuid.UUID]*record),
	}
}

// apply обновляет запись задачи по событию.
func (w *window) apply(e domain.TaskEvent) {
	r, ok := w.records[e.Task.ID]
	if !ok {
		r = &record{id: e.Task.ID}
		w.records[e.Task.ID] = r
		w.order = append(w.order, e.Task.ID)
	}

	r.status = e.Task.Status
	if e.Task.LastWorkerID != "" {
		r.workerID = e.Task.LastWorkerID
	}
	r.dispatchedAt = e.Task.DispatchedAt
	r.startedAt = e.Task.StartedAt
	r.finishedAt = e.Task.FinishedAt

	if len(w.order) > w.maxRecords {
		w.evictOldest(len(w.order) - w.maxRecords)
	}
}

// expire удаляет завершённые задачи, закончившиеся раньше начала окна.
func (w *window) expire(now time.Time) {
	cutoff := now.Add(-w.length)
	kept := w.order[:0]
	for _, id := range w.order {
		r := w.records[id]
		if r.finishedAt != nil && r.finishedAt.Before(cutoff) {
			delete(w.records, id)
			continue
		}
		kept = append(kept, id)
	}
	w.order = kept
}

func (w *window) evictOldest(n int) {
	for _, id := range w.order[:n] {
		delete(w.records, id)
	}
	w.order = append([]uuid.UUID(nil), w.order[n:]...)
}

// snapshot считает сводку на момент now.
// span — наблюдаемый интервал: min(длина окна, время работы агрегатора).
func (w *window) snapshot(now time.Time, span time.Duration) domain.StatsSnapshot {
	w.expire(now)

	snap := domain.StatsSnapshot{
		Counts:      make(map[domain.TaskStatus]int, len(domain.AllTaskStatuses)),
		SuccessRate: 1.0,
		Window:      span,
		TakenAt:     now,
	}
	for _, s := range domain.AllTaskStatuses {
		snap.Counts[s] = 0
	}

	from := now.Add(-span)
	var (
		finished, succeeded, failed int
		genTotal                    time.Duration
		busy                        = make(map[string]time.Duration)
		perWorker                   = make(map[string]int)
	)

	for _, id := range w.order {
		r := w.records[id]
		snap.Counts[r.status]++

		if r.workerID != "" {
			perWorker[r.workerID]++
			if r.dispatchedAt != nil {
				end := now
				if r.finishedAt != nil {
					end = *r.finishedAt
				}
				busy[r.workerID] += overlap(*r.dispatchedAt, end, from, now)
			}
		}

		if r.finishedAt == nil || r.finishedAt.Before(from) {
			continue
		}
		finished++
		switch r.status {
		case domain.TaskStatusSucceeded:
			succeeded++
			if r.startedAt != nil {
				genTotal += r.finishedAt.Sub(*r.startedAt)
			}
		case domain.TaskStatusFailed:
			failed++
		}
	}

	if span > 0 {
		snap.TasksPerSecond = float64(finished) / span.Seconds()
	}
	if failed > 0 {
		snap.SuccessRate = float64(succeeded) / float64(succeeded+failed)
	}
	if succeeded > 0 {
		snap.MeanGenerationTime = genTotal / time.Duration(succeeded)
	}

	snap.Workers = make([]domain.WorkerUtilization, 0, len(perWorker))
	for workerID, tasks := range perWorker {
		u := domain.WorkerUtilization{WorkerID: workerID, Tasks: tasks}
		if span > 0 {
			u.Utilization = min(1, float64(busy[workerID])/float64(span))
		}
		snap.Workers = append(snap.Workers, u)
	}
	sort.Slice(snap.Workers, func(i, j int) bool { return snap.Workers[i].WorkerID < snap.Workers[j].WorkerID })

	return snap
}

// overlap возвращает длину пересечения [start, end] и [from, to].
func overlap(start, end, from, to time.Time) time.Duration {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
