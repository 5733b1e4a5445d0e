package dispatcher

import (
	"sort"

	"github.com/golang-collections/collections/queue"
	"github.com/google/uuid"
)

// taskQueue — очередь задач по уровням приоритета.
//
// Каждый уровень — FIFO. Уровни обслуживаются от большего к меньшему.
// Отменённые задачи не удаляются сразу: их отбрасывает следующий проход.
type taskQueue struct {
	tiers map[int]*queue.Queue
	order []int // уровни по убыванию
}

func newTaskQueue() *taskQueue {
	return &taskQueue{tiers: make(map[int]*queue.Queue)}
}

// Push добавляет задачу в конец своего уровня.
func (q *taskQueue) Push(tier int, id uuid.UUID) {
	tq, ok := q.tiers[tier]
	if !ok {
		tq = queue.New()
		q.tiers[tier] = tq
		q.order = append(q.order, tier)
		sort.Sort(sort.Reverse(sort.IntSlice(q.order)))
	}
	tq.Enqueue(id)
}

// Len возвращает количество элементов во всех уровнях
// (включая ещё не отброшенные отменённые задачи).
func (q *taskQueue) Len() int {
	n := 0
	for _, tq := range q.tiers {
		n += tq.Len()
	}
	return n
}

// Visit обходит задачи: уровни от старшего к младшему, внутри уровня в
// порядке поступления. visit возвращает true, если задачу нужно убрать
// из очереди (назначена или больше не в статусе QUEUED).
// Порядок оставшихся задач сохраняется.
func (q *taskQueue) Visit(visit func(id uuid.UUID) (remove bool)) {
	for _, tier := range q.order {
		tq := q.tiers[tier]
		for range tq.Len() {
			id := tq.Dequeue().(uuid.UUID)
			if !visit(id) {
				tq.Enqueue(id)
			}
		}
	}
	q.compact()
}

// compact удаляет пустые уровни.
func (q *taskQueue) compact() {
	kept := q.order[:0]
	for _, tier := range q.order {
		if q.tiers[tier].Len() == 0 {
			delete(q.tiers, tier)
			continue
		}
		kept = append(kept, tier)
	}
	q.order = kept
}
