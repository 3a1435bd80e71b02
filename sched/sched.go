package sched

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	// Layers is the number of priority layers; 0 is served first.
	Layers = 4

	DefaultCapacity = 128
)

var (
	ErrFull        = errors.New("queue is full")
	ErrEmpty       = errors.New("queue is empty")
	ErrStaleHandle = errors.New("stale task handle")
	ErrPriority    = errors.New("priority out of range")
)

// Task is one unit of cooperative work.
type Task struct {
	Name string
	Run  func()
}

// Handle names a queued task. It goes stale once the task leaves the
// queue, even if its slot is reused.
type Handle struct {
	index int
	gen   uint32
}

type slot struct {
	task  Task
	layer int
	seq   uint64
	gen   uint32
	used  bool

	prev, next int
}

type layer struct {
	head, tail int
	n          int
}

// Queue is a fixed-capacity multi-layer FIFO. Slots are allocated from a
// free list and linked into per-layer lists; a bitmask of non-empty
// layers makes Pop a single bit scan. A Queue is not safe for concurrent
// use.
type Queue struct {
	slots    []slot
	free     []int
	layers   [Layers]layer
	nonEmpty uint8
	seq      uint64
	n        int
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	q := &Queue{
		slots: make([]slot, capacity),
		free:  make([]int, capacity),
	}

	// Lowest index is handed out first.
	for i := range q.free {
		q.free[i] = capacity - 1 - i
	}

	for i := range q.layers {
		q.layers[i] = layer{head: -1, tail: -1}
	}

	return q
}

func checkPriority(p int) error {
	if p < 0 || p >= Layers {
		return fmt.Errorf("%w: %d", ErrPriority, p)
	}

	return nil
}

// link inserts slot i into layer p in push order. A pushed task has the
// highest sequence number and lands at the tail; a task moved by Update
// goes back among the tasks pushed around it.
func (q *Queue) link(i, p int) {
	s := &q.slots[i]
	l := &q.layers[p]

	prev := l.tail
	for prev >= 0 && q.slots[prev].seq > s.seq {
		prev = q.slots[prev].prev
	}

	s.layer = p
	s.prev = prev

	if prev >= 0 {
		s.next = q.slots[prev].next
		q.slots[prev].next = i
	} else {
		s.next = l.head
		l.head = i
	}

	if s.next >= 0 {
		q.slots[s.next].prev = i
	} else {
		l.tail = i
	}

	l.n++
	q.nonEmpty |= 1 << p
}

func (q *Queue) unlink(i int) {
	s := &q.slots[i]
	l := &q.layers[s.layer]

	if s.prev >= 0 {
		q.slots[s.prev].next = s.next
	} else {
		l.head = s.next
	}

	if s.next >= 0 {
		q.slots[s.next].prev = s.prev
	} else {
		l.tail = s.prev
	}

	l.n--
	if l.n == 0 {
		q.nonEmpty &^= 1 << s.layer
	}
}

func (q *Queue) release(i int) Task {
	s := &q.slots[i]
	t := s.task

	s.task = Task{}
	s.used = false
	s.gen++

	q.free = append(q.free, i)
	q.n--

	return t
}

// Push appends t to the tail of layer prio.
func (q *Queue) Push(prio int, t Task) (Handle, error) {
	if err := checkPriority(prio); err != nil {
		return Handle{}, err
	}

	if len(q.free) == 0 {
		return Handle{}, fmt.Errorf("%w: %d tasks", ErrFull, q.n)
	}

	i := q.free[len(q.free)-1]
	q.free = q.free[:len(q.free)-1]

	s := &q.slots[i]
	s.task = t
	s.seq = q.seq
	s.used = true
	q.seq++
	q.n++

	q.link(i, prio)

	return Handle{index: i, gen: s.gen}, nil
}

// Pop removes the oldest task of the highest-priority non-empty layer.
func (q *Queue) Pop() (Task, error) {
	if q.nonEmpty == 0 {
		return Task{}, ErrEmpty
	}

	return q.popLayer(bits.TrailingZeros8(q.nonEmpty)), nil
}

// PopFromLayer is Pop restricted to one layer.
func (q *Queue) PopFromLayer(prio int) (Task, error) {
	if err := checkPriority(prio); err != nil {
		return Task{}, err
	}

	if q.layers[prio].n == 0 {
		return Task{}, fmt.Errorf("%w: layer %d", ErrEmpty, prio)
	}

	return q.popLayer(prio), nil
}

func (q *Queue) popLayer(p int) Task {
	i := q.layers[p].head
	q.unlink(i)

	return q.release(i)
}

func (q *Queue) lookup(h Handle) (int, error) {
	if h.index < 0 || h.index >= len(q.slots) {
		return 0, ErrStaleHandle
	}

	if s := &q.slots[h.index]; !s.used || s.gen != h.gen {
		return 0, ErrStaleHandle
	}

	return h.index, nil
}

// Update moves a queued task to layer prio. It keeps its push order, so it
// pops after tasks of that layer pushed before it and ahead of those pushed
// later. A stale handle changes nothing and yields ErrStaleHandle.
func (q *Queue) Update(h Handle, prio int) error {
	if err := checkPriority(prio); err != nil {
		return err
	}

	i, err := q.lookup(h)
	if err != nil {
		return err
	}

	if q.slots[i].layer == prio {
		return nil
	}

	q.unlink(i)
	q.link(i, prio)

	return nil
}

// Remove cancels a queued task. A stale handle changes nothing and yields
// ErrStaleHandle.
func (q *Queue) Remove(h Handle) error {
	i, err := q.lookup(h)
	if err != nil {
		return err
	}

	q.unlink(i)
	q.release(i)

	return nil
}

func (q *Queue) Len() int {
	return q.n
}

func (q *Queue) LayerLen(prio int) int {
	if checkPriority(prio) != nil {
		return 0
	}

	return q.layers[prio].n
}

func (q *Queue) HasLayer(prio int) bool {
	return q.LayerLen(prio) > 0
}

func (q *Queue) IsEmpty() bool {
	return q.n == 0
}

func (q *Queue) Cap() int {
	return len(q.slots)
}
