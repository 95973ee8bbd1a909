package schedule

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

// Observer receives operation outcomes. Implementations must be fast and
// must not call back into the Store.
type Observer interface {
	ObserveOp(op string, err error)
	ObservePersist(d time.Duration, err error)
}

type Option func(*Store)

// WithClock overrides the wall clock used for default dates, created_at
// and view windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Store) { s.log = log }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.obs = o }
}

// Store is the task store. All methods are safe for concurrent use; one
// mutex serializes every operation, including the blob write.
type Store struct {
	mu     sync.Mutex
	blob   storage.Blob
	log    logx.Logger
	now    func() time.Time
	obs    Observer
	tasks  map[OwnerID][]Task
	nextID int
}

func New(blob storage.Blob, opts ...Option) *Store {
	s := &Store{
		blob:   blob,
		now:    time.Now,
		tasks:  map[OwnerID][]Task{},
		nextID: 1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "schedule"))
	return s
}

type AddInput struct {
	Title       string
	Description string
	Date        string // YYYY-MM-DD; empty means today
	Time        string // HH:MM; empty means 09:00
	Category    string
}

type AddResult struct {
	ID   int
	Date string
	Time string
}

// EditInput carries optional replacements. Nil or empty values leave the
// field unchanged.
type EditInput struct {
	Title       *string
	Description *string
	Date        *string
	Time        *string
}

func (in EditInput) IsEmpty() bool {
	return isUnset(in.Title) && isUnset(in.Description) && isUnset(in.Date) && isUnset(in.Time)
}

func isUnset(p *string) bool { return p == nil || strings.TrimSpace(*p) == "" }

func (s *Store) Add(ctx context.Context, owner OwnerID, in AddInput) (res AddResult, err error) {
	defer func() { s.observe("add", err) }()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return AddResult{}, &ValidationError{Field: "title", Message: "Task title is required."}
	}

	now := s.now()
	date := now.Format(DateLayout)
	if strings.TrimSpace(in.Date) != "" {
		if date, err = parseDate(in.Date); err != nil {
			return AddResult{}, err
		}
	}
	clock := DefaultTime
	if strings.TrimSpace(in.Time) != "" {
		clock = in.Time
	}
	hour, minute, err := parseTimeInWindow(clock)
	if err != nil {
		return AddResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.tasks[owner]
	prevNext := s.nextID

	id := s.allocateIDLocked()
	t := Task{
		ID:          id,
		Owner:       owner,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Date:        date,
		Hour:        hour,
		Minute:      minute,
		Category:    NormalizeCategory(in.Category),
		CreatedAt:   now,
	}
	next := append(slices.Clone(prev), t)
	sortTasks(next)
	s.tasks[owner] = next
	s.nextID = id + 1

	if err := s.persistLocked(ctx, "add"); err != nil {
		s.restoreLocked(owner, prev, had)
		s.nextID = prevNext
		return AddResult{}, err
	}
	s.log.Debug("task added", logx.Int64("owner", int64(owner)), logx.Int("id", id), logx.String("date", date), logx.String("time", t.Time()))
	return AddResult{ID: id, Date: date, Time: t.Time()}, nil
}

// Edit applies every provided field or none of them.
func (s *Store) Edit(ctx context.Context, owner OwnerID, id int, in EditInput) (updated Task, err error) {
	defer func() { s.observe("edit", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	// A missing task wins over bad input.
	prev, had := s.tasks[owner]
	idx := indexOf(prev, id)
	if idx < 0 {
		return Task{}, &NotFoundError{TaskID: id}
	}

	var (
		date         string
		hour, minute int
	)
	if !isUnset(in.Date) {
		if date, err = parseDate(*in.Date); err != nil {
			return Task{}, err
		}
	}
	if !isUnset(in.Time) {
		if hour, minute, err = parseTimeInWindow(*in.Time); err != nil {
			return Task{}, err
		}
	}

	next := slices.Clone(prev)
	t := next[idx]
	if !isUnset(in.Title) {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if !isUnset(in.Description) {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if date != "" {
		t.Date = date
	}
	if !isUnset(in.Time) {
		t.Hour, t.Minute = hour, minute
	}
	next[idx] = t
	sortTasks(next)
	s.tasks[owner] = next

	if err := s.persistLocked(ctx, "edit"); err != nil {
		s.restoreLocked(owner, prev, had)
		return Task{}, err
	}
	s.log.Debug("task edited", logx.Int64("owner", int64(owner)), logx.Int("id", id))
	return t, nil
}

// Delete removes the task and returns it. An owner left without tasks is
// dropped from the store.
func (s *Store) Delete(ctx context.Context, owner OwnerID, id int) (removed Task, err error) {
	defer func() { s.observe("delete", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.tasks[owner]
	idx := indexOf(prev, id)
	if idx < 0 {
		return Task{}, &NotFoundError{TaskID: id}
	}
	removed = prev[idx]
	next := slices.Delete(slices.Clone(prev), idx, idx+1)
	if len(next) == 0 {
		delete(s.tasks, owner)
	} else {
		s.tasks[owner] = next
	}

	if err := s.persistLocked(ctx, "delete"); err != nil {
		s.restoreLocked(owner, prev, had)
		return Task{}, err
	}
	s.log.Debug("task deleted", logx.Int64("owner", int64(owner)), logx.Int("id", id))
	return removed, nil
}

// Clear removes all of the owner's tasks and returns how many were removed.
func (s *Store) Clear(ctx context.Context, owner OwnerID) (n int, err error) {
	defer func() { s.observe("clear", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.tasks[owner]
	delete(s.tasks, owner)
	if err := s.persistLocked(ctx, "clear"); err != nil {
		s.restoreLocked(owner, prev, had)
		return 0, err
	}
	return len(prev), nil
}

func (s *Store) Count(owner OwnerID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks[owner])
}

func (s *Store) Get(owner OwnerID, id int) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.tasks[owner]
	if idx := indexOf(list, id); idx >= 0 {
		return list[idx], nil
	}
	return Task{}, &NotFoundError{TaskID: id}
}

// Tasks returns a copy of the owner's tasks in stored order.
func (s *Store) Tasks(owner OwnerID) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tasks[owner])
}

// Upcoming returns tasks whose date/time is not before the current minute,
// in order. limit <= 0 means no limit.
func (s *Store) Upcoming(owner OwnerID, limit int) []Task {
	now := s.now()
	cutoff := Task{Date: now.Format(DateLayout), Hour: now.Hour(), Minute: now.Minute()}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.tasks[owner] {
		if t.less(cutoff) {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Owners lists owners that currently have tasks, ascending.
func (s *Store) Owners() []OwnerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OwnerID, 0, len(s.tasks))
	for o, list := range s.tasks {
		if len(list) > 0 {
			out = append(out, o)
		}
	}
	slices.Sort(out)
	return out
}

type Stats struct {
	Tasks  int
	Owners int
	NextID int
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{NextID: s.nextID}
	for _, list := range s.tasks {
		if len(list) > 0 {
			st.Owners++
			st.Tasks += len(list)
		}
	}
	return st
}

// Flush writes the current state unconditionally.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx, "flush")
}

func (s *Store) allocateIDLocked() int {
	used := make(map[int]struct{})
	for _, list := range s.tasks {
		for _, t := range list {
			used[t.ID] = struct{}{}
		}
	}
	if s.nextID < 1 {
		s.nextID = 1
	}
	for {
		if _, ok := used[s.nextID]; !ok {
			return s.nextID
		}
		s.nextID++
	}
}

func (s *Store) restoreLocked(owner OwnerID, prev []Task, had bool) {
	if had {
		s.tasks[owner] = prev
	} else {
		delete(s.tasks, owner)
	}
}

func (s *Store) observe(op string, err error) {
	if s.obs != nil {
		s.obs.ObserveOp(op, err)
	}
}

func indexOf(list []Task, id int) int {
	for i, t := range list {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func sortTasks(list []Task) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].less(list[j]) })
}
