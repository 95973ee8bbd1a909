package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/internal/storage"
)

var fixedNow = time.Date(2024, 12, 23, 10, 15, 0, 0, time.Local)

func newTestStore(t *testing.T) (*Store, *storage.Memory) {
	t.Helper()
	blob := storage.NewMemory()
	s := New(blob, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, s.Load(context.Background()))
	return s, blob
}

func strp(s string) *string { return &s }

func TestAddStandup(t *testing.T) {
	t.Parallel()
	s, blob := newTestStore(t)

	res, err := s.Add(context.Background(), 1, AddInput{Title: "Standup", Date: "2024-12-25", Time: "09:30", Category: "work"})
	require.NoError(t, err)
	assert.Equal(t, AddResult{ID: 1, Date: "2024-12-25", Time: "09:30"}, res)
	assert.Equal(t, 1, blob.Saves())

	got, err := s.Get(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "work", got.Category)
	assert.Equal(t, fixedNow, got.CreatedAt)
}

func TestAddDefaults(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	res, err := s.Add(context.Background(), 7, AddInput{Title: "  Read  ", Category: "STUDY"})
	require.NoError(t, err)
	assert.Equal(t, "2024-12-23", res.Date)
	assert.Equal(t, "09:00", res.Time)

	got, err := s.Get(7, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Read", got.Title)
	assert.Equal(t, "study", got.Category)
}

func TestAddWindowAcceptsEveryValidHour(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	hours := []int{0}
	for h := 7; h <= 23; h++ {
		hours = append(hours, h)
	}
	for _, h := range hours {
		for _, m := range []int{0, 5, 59} {
			in := fmt.Sprintf("%02d:%02d", h, m)
			res, err := s.Add(context.Background(), 1, AddInput{Title: "x", Date: "2024-12-25", Time: in})
			require.NoError(t, err, in)
			got, err := s.Get(1, res.ID)
			require.NoError(t, err)
			assert.Equal(t, in, got.Time())
			assert.Equal(t, h, got.Hour)
			assert.Equal(t, m, got.Minute)
		}
	}
}

func TestAddAndEditRejectEarlyHours(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	res, err := s.Add(context.Background(), 1, AddInput{Title: "base", Date: "2024-12-25", Time: "10:00"})
	require.NoError(t, err)

	for h := 1; h <= 6; h++ {
		in := fmt.Sprintf("%02d:30", h)
		_, err := s.Add(context.Background(), 1, AddInput{Title: "x", Time: in})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, in)

		_, err = s.Edit(context.Background(), 1, res.ID, EditInput{Time: strp(in)})
		require.ErrorAs(t, err, &ve, in)
	}
	assert.Equal(t, 1, s.Count(1))
}

func TestLateNightMessage(t *testing.T) {
	t.Parallel()
	s, blob := newTestStore(t)

	_, err := s.Add(context.Background(), 1, AddInput{Title: "Late night", Time: "03:00"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "7:00 AM")
	assert.Contains(t, ve.Error(), "12:00 AM")
	assert.Contains(t, ve.Error(), "3:00 AM")
	assert.Equal(t, 0, blob.Saves())
	assert.Equal(t, 0, s.Count(1))
}

func TestFormatErrors(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	cases := []struct {
		name    string
		in      AddInput
		field   string
		example string
	}{
		{"bad date", AddInput{Title: "x", Date: "25/12/2024"}, "date", "2024-12-25"},
		{"impossible date", AddInput{Title: "x", Date: "2024-02-30"}, "date", "2024-12-25"},
		{"bad time", AddInput{Title: "x", Time: "9am"}, "time", "09:30"},
		{"hour 24", AddInput{Title: "x", Time: "24:00"}, "time", "09:30"},
	}
	for _, tc := range cases {
		_, err := s.Add(context.Background(), 1, tc.in)
		var fe *FormatError
		require.ErrorAs(t, err, &fe, tc.name)
		assert.Equal(t, tc.field, fe.Field, tc.name)
		assert.Contains(t, fe.Error(), tc.example, tc.name)
	}
}

func TestAddRequiresTitle(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	_, err := s.Add(context.Background(), 1, AddInput{Title: "   "})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)
}

func TestEditTimeKeepsTitle(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	_, err := s.Add(context.Background(), 1, AddInput{Title: "Standup", Date: "2024-12-25", Time: "09:30", Category: "work"})
	require.NoError(t, err)

	got, err := s.Edit(context.Background(), 1, 1, EditInput{Time: strp("14:00")})
	require.NoError(t, err)
	assert.Equal(t, 14, got.Hour)
	assert.Equal(t, 0, got.Minute)
	assert.Equal(t, "14:00", got.Time())
	assert.Equal(t, "Standup", got.Title)
}

func TestEditIsAtomic(t *testing.T) {
	t.Parallel()
	s, blob := newTestStore(t)
	_, err := s.Add(context.Background(), 1, AddInput{Title: "Original", Date: "2024-12-25", Time: "09:30"})
	require.NoError(t, err)

	_, err = s.Edit(context.Background(), 1, 1, EditInput{Title: strp("Changed"), Date: strp("not-a-date")})
	var fe *FormatError
	require.ErrorAs(t, err, &fe)

	got, err := s.Get(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Title)
	assert.Equal(t, 1, blob.Saves())
}

func TestEditResorts(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Add(ctx, 1, AddInput{Title: "a", Date: "2024-12-25", Time: "08:00"})
	_, _ = s.Add(ctx, 1, AddInput{Title: "b", Date: "2024-12-25", Time: "10:00"})

	_, err := s.Edit(ctx, 1, 1, EditInput{Date: strp("2024-12-26")})
	require.NoError(t, err)

	list := s.Tasks(1)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Title)
	assert.Equal(t, "a", list[1].Title)
}

func TestEditIsOwnerScoped(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	_, err := s.Add(context.Background(), 1, AddInput{Title: "mine"})
	require.NoError(t, err)

	_, err = s.Edit(context.Background(), 2, 1, EditInput{Title: strp("theirs")})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 1, nf.TaskID)
}

func TestEditMissingTaskBeatsBadInput(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.Add(ctx, 1, AddInput{Title: "kept"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   EditInput
	}{
		{name: "early time", in: EditInput{Time: strp("03:00")}},
		{name: "bad date", in: EditInput{Date: strp("xx")}},
		{name: "bad time format", in: EditInput{Title: strp("x"), Time: strp("noon")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Edit(ctx, 1, 999, tt.in)
			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, "Task with ID 999 not found.", err.Error())
		})
	}
}

func TestDeleteMissing(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	_, err := s.Delete(context.Background(), 1, 999)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Task with ID 999 not found.", err.Error())
}

func TestDeleteLastTaskDropsOwner(t *testing.T) {
	t.Parallel()
	s, blob := newTestStore(t)
	ctx := context.Background()
	_, err := s.Add(ctx, 5, AddInput{Title: "only"})
	require.NoError(t, err)

	removed, err := s.Delete(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, "only", removed.Title)
	assert.Equal(t, 0, s.Count(5))
	assert.Empty(t, s.Owners())
	assert.NotContains(t, string(blob.Bytes()), `"5"`)
}

func TestIDsGloballyUnique(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		owner := OwnerID(i % 3)
		_, err := s.Add(ctx, owner, AddInput{Title: fmt.Sprint(i)})
		require.NoError(t, err)
		if i%4 == 0 {
			list := s.Tasks(owner)
			_, err := s.Delete(ctx, owner, list[0].ID)
			require.NoError(t, err)
		}
	}

	seen := map[int]bool{}
	for _, o := range s.Owners() {
		for _, task := range s.Tasks(o) {
			assert.False(t, seen[task.ID], "duplicate id %d", task.ID)
			seen[task.ID] = true
		}
	}
}

func TestIDsNotReusedAfterDelete(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Add(ctx, 1, AddInput{Title: "a"})
	_, _ = s.Add(ctx, 1, AddInput{Title: "b"})
	_, err := s.Delete(ctx, 1, 2)
	require.NoError(t, err)

	res, err := s.Add(ctx, 1, AddInput{Title: "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ID)
}

func TestClear(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Add(ctx, 1, AddInput{Title: "a"})
	_, _ = s.Add(ctx, 1, AddInput{Title: "b"})
	_, _ = s.Add(ctx, 2, AddInput{Title: "c"})

	n, err := s.Clear(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, s.Count(1))
	assert.Equal(t, 1, s.Count(2))

	n, err = s.Clear(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPersistFailureRollsBack(t *testing.T) {
	t.Parallel()
	s, blob := newTestStore(t)
	ctx := context.Background()
	_, err := s.Add(ctx, 1, AddInput{Title: "kept", Date: "2024-12-25", Time: "09:30"})
	require.NoError(t, err)

	boom := errors.New("disk full")
	blob.SetFailSave(boom)

	_, err = s.Add(ctx, 1, AddInput{Title: "lost"})
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "add", pe.Op)
	assert.Equal(t, 1, s.Count(1))

	_, err = s.Add(ctx, 2, AddInput{Title: "lost"})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, s.Tasks(2))
	assert.Equal(t, []OwnerID{1}, s.Owners())

	_, err = s.Edit(ctx, 1, 1, EditInput{Title: strp("changed")})
	require.ErrorIs(t, err, boom)
	_, err = s.Delete(ctx, 1, 1)
	require.ErrorIs(t, err, boom)
	_, err = s.Clear(ctx, 1)
	require.ErrorIs(t, err, boom)

	got, err := s.Get(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)

	blob.SetFailSave(nil)
	res, err := s.Add(ctx, 1, AddInput{Title: "after"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ID)
}

func TestReadsDoNotCreateOwners(t *testing.T) {
	t.Parallel()
	s, blob := newTestStore(t)
	_ = s.Count(3)
	_ = s.ScheduleView(3)
	_ = s.ListView(3)
	_ = s.Upcoming(3, 10)
	assert.Empty(t, s.Owners())
	assert.Equal(t, 0, blob.Saves())
}

func TestUpcoming(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Add(ctx, 1, AddInput{Title: "past day", Date: "2024-12-22", Time: "09:00"})
	_, _ = s.Add(ctx, 1, AddInput{Title: "earlier today", Date: "2024-12-23", Time: "09:00"})
	_, _ = s.Add(ctx, 1, AddInput{Title: "now", Date: "2024-12-23", Time: "10:15"})
	_, _ = s.Add(ctx, 1, AddInput{Title: "tomorrow", Date: "2024-12-24", Time: "08:00"})
	_, _ = s.Add(ctx, 1, AddInput{Title: "later", Date: "2024-12-30", Time: "08:00"})

	got := s.Upcoming(1, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "now", got[0].Title)
	assert.Equal(t, "tomorrow", got[1].Title)
	assert.Len(t, s.Upcoming(1, 0), 3)
}

func TestStats(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Add(ctx, 1, AddInput{Title: "a"})
	_, _ = s.Add(ctx, 2, AddInput{Title: "b"})
	_, _ = s.Add(ctx, 2, AddInput{Title: "c"})
	assert.Equal(t, Stats{Tasks: 3, Owners: 2, NextID: 4}, s.Stats())
}

type recordingObserver struct {
	mu       sync.Mutex
	ops      []string
	persists int
}

func (r *recordingObserver) ObserveOp(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, fmt.Sprintf("%s:%v", op, err == nil))
}

func (r *recordingObserver) ObservePersist(time.Duration, error) {
	r.mu.Lock()
	r.persists++
	r.mu.Unlock()
}

func TestObserver(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	s := New(storage.NewMemory(), WithObserver(obs), WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	_, _ = s.Add(ctx, 1, AddInput{Title: "a"})
	_, _ = s.Add(ctx, 1, AddInput{Title: "b", Time: "04:00"})
	_, _ = s.Delete(ctx, 1, 42)

	assert.Equal(t, []string{"add:true", "add:false", "delete:false"}, obs.ops)
	assert.Equal(t, 1, obs.persists)
}

func TestConcurrentAdds(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Add(ctx, OwnerID(i%5), AddInput{Title: "t"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st := s.Stats()
	assert.Equal(t, 50, st.Tasks)
	assert.Equal(t, 51, st.NextID)
}
