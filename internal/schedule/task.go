// Package schedule owns every task record: validation, id allocation,
// ordering, edits, deletes, schedule/list views and the persisted snapshot.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OwnerID identifies the user a task belongs to (a Telegram user id).
type OwnerID int64

func (o OwnerID) String() string { return strconv.FormatInt(int64(o), 10) }

// ParseOwnerID parses a decimal owner key. Leading zeros and surrounding
// whitespace are accepted, so "01" and "1" name the same owner.
func ParseOwnerID(s string) (OwnerID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid owner id %q: %w", s, err)
	}
	return OwnerID(n), nil
}

// Task is one scheduled item. The HH:MM string is always derived from
// Hour and Minute; use Time to read it.
type Task struct {
	ID          int
	Owner       OwnerID
	Title       string
	Description string
	Date        string // YYYY-MM-DD
	Hour        int
	Minute      int
	Category    string
	CreatedAt   time.Time
}

// Time returns the zero-padded HH:MM form.
func (t Task) Time() string { return formatHHMM(t.Hour, t.Minute) }

// Time12 returns the 12-hour display form.
func (t Task) Time12() string { return Format12(t.Hour, t.Minute) }

func (t Task) less(o Task) bool {
	if t.Date != o.Date {
		return t.Date < o.Date
	}
	if t.Hour != o.Hour {
		return t.Hour < o.Hour
	}
	return t.Minute < o.Minute
}

// legacyCreatedAt is the naive ISO layout older data files carry.
const legacyCreatedAt = "2006-01-02T15:04:05.999999"

type taskJSON struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Hour        *int   `json:"hour"`
	Minute      *int   `json:"minute"`
	Category    string `json:"category"`
	CreatedAt   string `json:"created_at"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	h, m := t.Hour, t.Minute
	var created string
	if !t.CreatedAt.IsZero() {
		created = t.CreatedAt.Format(time.RFC3339Nano)
	}
	return json.Marshal(taskJSON{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Date:        t.Date,
		Time:        t.Time(),
		Hour:        &h,
		Minute:      &m,
		Category:    t.Category,
		CreatedAt:   created,
	})
}

func (t *Task) UnmarshalJSON(b []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := Task{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Date:        raw.Date,
		Category:    raw.Category,
	}
	switch {
	case raw.Hour != nil && raw.Minute != nil:
		out.Hour, out.Minute = *raw.Hour, *raw.Minute
	case strings.TrimSpace(raw.Time) != "":
		h, m, err := parseClock(raw.Time)
		if err != nil {
			return fmt.Errorf("task %d: %w", raw.ID, err)
		}
		out.Hour, out.Minute = h, m
	}
	if out.Category == "" {
		out.Category = CategoryDefault
	}
	if s := strings.TrimSpace(raw.CreatedAt); s != "" {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			ts, err = time.ParseInLocation(legacyCreatedAt, s, time.Local)
		}
		if err != nil {
			return fmt.Errorf("task %d: created_at %q: %w", raw.ID, s, err)
		}
		out.CreatedAt = ts
	}
	*t = out
	return nil
}
