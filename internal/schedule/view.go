package schedule

import (
	"time"
	"unicode/utf8"
)

const (
	ScheduleDays   = 5
	UntitledTask   = "[Untitled Task]"
	scheduleTitle  = 60
	listDescLength = 80
)

type ScheduleView struct {
	Owner OwnerID
	Days  []DayView
}

type DayView struct {
	Date  time.Time
	Key   string // YYYY-MM-DD
	Label string // "Mon Jan 02"
	Tasks []TaskLine
	Empty bool
}

type TaskLine struct {
	ID       int
	Title    string
	Time     string // HH:MM
	Time12   string
	Category string
	Emoji    string
}

// ScheduleView builds the five-day window starting today.
func (s *Store) ScheduleView(owner OwnerID) ScheduleView {
	now := s.now()
	tasks := s.Tasks(owner)

	v := ScheduleView{Owner: owner, Days: make([]DayView, 0, ScheduleDays)}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := 0; i < ScheduleDays; i++ {
		day := start.AddDate(0, 0, i)
		d := DayView{Date: day, Key: day.Format(DateLayout), Label: day.Format("Mon Jan 02")}
		var todays []Task
		for _, t := range tasks {
			if t.Date == d.Key {
				todays = append(todays, t)
			}
		}
		sortTasks(todays)
		for _, t := range todays {
			d.Tasks = append(d.Tasks, TaskLine{
				ID:       t.ID,
				Title:    truncRunes(displayTitle(t.Title), scheduleTitle),
				Time:     t.Time(),
				Time12:   t.Time12(),
				Category: t.Category,
				Emoji:    CategoryEmoji(t.Category),
			})
		}
		d.Empty = len(d.Tasks) == 0
		v.Days = append(v.Days, d)
	}
	return v
}

type ListView struct {
	Owner  OwnerID
	Groups []DateGroup
	Total  int
}

type DateGroup struct {
	Date    string // YYYY-MM-DD
	Weekday string // "Wednesday"
	Label   string // "Wednesday (December 25, 2024)"
	Entries []ListEntry
}

type ListEntry struct {
	ID          int
	Time12      string
	Title       string
	Description string
	Category    string
	Emoji       string
}

// ListView groups every task by date, ascending.
func (s *Store) ListView(owner OwnerID) ListView {
	tasks := s.Tasks(owner)
	v := ListView{Owner: owner, Total: len(tasks)}
	for _, t := range tasks {
		if n := len(v.Groups); n == 0 || v.Groups[n-1].Date != t.Date {
			g := DateGroup{Date: t.Date, Label: t.Date}
			if d, err := time.Parse(DateLayout, t.Date); err == nil {
				g.Weekday = d.Format("Monday")
				g.Label = g.Weekday + " (" + d.Format("January 02, 2006") + ")"
			}
			v.Groups = append(v.Groups, g)
		}
		g := &v.Groups[len(v.Groups)-1]
		g.Entries = append(g.Entries, ListEntry{
			ID:          t.ID,
			Time12:      t.Time12(),
			Title:       displayTitle(t.Title),
			Description: truncRunes(t.Description, listDescLength),
			Category:    t.Category,
			Emoji:       CategoryEmoji(t.Category),
		})
	}
	return v
}

func displayTitle(s string) string {
	if s == "" {
		return UntitledTask
	}
	return s
}

func truncRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
