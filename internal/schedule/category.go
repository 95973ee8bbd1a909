package schedule

import "strings"

const (
	CategoryWork     = "work"
	CategoryStudy    = "study"
	CategoryGym      = "gym"
	CategoryPersonal = "personal"
	CategoryProject  = "project"
	CategoryDefault  = "default"
)

type categoryStyle struct {
	emoji string
	color string
}

var categoryStyles = map[string]categoryStyle{
	CategoryWork:     {"💼", "🟦"},
	CategoryStudy:    {"📘", "🟩"},
	CategoryGym:      {"💪", "🟥"},
	CategoryPersonal: {"🧘", "🟨"},
	CategoryProject:  {"🛠️", "🟪"},
	CategoryDefault:  {"📝", "⚪"},
}

// Categories lists the known categories in menu order.
func Categories() []string {
	return []string{CategoryWork, CategoryStudy, CategoryGym, CategoryPersonal, CategoryProject, CategoryDefault}
}

// NormalizeCategory lower-cases the input. Unknown values are kept.
func NormalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryDefault
	}
	return s
}

func IsKnownCategory(s string) bool {
	_, ok := categoryStyles[s]
	return ok
}

func CategoryEmoji(cat string) string {
	if st, ok := categoryStyles[cat]; ok {
		return st.emoji
	}
	return categoryStyles[CategoryDefault].emoji
}

func CategoryColor(cat string) string {
	if st, ok := categoryStyles[cat]; ok {
		return st.color
	}
	return categoryStyles[CategoryDefault].color
}
