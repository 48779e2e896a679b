package coach

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/repwise/repwise/internal/model"
)

// kgPerLb converts stored kilograms to display pounds.
const kgPerLb = 0.453592

// memoryRecencyDays splits memory notes into recent vs potentially
// outdated sections.
const memoryRecencyDays = 14

// FormattedContext holds the six prompt context strings built once at
// session start. AvailableExercises starts empty and is refilled per
// turn from tool results.
type FormattedContext struct {
	UserProfile         string
	AIMemory            string
	WorkoutHistory      string
	StrengthProgression string
	AvailableExercises  string
	GlossaryTerms       string
}

// FormatContext renders a bundle and profile into the context strings.
// Either input may be nil; missing data degrades to explicit "no data"
// sections so the session can continue for brand-new users.
func FormatContext(b *model.UserContextBundle, profile *model.UserProfile, now time.Time) FormattedContext {
	imperial := profile != nil && profile.IsImperial
	return FormattedContext{
		UserProfile:         formatProfile(profile, now),
		AIMemory:            formatMemory(b, now),
		WorkoutHistory:      formatWorkoutHistory(b, imperial),
		StrengthProgression: formatStrengthProgression(b, imperial),
		AvailableExercises:  "",
		GlossaryTerms:       glossaryTable(),
	}
}

func formatProfile(p *model.UserProfile, now time.Time) string {
	if p == nil {
		return "Name: unknown, Age: unknown, Units: metric"
	}
	age := "unknown"
	switch {
	case p.DateOfBirth != nil:
		age = fmt.Sprintf("%d", yearsBetween(*p.DateOfBirth, now))
	case p.Age != nil:
		age = fmt.Sprintf("%d", *p.Age)
	}
	units := "metric"
	if p.IsImperial {
		units = "imperial"
	}
	return fmt.Sprintf("Name: %s, Age: %s, Units: %s", p.FirstName, age, units)
}

func yearsBetween(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	return years
}

// noteCategoryOrder fixes the render order inside each recency section.
var noteCategoryOrder = []model.NoteCategory{
	model.NoteGoal,
	model.NoteInjury,
	model.NotePreference,
	model.NoteEquipment,
	model.NoteNutrition,
	model.NoteRecovery,
	model.NoteGeneral,
	model.NoteConversationSummary,
}

func formatMemory(b *model.UserContextBundle, now time.Time) string {
	if b == nil || b.AIMemory == nil || len(b.AIMemory.Notes) == 0 {
		return "No memory notes available."
	}

	cutoff := now.AddDate(0, 0, -memoryRecencyDays).Format("2006-01-02")
	recent := map[model.NoteCategory][]model.MemoryNote{}
	outdated := map[model.NoteCategory][]model.MemoryNote{}
	for _, n := range b.AIMemory.Notes {
		if n.Date >= cutoff {
			recent[n.Category] = append(recent[n.Category], n)
		} else {
			outdated[n.Category] = append(outdated[n.Category], n)
		}
	}

	var sb strings.Builder
	writeSection := func(header string, notes map[model.NoteCategory][]model.MemoryNote) {
		if len(notes) == 0 {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(header + ":\n")
		for _, cat := range noteCategoryOrder {
			group := notes[cat]
			if len(group) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "[%s]\n", cat)
			for _, n := range group {
				fmt.Fprintf(&sb, "- %s (noted: %s)\n", n.Text, n.Date)
			}
		}
	}
	writeSection("RECENT MEMORY", recent)
	writeSection("POTENTIALLY OUTDATED MEMORY", outdated)
	return sb.String()
}

// formatWeight renders a stored-kg weight in the user's display unit.
func formatWeight(kg float64, imperial bool) string {
	if imperial {
		return fmt.Sprintf("%.1flbs", kg/kgPerLb)
	}
	return fmt.Sprintf("%.1fkg", kg)
}

func formatWorkoutHistory(b *model.UserContextBundle, imperial bool) string {
	if b == nil || len(b.RecentWorkouts) == 0 {
		return "No workout history available"
	}

	workouts := b.RecentWorkouts
	if len(workouts) > 5 {
		workouts = workouts[:5]
	}

	var sb strings.Builder
	for _, w := range workouts {
		fmt.Fprintf(&sb, "- %s: %s\n", w.CreatedAt.Format("2006-01-02"), w.Name)
		if w.Notes != "" {
			fmt.Fprintf(&sb, "  Notes: %s\n", w.Notes)
		}
		for _, e := range w.Exercises {
			sets := make([]string, 0, len(e.Sets))
			for _, s := range e.Sets {
				sets = append(sets, formatSet(s, imperial))
			}
			fmt.Fprintf(&sb, "    - %s: %s\n", e.Name, strings.Join(sets, ", "))
		}
	}
	return sb.String()
}

func formatSet(s model.WorkoutSet, imperial bool) string {
	switch {
	case s.Reps != nil && s.WeightKg != nil:
		return fmt.Sprintf("%dx%s", *s.Reps, formatWeight(*s.WeightKg, imperial))
	case s.Reps != nil:
		return fmt.Sprintf("%d reps", *s.Reps)
	case s.DurationS != nil:
		return fmt.Sprintf("%.0fs", *s.DurationS)
	case s.DistanceM != nil:
		return fmt.Sprintf("%.0fm", *s.DistanceM)
	default:
		return "logged"
	}
}

func formatStrengthProgression(b *model.UserContextBundle, imperial bool) string {
	if b == nil || b.StrengthData == nil || len(b.StrengthData.ByExercise) == 0 {
		return "No strength data available"
	}

	type entry struct {
		name   string
		best   float64
		series []model.SeriesPoint
	}
	entries := make([]entry, 0, len(b.StrengthData.ByExercise))
	for name, series := range b.StrengthData.ByExercise {
		if len(series) == 0 {
			continue
		}
		best := series[0].Value
		for _, p := range series[1:] {
			if p.Value > best {
				best = p.Value
			}
		}
		entries = append(entries, entry{name: name, best: best, series: series})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].best != entries[b].best {
			return entries[a].best > entries[b].best
		}
		return entries[a].name < entries[b].name
	})
	if len(entries) > 20 {
		entries = entries[:20]
	}

	var sb strings.Builder
	for _, e := range entries {
		first, last := e.series[0].Value, e.series[len(e.series)-1].Value
		delta := last - first
		line := fmt.Sprintf("- %s: best %s", e.name, formatWeight(e.best, imperial))
		if len(e.series) > 1 && first > 0 {
			sign := "+"
			if delta < 0 {
				sign = ""
			}
			line += fmt.Sprintf(", change %s%s (%s%.1f%%)",
				sign, formatWeight(delta, imperial), sign, delta/first*100)
		}
		recent := e.series
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		points := make([]string, 0, len(recent))
		for _, p := range recent {
			points = append(points, fmt.Sprintf("%s: %s", p.Date, formatWeight(p.Value, imperial)))
		}
		line += ", recent: " + strings.Join(points, "; ")
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// glossaryEntry pins a term to the stable id clients resolve
// glossary:// links against.
type glossaryEntry struct {
	term string
	id   string
}

var glossaryEntries = []glossaryEntry{
	{"estimated 1RM", "8c9e7a52-4d31-4f0e-9a6d-1f2b3c4d5e6f"},
	{"RPE", "2b1f0d9c-8e7a-4b65-9c3d-0a1b2c3d4e5f"},
	{"progressive overload", "5a4b3c2d-1e0f-4a9b-8c7d-6e5f4a3b2c1d"},
	{"deload", "9d8c7b6a-5e4f-4d3c-2b1a-0f9e8d7c6b5a"},
	{"hypertrophy", "3e2d1c0b-9a8f-4e7d-6c5b-4a3f2e1d0c9b"},
	{"compound lift", "7f6e5d4c-3b2a-4f1e-0d9c-8b7a6f5e4d3c"},
	{"movement pattern", "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"},
}

func glossaryTable() string {
	var sb strings.Builder
	sb.WriteString("When you mention one of these terms, render it as a markdown link\n")
	sb.WriteString("of the form [term](glossary://UUID) using the table below:\n")
	for _, g := range glossaryEntries {
		fmt.Fprintf(&sb, "- %s: %s\n", g.term, g.id)
	}
	return sb.String()
}
