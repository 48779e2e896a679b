// Package bundle computes and regenerates user context bundles: the
// precomputed workout analysis snapshots the coach session reads at
// startup.
//
// Process is pure (workouts + definitions + clock in, bundle out) so it
// can be tested without a database. Generator owns the lifecycle around
// it: pending row, fetch, process, complete, prune.
package bundle

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/catalog"
	"github.com/repwise/repwise/internal/model"
)

// recentWindowDays bounds the recent_workouts section. The boundary is
// inclusive: a workout exactly this many days old is kept.
const recentWindowDays = 14

// Process turns raw workouts and catalog definitions into a populated
// bundle. Sections are computed independently: a failing section is
// emitted empty and its error recorded in metadata, the rest of the
// bundle stays usable. The output is deterministic for identical input.
func Process(workouts []model.Workout, defs []model.ExerciseDefinition, now time.Time) *model.UserContextBundle {
	b := &model.UserContextBundle{
		Status: model.BundleComplete,
		Metadata: &model.BundleMetadata{
			BundleType: "workout_analysis",
			DataWindow: "30d",
		},
	}

	section(b, "general_workout_data", func() {
		b.GeneralWorkoutData = generalData(workouts)
	})
	section(b, "recent_workouts", func() {
		b.RecentWorkouts = recentWorkouts(workouts, now)
	})
	section(b, "volume_data", func() {
		b.VolumeData = volumeData(workouts)
	})
	section(b, "strength_data", func() {
		b.StrengthData = strengthData(workouts)
	})
	section(b, "consistency_data", func() {
		b.ConsistencyData = consistencyData(workouts)
	})
	section(b, "muscle_group_balance", func() {
		b.MuscleGroupBalance = muscleBalance(workouts, defs)
	})

	return b
}

// section runs one computation, converting a panic into a metadata
// error so a bad section never takes down the whole bundle.
func section(b *model.UserContextBundle, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.Metadata.Errors = append(b.Metadata.Errors, fmt.Sprintf("%s: %v", name, r))
		}
	}()
	fn()
}

func generalData(workouts []model.Workout) *model.GeneralWorkoutData {
	g := &model.GeneralWorkoutData{
		TotalWorkouts:     len(workouts),
		ExercisesIncluded: []string{},
		ExerciseFrequency: map[string]int{},
	}
	for _, w := range workouts {
		for _, e := range w.Exercises {
			// Frequency counts sets, not occurrences.
			g.ExerciseFrequency[e.Name] += len(e.Sets)
		}
	}
	for name := range g.ExerciseFrequency {
		g.ExercisesIncluded = append(g.ExercisesIncluded, name)
	}
	sort.Strings(g.ExercisesIncluded)
	g.UniqueExerciseCount = len(g.ExercisesIncluded)

	if len(workouts) > 0 {
		earliest, latest := workouts[0].CreatedAt, workouts[0].CreatedAt
		for _, w := range workouts[1:] {
			if w.CreatedAt.Before(earliest) {
				earliest = w.CreatedAt
			}
			if w.CreatedAt.After(latest) {
				latest = w.CreatedAt
			}
		}
		g.DateRange = &model.DateRange{
			Earliest: earliest.Format("2006-01-02"),
			Latest:   latest.Format("2006-01-02"),
		}
	}
	return g
}

func recentWorkouts(workouts []model.Workout, now time.Time) []model.Workout {
	cutoff := now.AddDate(0, 0, -recentWindowDays)
	out := []model.Workout{}
	for _, w := range workouts {
		if w.CreatedAt.Before(cutoff) {
			continue
		}
		cp := w
		cp.Exercises = make([]model.WorkoutExercise, len(w.Exercises))
		copy(cp.Exercises, w.Exercises)
		for i := range cp.Exercises {
			sets := make([]model.WorkoutSet, len(cp.Exercises[i].Sets))
			copy(sets, cp.Exercises[i].Sets)
			sort.Slice(sets, func(a, b int) bool { return sets[a].SetNumber < sets[b].SetNumber })
			cp.Exercises[i].Sets = sets
		}
		// Name order: order_index is missing from some historic rows,
		// so the display order is lexicographic throughout.
		sort.Slice(cp.Exercises, func(a, b int) bool { return cp.Exercises[a].Name < cp.Exercises[b].Name })
		out = append(out, cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func volumeData(workouts []model.Workout) *model.VolumeData {
	v := &model.VolumeData{ByExercise: map[string][]model.SeriesPoint{}}

	type key struct{ name, date string }
	byDay := map[key]float64{}
	var latest string

	for _, w := range workouts {
		date := w.CreatedAt.Format("2006-01-02")
		if date > latest {
			latest = date
		}
		for _, e := range w.Exercises {
			for _, s := range e.Sets {
				var vol float64
				if s.WeightKg != nil && s.Reps != nil {
					vol = *s.WeightKg * float64(*s.Reps)
				}
				byDay[key{e.Name, date}] += vol
				v.TotalVolumeKg += vol
			}
		}
	}

	for k, vol := range byDay {
		v.ByExercise[k.name] = append(v.ByExercise[k.name], model.SeriesPoint{Date: k.date, Value: vol})
		if k.date == latest {
			v.TodayVolumeKg += vol
		}
	}
	for name := range v.ByExercise {
		s := v.ByExercise[name]
		sort.Slice(s, func(a, b int) bool { return s[a].Date < s[b].Date })
	}
	return v
}

func strengthData(workouts []model.Workout) *model.StrengthData {
	sd := &model.StrengthData{ByExercise: map[string][]model.SeriesPoint{}}

	type key struct{ name, date string }
	best := map[key]float64{}

	for _, w := range workouts {
		date := w.CreatedAt.Format("2006-01-02")
		for _, e := range w.Exercises {
			for _, s := range e.Sets {
				if s.EstimatedOneRM == nil {
					continue
				}
				k := key{e.Name, date}
				if *s.EstimatedOneRM > best[k] {
					best[k] = *s.EstimatedOneRM
				}
			}
		}
	}

	for k, v := range best {
		sd.ByExercise[k.name] = append(sd.ByExercise[k.name], model.SeriesPoint{Date: k.date, Value: v})
	}
	for name := range sd.ByExercise {
		s := sd.ByExercise[name]
		sort.Slice(s, func(a, b int) bool { return s[a].Date < s[b].Date })
	}
	return sd
}

func consistencyData(workouts []model.Workout) *model.ConsistencyData {
	c := &model.ConsistencyData{}
	if len(workouts) < 2 {
		return c
	}

	times := make([]time.Time, len(workouts))
	for i, w := range workouts {
		times[i] = w.CreatedAt
	}
	sort.Slice(times, func(a, b int) bool { return times[a].Before(times[b]) })

	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Hours()/24)
	}

	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	c.AvgDaysBetween = &mean

	// Population variance needs at least two gaps (three workouts).
	if len(gaps) >= 2 {
		var ss float64
		for _, g := range gaps {
			d := g - mean
			ss += d * d
		}
		variance := ss / float64(len(gaps))
		c.Variance = &variance
	}
	return c
}

func muscleBalance(workouts []model.Workout, defs []model.ExerciseDefinition) *model.MuscleGroupBalance {
	byID := make(map[uuid.UUID]model.ExerciseDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	counts := map[string]int{}
	totalInstances := 0
	totalSets := 0

	for _, w := range workouts {
		for _, e := range w.Exercises {
			totalSets += len(e.Sets)
			if e.ExerciseDefinitionID == nil {
				continue
			}
			def, ok := byID[*e.ExerciseDefinitionID]
			if !ok {
				continue
			}
			for _, muscle := range def.PrimaryMuscles {
				group := catalog.MuscleGroupFor(muscle)
				if group == catalog.GroupOther {
					continue
				}
				counts[group] += len(e.Sets)
				totalInstances += len(e.Sets)
			}
		}
	}

	mb := &model.MuscleGroupBalance{TotalSets: totalSets, Distribution: []model.MuscleGroupShare{}}
	if totalInstances == 0 {
		return mb
	}
	for group, n := range counts {
		pct := math.Round(float64(n)/float64(totalInstances)*1000) / 10
		mb.Distribution = append(mb.Distribution, model.MuscleGroupShare{Group: group, Percentage: pct})
	}
	sort.Slice(mb.Distribution, func(a, b int) bool {
		if mb.Distribution[a].Percentage != mb.Distribution[b].Percentage {
			return mb.Distribution[a].Percentage > mb.Distribution[b].Percentage
		}
		return mb.Distribution[a].Group < mb.Distribution[b].Group
	})
	return mb
}
