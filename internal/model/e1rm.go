package model

import "math"

// EstimateOneRM computes the estimated one-rep max for a (weight, reps)
// pair. A single rep is its own max; for reps >= 2 it averages the
// Mayhew estimate with a rep-range-appropriate secondary formula (Epley
// for low reps, Brzycki for moderate, Lombardi for high), rounded to
// two decimals.
//
// Returns nil when weight or reps is non-positive: the estimate is
// undefined for bodyweight-only or malformed sets.
func EstimateOneRM(weightKg float64, reps int) *float64 {
	if weightKg <= 0 || reps <= 0 {
		return nil
	}
	if reps == 1 {
		e1rm := math.Round(weightKg*100) / 100
		return &e1rm
	}

	r := float64(reps)

	mayhew := weightKg / (0.522 + 0.419*math.Exp(-0.055*r))

	var secondary float64
	switch {
	case reps <= 4:
		secondary = weightKg * (1 + 0.0333*r) // Epley
	case reps <= 15:
		secondary = weightKg * (36 / (37 - r)) // Brzycki
	default:
		secondary = weightKg * math.Pow(r, 0.10) // Lombardi
	}

	e1rm := math.Round((mayhew+secondary)/2*100) / 100
	return &e1rm
}
