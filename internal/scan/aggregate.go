package scan

import "math"

type Totals struct {
	Calories int
	Protein  float64
	Carbs    float64
	Fat      float64
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Aggregate reduces per-ingredient records into meal totals. Order-independent;
// an empty list is a valid meal with all-zero totals.
func Aggregate(items []MealIngredient) Totals {
	var cal, p, c, f float64
	for _, it := range items {
		cal += it.Calories
		p += it.Macros.Protein
		c += it.Macros.Carbs
		f += it.Macros.Fat
	}
	return Totals{
		Calories: int(math.Round(cal)),
		Protein:  round1(p),
		Carbs:    round1(c),
		Fat:      round1(f),
	}
}
