package pizzeria

import (
	"fmt"
	"time"
)

type PizzaType string

const (
	Margherita PizzaType = "margherita"
	Pepperoni  PizzaType = "pepperoni"
	Supreme    PizzaType = "supreme"
	Hawaiian   PizzaType = "hawaiian"
	Veggie     PizzaType = "veggie"
	MeatLovers PizzaType = "meat_lovers"
)

type Size string

const (
	Small  Size = "small"
	Medium Size = "medium"
	Large  Size = "large"
	XLarge Size = "xlarge"
)

// Base prep/cook durations per size. Jitter is applied at admission time.
var prepTimes = map[Size]time.Duration{
	Small:  120 * time.Second,
	Medium: 180 * time.Second,
	Large:  240 * time.Second,
	XLarge: 300 * time.Second,
}

var cookTimes = map[Size]time.Duration{
	Small:  480 * time.Second,
	Medium: 600 * time.Second,
	Large:  720 * time.Second,
	XLarge: 900 * time.Second,
}

// Every pizza consumes the base, plus type-specific extras.
var baseRecipe = map[string]int{"dough": 1, "sauce": 1, "cheese": 1}

var recipeExtras = map[PizzaType]map[string]int{
	Margherita: {},
	Pepperoni:  {"pepperoni": 2},
	Supreme:    {"pepperoni": 1, "mushrooms": 1, "peppers": 1},
	Hawaiian:   {"ham": 2, "pineapple": 1},
	Veggie:     {"mushrooms": 2, "peppers": 2},
	MeatLovers: {"pepperoni": 2, "ham": 1},
}

// Opening stock for a prep station.
var initialStock = map[string]int{
	"dough":     100,
	"sauce":     100,
	"cheese":    100,
	"pepperoni": 80,
	"mushrooms": 60,
	"peppers":   60,
	"ham":       50,
	"pineapple": 40,
}

func AllPizzaTypes() []PizzaType {
	return []PizzaType{Margherita, Pepperoni, Supreme, Hawaiian, Veggie, MeatLovers}
}

func AllSizes() []Size {
	return []Size{Small, Medium, Large, XLarge}
}

func ParsePizzaType(s string) (PizzaType, error) {
	t := PizzaType(s)
	if _, ok := recipeExtras[t]; !ok {
		return "", fmt.Errorf("unknown pizza type %q", s)
	}
	return t, nil
}

func ParseSize(s string) (Size, error) {
	sz := Size(s)
	if _, ok := prepTimes[sz]; !ok {
		return "", fmt.Errorf("unknown size %q", s)
	}
	return sz, nil
}

// PrepTime returns the base prep duration for a size. Unknown sizes are a
// configuration bug and surface as an error, never a default.
func PrepTime(s Size) (time.Duration, error) {
	d, ok := prepTimes[s]
	if !ok {
		return 0, fmt.Errorf("unknown size %q", s)
	}
	return d, nil
}

func CookTime(s Size) (time.Duration, error) {
	d, ok := cookTimes[s]
	if !ok {
		return 0, fmt.Errorf("unknown size %q", s)
	}
	return d, nil
}

// Recipe returns ingredient requirements for a pizza type. The returned map
// is a fresh copy the caller may mutate.
func Recipe(t PizzaType) (map[string]int, error) {
	extras, ok := recipeExtras[t]
	if !ok {
		return nil, fmt.Errorf("unknown pizza type %q", t)
	}
	r := make(map[string]int, len(baseRecipe)+len(extras))
	for ing, n := range baseRecipe {
		r[ing] = n
	}
	for ing, n := range extras {
		r[ing] += n
	}
	return r, nil
}
