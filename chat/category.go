package chat

import (
	"fmt"
	"strings"
)

// Category is a data set the backend answers questions about.
type Category string

const (
	CategoryEnergy      Category = "energy"
	CategoryWater       Category = "water"
	CategoryCO2         Category = "co2"
	CategoryWaste       Category = "waste"
	CategoryEnvironment Category = "environment"
)

var Categories = []Category{
	CategoryEnergy,
	CategoryWater,
	CategoryCO2,
	CategoryWaste,
	CategoryEnvironment,
}

var labels = map[Category]string{
	CategoryEnergy:      "Energy",
	CategoryWater:       "Water",
	CategoryCO2:         "Emission",
	CategoryWaste:       "Waste",
	CategoryEnvironment: "Environment",
}

func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// ParseCategory accepts a category key or its display label.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if s == string(c) || s == strings.ToLower(c.Label()) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}
