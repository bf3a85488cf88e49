package main

import (
	"sort"

	"github.com/maruel/natural"
)

// SortStrategy orders page file names when pages are built from image files.
type SortStrategy interface {
	// Sort returns a new sorted slice without modifying the original
	Sort(names []string) []string
	// Name returns the human-readable name of the strategy
	Name() string
	// ID returns the numeric identifier for config storage
	ID() int
}

// NaturalSortStrategy orders numbered files the way a reader expects
// (page2 before page10).
type NaturalSortStrategy struct{}

func (s *NaturalSortStrategy) Sort(names []string) []string {
	result := make([]string, len(names))
	copy(result, names)

	sort.SliceStable(result, func(i, j int) bool {
		return natural.Less(result[i], result[j])
	})
	return result
}

func (s *NaturalSortStrategy) Name() string { return "Natural" }
func (s *NaturalSortStrategy) ID() int      { return SortNatural }

// SimpleSortStrategy implements lexicographical sorting
type SimpleSortStrategy struct{}

func (s *SimpleSortStrategy) Sort(names []string) []string {
	result := make([]string, len(names))
	copy(result, names)

	sort.Strings(result)
	return result
}

func (s *SimpleSortStrategy) Name() string { return "Simple" }
func (s *SimpleSortStrategy) ID() int      { return SortSimple }

// GetSortStrategy returns the strategy for a config sort method, defaulting
// to natural order.
func GetSortStrategy(sortMethod int) SortStrategy {
	switch sortMethod {
	case SortSimple:
		return &SimpleSortStrategy{}
	default:
		return &NaturalSortStrategy{}
	}
}
