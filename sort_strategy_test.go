package main

import (
	"reflect"
	"testing"
)

func getTestNames() []string {
	return []string{
		"vol/01.png",
		"vol/10.png",
		"vol/08.png",
		"vol/09.png",
		"vol/2.png",
	}
}

func TestNaturalSortStrategy(t *testing.T) {
	strategy := &NaturalSortStrategy{}

	t.Run("Name", func(t *testing.T) {
		if strategy.Name() != "Natural" {
			t.Errorf("Expected 'Natural', got '%s'", strategy.Name())
		}
	})

	t.Run("Sort", func(t *testing.T) {
		input := getTestNames()
		expected := []string{"vol/01.png", "vol/2.png", "vol/08.png", "vol/09.png", "vol/10.png"}
		result := strategy.Sort(input)
		if !reflect.DeepEqual(result, expected) {
			t.Errorf("Natural sort failed.\nExpected: %v\nGot: %v", expected, result)
		}
		if !reflect.DeepEqual(input, getTestNames()) {
			t.Error("Sort modified the input slice")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if result := strategy.Sort(nil); len(result) != 0 {
			t.Errorf("Expected empty result, got %v", result)
		}
	})
}

func TestSimpleSortStrategy(t *testing.T) {
	strategy := &SimpleSortStrategy{}
	expected := []string{"vol/01.png", "vol/08.png", "vol/09.png", "vol/10.png", "vol/2.png"}
	if result := strategy.Sort(getTestNames()); !reflect.DeepEqual(result, expected) {
		t.Errorf("Simple sort failed.\nExpected: %v\nGot: %v", expected, result)
	}
}

func TestGetSortStrategy(t *testing.T) {
	tests := []struct {
		method int
		name   string
	}{
		{SortNatural, "Natural"},
		{SortSimple, "Simple"},
		{99, "Natural"},
	}
	for _, tt := range tests {
		if got := GetSortStrategy(tt.method).Name(); got != tt.name {
			t.Errorf("GetSortStrategy(%d) = %s, want %s", tt.method, got, tt.name)
		}
	}
}
