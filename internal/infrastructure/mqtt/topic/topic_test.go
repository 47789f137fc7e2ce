package topic

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		name   string
		want   bool
	}{
		{"garden/sensors", "garden/sensors", true},
		{"garden/sensors", "garden/watering", false},
		{"garden/+", "garden/sensors", true},
		{"garden/+", "garden/bed1/sensors", false},
		{"garden/+/sensors", "garden/bed1/sensors", true},
		{"garden/#", "garden/bed1/sensors", true},
		{"garden/#", "garden/watering", true},
		// A trailing # also matches its parent level.
		{"garden/#", "garden", true},
		{"garden/#", "gardens/x", false},
		{"#", "anything/at/all", true},
		{"+/+", "garden/sensors", true},
		{"+", "garden/sensors", false},
		{"garden/sensors", "garden/sensors/extra", false},
		{"garden/sensors/extra", "garden/sensors", false},
		{"garden/#/x", "garden/a/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"~"+tt.name, func(t *testing.T) {
			if got := Match(tt.filter, tt.name); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.name, got, tt.want)
			}
		})
	}
}
