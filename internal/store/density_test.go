package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApproximationRate(t *testing.T) {
	tests := []struct {
		zoom int
		want float64
	}{
		{20, 0.0000001},
		{19, 0.0000001},
		{18, 0.00000025},
		{15, 0.000001},
		{14, 0.000025},
		{11, 0.00015},
		{9, 0.00045},
		{7, 0.00225},
		{6, 0.009},
		{3, 0.036},
		{1, 0.144},
		{0, 0.576},
		{21, 0.576},
		{-1, 0.576},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ApproximationRate(tt.zoom), "zoom %d", tt.zoom)
	}
}

func TestDecimate(t *testing.T) {
	seq := func(n int) []int {
		s := make([]int, n)
		for i := range s {
			s[i] = i
		}
		return s
	}

	tests := []struct {
		name    string
		in      int
		wantLen int
		step    int
	}{
		{"empty", 0, 0, 1},
		{"at threshold", 100, 100, 1},
		{"just above", 101, 51, 2},
		{"large", 250, 50, 5},
		{"uneven", 137, 69, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Decimate(seq(tt.in))
			assert.Len(t, out, tt.wantLen)
			for i, v := range out {
				assert.Equal(t, i*tt.step, v)
			}
		})
	}
}

func TestParseNodeTags(t *testing.T) {
	assert.Empty(t, parseNodeTags(""))
	assert.Equal(t,
		map[string]string{"name": "A=B, C", "shop": "bakery", "fixme": ""},
		parseNodeTags("name=A=B, C\x1fshop=bakery\x1ffixme"))
}
