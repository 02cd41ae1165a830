package placeholder

import (
	"reflect"
	"testing"
)

func TestParsePalette(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		want       []string
	}{
		{
			"four tokens",
			"ff0000 00ff00 0000ff 000000",
			[]string{"ff0000", "00ff00", "0000ff", "000000"},
		},
		{
			"malformed tokens dropped",
			"ff0000 banana 00ff00 12345 zzzzzz",
			[]string{"ff0000", "00ff00"},
		},
		{
			"uppercase normalized",
			"FF00AA",
			[]string{"ff00aa"},
		},
		{
			"blob format",
			"ff000000ff000000ff000000",
			[]string{"ff0000", "00ff00", "0000ff", "000000"},
		},
		{
			"blob trailing partial dropped",
			"ff000000ff00aa",
			[]string{"ff0000", "00ff00"},
		},
		{"empty", "", nil},
		{"whitespace only", "   \t\n ", nil},
		{"nothing valid", "ghijkl mnopqr", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePalette(tt.descriptor)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePalette(%q) = %v, want %v", tt.descriptor, got, tt.want)
			}
		})
	}
}

func TestGridSide(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{1, 1}, {4, 2}, {9, 3}, {16, 4}, {25, 5},
		{2, 0}, {3, 0}, {5, 0}, {8, 0}, {15, 0},
	}
	for _, tt := range tests {
		if got := gridSide(tt.n); got != tt.want {
			t.Errorf("gridSide(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
