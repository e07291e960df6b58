package ui

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  uint16
		want float64
	}{
		{512, 0.0},
		{0, -1.0},
		{1023, 0.998046875}, // just short of +1.0, never clamped up
		{256, -0.5},
		{768, 0.5},
	}
	for _, tc := range cases {
		if got := Normalize(tc.raw); got != tc.want {
			t.Errorf("Normalize(%d) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestAxisMarkerStaysOnTrack(t *testing.T) {
	const width = 21
	for _, raw := range []uint16{0, 1, 511, 512, 513, 1022, 1023} {
		pos := axisMarker(raw, width)
		if pos < 0 || pos >= width {
			t.Errorf("axisMarker(%d, %d) = %d, off the track", raw, width, pos)
		}
	}
	if axisMarker(0, width) != 0 {
		t.Errorf("axisMarker(0) = %d, want 0", axisMarker(0, width))
	}
	if axisMarker(1023, width) != width-1 {
		t.Errorf("axisMarker(1023) = %d, want %d", axisMarker(1023, width), width-1)
	}
}
