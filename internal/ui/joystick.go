package ui

// Normalize maps a raw axis sample (0..1023, 512 at rest) onto the
// -1.0..+1.0 range. The mapping is a pure linear transform: raw 0 is
// exactly -1.0, raw 512 is exactly 0.0, and raw 1023 lands just short
// of +1.0. No clamping, no dead zone.
func Normalize(raw uint16) float64 {
	return (float64(raw) - 512) / 512
}

// axisMarker returns the marker cell index for a raw axis value on a
// track of the given width.
func axisMarker(raw uint16, width int) int {
	if width < 1 {
		return 0
	}
	pos := int(float64(raw) / 1023 * float64(width-1))
	if pos < 0 {
		pos = 0
	}
	if pos > width-1 {
		pos = width - 1
	}
	return pos
}
