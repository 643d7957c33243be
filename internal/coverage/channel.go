// Package coverage estimates how much ink a rendered page needs. It converts pixel
// samples into cyan, magenta, yellow and black intensities, averages them over the
// page and summarizes a sequence of pages into document-level figures.
package coverage

const maxColorValue = 255.0

// ToCMYK converts one normalized RGB sample (each component in [0,1]) into
// subtractive primaries using the naive, non color-managed transform.
//
// A pure black sample (key == 1) carries no colour ink: cyan, magenta and yellow are
// zero instead of the undefined 0/0 the formula would produce.
func ToCMYK(r, g, b float64) (c, m, y, k float64) {
	k = 1 - max(r, g, b)
	if k >= 1 {
		return 0, 0, 0, 1
	}

	white := 1 - k
	c = clampUnit((1 - r - k) / white)
	m = clampUnit((1 - g - k) / white)
	y = clampUnit((1 - b - k) / white)

	return c, m, y, clampUnit(k)
}

// toCMYK8 is ToCMYK for 8-bit samples.
func toCMYK8(r, g, b uint8) (c, m, y, k float64) {
	return ToCMYK(
		float64(r)/maxColorValue,
		float64(g)/maxColorValue,
		float64(b)/maxColorValue,
	)
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
