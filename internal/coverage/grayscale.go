package coverage

// ITU-R BT.601 luma weights.
const (
	lumaRed   = 0.299
	lumaGreen = 0.587
	lumaBlue  = 0.114
)

// Luminance returns the BT.601 luma of an 8-bit RGB sample, in [0,255].
func Luminance(r, g, b uint8) float64 {
	return lumaRed*float64(r) + lumaGreen*float64(g) + lumaBlue*float64(b)
}

// InkIntensity returns the ink a sample needs when printed in monochrome, in [0,1].
// Darker samples need more ink: white is 0 and black is 1.
func InkIntensity(r, g, b uint8) float64 {
	return clampUnit((maxColorValue - Luminance(r, g, b)) / maxColorValue)
}
