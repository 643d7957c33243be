package coverage

import "fmt"

const percent = 100.0

// ColorCoverage holds per-channel ink coverage of a colour print, in percent.
// Total is the mean of the four channels, so it stays within [0,100].
type ColorCoverage struct {
	Cyan    float64 `json:"cyan"`
	Magenta float64 `json:"magenta"`
	Yellow  float64 `json:"yellow"`
	Black   float64 `json:"black"`
	Total   float64 `json:"total"`
}

// GrayscaleCoverage holds the ink coverage of a monochrome print, in percent.
type GrayscaleCoverage struct {
	Black float64 `json:"black"`
}

// Dimensions is the physical page size in inches.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageCoverage is the analysis result for one page.
type PageCoverage struct {
	ColorCoverage     ColorCoverage     `json:"colorCoverage"`
	GrayscaleCoverage GrayscaleCoverage `json:"grayscaleCoverage"`
	Dimensions        Dimensions        `json:"dimensions"`
	PageNumber        int               `json:"pageNumber"`
	DPI               int               `json:"dpi"`
}

// AnalyzePage measures the ink coverage of one page.
//
// colorPass is sampled for the CMYK channels and grayPass for the monochrome
// estimate. The two passes are sampled independently because a monochrome render may
// anti-alias differently; callers with a single render pass the same buffer twice.
func AnalyzePage(colorPass, grayPass *PixelBuffer, dpi, pageNumber int) (PageCoverage, error) {
	validateErr := validatePage(colorPass, grayPass, dpi, pageNumber)
	if validateErr != nil {
		return PageCoverage{}, validateErr
	}

	cyan, magenta, yellow, black := sumCMYK(colorPass)
	gray := sumInk(grayPass)

	pixels := float64(colorPass.PixelCount())
	colorCoverage := ColorCoverage{
		Cyan:    cyan / pixels * percent,
		Magenta: magenta / pixels * percent,
		Yellow:  yellow / pixels * percent,
		Black:   black / pixels * percent,
		Total:   0,
	}
	colorCoverage.Total = (colorCoverage.Cyan + colorCoverage.Magenta +
		colorCoverage.Yellow + colorCoverage.Black) / 4

	return PageCoverage{
		PageNumber:        pageNumber,
		ColorCoverage:     colorCoverage,
		GrayscaleCoverage: GrayscaleCoverage{Black: gray / float64(grayPass.PixelCount()) * percent},
		Dimensions: Dimensions{
			Width:  float64(colorPass.Width) / float64(dpi),
			Height: float64(colorPass.Height) / float64(dpi),
		},
		DPI: dpi,
	}, nil
}

func validatePage(colorPass, grayPass *PixelBuffer, dpi, pageNumber int) error {
	if pageNumber < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageNumber, pageNumber)
	}

	if dpi <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidResolution, dpi)
	}

	colorErr := colorPass.validate()
	if colorErr != nil {
		return fmt.Errorf("colour pass of page %d: %w", pageNumber, colorErr)
	}

	grayErr := grayPass.validate()
	if grayErr != nil {
		return fmt.Errorf("grayscale pass of page %d: %w", pageNumber, grayErr)
	}

	if colorPass.Width != grayPass.Width || colorPass.Height != grayPass.Height {
		return fmt.Errorf(
			"%w: colour pass is %dx%d but grayscale pass is %dx%d",
			ErrInvalidBuffer,
			colorPass.Width,
			colorPass.Height,
			grayPass.Width,
			grayPass.Height,
		)
	}

	return nil
}

// sumCMYK accumulates per-channel intensities over every pixel.
func sumCMYK(buf *PixelBuffer) (cyan, magenta, yellow, black float64) {
	end := buf.PixelCount() * bytesPerPixel
	for i := 0; i < end; i += bytesPerPixel {
		c, m, y, k := toCMYK8(buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2])
		cyan += c
		magenta += m
		yellow += y
		black += k
	}

	return cyan, magenta, yellow, black
}

// sumInk accumulates the monochrome ink intensity over every pixel.
func sumInk(buf *PixelBuffer) float64 {
	var total float64

	end := buf.PixelCount() * bytesPerPixel
	for i := 0; i < end; i += bytesPerPixel {
		total += InkIntensity(buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2])
	}

	return total
}
