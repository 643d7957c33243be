package coverage

import "fmt"

// DocumentCoverage summarizes the pages of one document.
type DocumentCoverage struct {
	ColorCoverage     ColorCoverage     `json:"colorCoverage"`
	GrayscaleCoverage GrayscaleCoverage `json:"grayscaleCoverage"`
	// PotentialSavings is mean colour coverage minus mean grayscale coverage, in
	// percentage points. It is not a currency amount.
	PotentialSavings float64 `json:"potentialSavings"`
	Pages            int     `json:"pages"`
}

// Summarize averages page coverage across a document. Pages must be ordered by
// strictly increasing page number.
func Summarize(pages []PageCoverage) (DocumentCoverage, error) {
	if len(pages) == 0 {
		return DocumentCoverage{}, ErrEmptyDocument
	}

	orderErr := CheckOrder(pages)
	if orderErr != nil {
		return DocumentCoverage{}, orderErr
	}

	var sum ColorCoverage

	var graySum float64

	for _, page := range pages {
		sum.Cyan += page.ColorCoverage.Cyan
		sum.Magenta += page.ColorCoverage.Magenta
		sum.Yellow += page.ColorCoverage.Yellow
		sum.Black += page.ColorCoverage.Black
		sum.Total += page.ColorCoverage.Total
		graySum += page.GrayscaleCoverage.Black
	}

	count := float64(len(pages))
	mean := ColorCoverage{
		Cyan:    sum.Cyan / count,
		Magenta: sum.Magenta / count,
		Yellow:  sum.Yellow / count,
		Black:   sum.Black / count,
		Total:   sum.Total / count,
	}
	grayMean := graySum / count

	return DocumentCoverage{
		ColorCoverage:     mean,
		GrayscaleCoverage: GrayscaleCoverage{Black: grayMean},
		PotentialSavings:  mean.Total - grayMean,
		Pages:             len(pages),
	}, nil
}

// CheckOrder verifies that page numbers start at 1 or later and strictly increase.
func CheckOrder(pages []PageCoverage) error {
	previous := 0
	for index, page := range pages {
		if page.PageNumber <= previous {
			return fmt.Errorf(
				"%w: entry %d has page %d after page %d",
				ErrPageOrder,
				index,
				page.PageNumber,
				previous,
			)
		}

		previous = page.PageNumber
	}

	return nil
}
