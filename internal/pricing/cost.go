package pricing

import (
	"fmt"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
)

const percent = 100.0

// colorChannels is the number of channels a combined colour cartridge serves.
const colorChannels = 3

// ChannelCosts is the per-channel share of a page's colour cost.
type ChannelCosts struct {
	Cyan    float64 `json:"cyan"`
	Magenta float64 `json:"magenta"`
	Yellow  float64 `json:"yellow"`
	Black   float64 `json:"black"`
}

// PageCost is the estimated ink cost of one page printed in colour and in grayscale.
type PageCost struct {
	// ColorDetails is only set in separate mode.
	ColorDetails  *ChannelCosts `json:"colorDetails,omitempty"`
	PageNumber    int           `json:"pageNumber"`
	ColorCost     float64       `json:"colorCost"`
	GrayscaleCost float64       `json:"grayscaleCost"`
}

// Savings is what printing this page in grayscale saves. Negative when grayscale
// printing is the more expensive option.
func (cost PageCost) Savings() float64 {
	return cost.ColorCost - cost.GrayscaleCost
}

// DocumentCost holds per-page costs in page order and their totals.
type DocumentCost struct {
	Pages         []PageCost `json:"pages"`
	ColorCost     float64    `json:"colorCost"`
	GrayscaleCost float64    `json:"grayscaleCost"`
	// PotentialSavings is total colour cost minus total grayscale cost, in currency.
	PotentialSavings float64 `json:"potentialSavings"`
}

// ComputePage prices one analyzed page.
func ComputePage(page coverage.PageCoverage, pricing CartridgePricing) (PageCost, error) {
	validateErr := pricing.Validate()
	if validateErr != nil {
		return PageCost{}, validateErr
	}

	return computeValidated(page, pricing), nil
}

// ComputeDocument prices every page of a document and totals the result. The pricing
// is validated once before any page is priced.
func ComputeDocument(
	pages []coverage.PageCoverage,
	pricing CartridgePricing,
) (DocumentCost, error) {
	if len(pages) == 0 {
		return DocumentCost{}, coverage.ErrEmptyDocument
	}

	validateErr := pricing.Validate()
	if validateErr != nil {
		return DocumentCost{}, validateErr
	}

	orderErr := coverage.CheckOrder(pages)
	if orderErr != nil {
		return DocumentCost{}, fmt.Errorf("cannot price document: %w", orderErr)
	}

	result := DocumentCost{
		Pages:            make([]PageCost, 0, len(pages)),
		ColorCost:        0,
		GrayscaleCost:    0,
		PotentialSavings: 0,
	}

	for _, page := range pages {
		pageCost := computeValidated(page, pricing)
		result.Pages = append(result.Pages, pageCost)
		result.ColorCost += pageCost.ColorCost
		result.GrayscaleCost += pageCost.GrayscaleCost
	}

	result.PotentialSavings = result.ColorCost - result.GrayscaleCost

	return result, nil
}

func computeValidated(page coverage.PageCoverage, pricing CartridgePricing) PageCost {
	if pricing.Mode == ModeCombined {
		return computeCombined(page, pricing.Combined)
	}

	return computeSeparate(page, pricing.Separate)
}

// computeSeparate charges each channel against its own cartridge. Grayscale output
// only draws on the black cartridge.
func computeSeparate(page coverage.PageCoverage, cartridges SeparateCartridges) PageCost {
	ink := page.ColorCoverage
	details := ChannelCosts{
		Cyan:    ink.Cyan / percent * cartridges.Cyan.CostPerPage(),
		Magenta: ink.Magenta / percent * cartridges.Magenta.CostPerPage(),
		Yellow:  ink.Yellow / percent * cartridges.Yellow.CostPerPage(),
		Black:   ink.Black / percent * cartridges.Black.CostPerPage(),
	}

	return PageCost{
		ColorDetails:  &details,
		PageNumber:    page.PageNumber,
		ColorCost:     details.Cyan + details.Magenta + details.Yellow + details.Black,
		GrayscaleCost: page.GrayscaleCoverage.Black / percent * cartridges.Black.CostPerPage(),
	}
}

// computeCombined charges the mean of cyan, magenta and yellow against the colour
// cartridge and black against the key cartridge.
func computeCombined(page coverage.PageCoverage, cartridges CombinedCartridges) PageCost {
	ink := page.ColorCoverage
	colorFraction := (ink.Cyan + ink.Magenta + ink.Yellow) / (colorChannels * percent)
	keyCost := cartridges.Key.CostPerPage()

	return PageCost{
		ColorDetails:  nil,
		PageNumber:    page.PageNumber,
		ColorCost:     colorFraction*cartridges.Color.CostPerPage() + ink.Black/percent*keyCost,
		GrayscaleCost: page.GrayscaleCoverage.Black / percent * keyCost,
	}
}
