package coverage_test

import (
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
)

const percentDelta = 1e-6

var (
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

func TestAnalyzePage_SolidPages(t *testing.T) {
	t.Parallel()

	t.Run("Pure black page", func(t *testing.T) {
		t.Parallel()

		page := coverage.Filled(40, 30, black)
		result, err := coverage.AnalyzePage(page, page, 10, 1)
		require.NoError(t, err)

		assert.InDelta(t, 100, result.ColorCoverage.Black, percentDelta)
		assert.InDelta(t, 0, result.ColorCoverage.Cyan, percentDelta)
		assert.InDelta(t, 0, result.ColorCoverage.Magenta, percentDelta)
		assert.InDelta(t, 0, result.ColorCoverage.Yellow, percentDelta)
		assert.InDelta(t, 25, result.ColorCoverage.Total, percentDelta)
		assert.InDelta(t, 100, result.GrayscaleCoverage.Black, percentDelta)
	})

	t.Run("Pure white page", func(t *testing.T) {
		t.Parallel()

		page := coverage.Filled(40, 30, white)
		result, err := coverage.AnalyzePage(page, page, 10, 1)
		require.NoError(t, err)

		assert.Equal(t, coverage.ColorCoverage{Cyan: 0, Magenta: 0, Yellow: 0, Black: 0, Total: 0},
			result.ColorCoverage)
		assert.InDelta(t, 0, result.GrayscaleCoverage.Black, percentDelta)
	})

	t.Run("Half black half white", func(t *testing.T) {
		t.Parallel()

		page := coverage.Filled(10, 10, white)
		for i := 0; i < len(page.Pix)/2; i += 4 {
			page.Pix[i], page.Pix[i+1], page.Pix[i+2] = 0, 0, 0
		}

		result, err := coverage.AnalyzePage(page, page, 10, 3)
		require.NoError(t, err)
		assert.InDelta(t, 50, result.ColorCoverage.Black, percentDelta)
		assert.InDelta(t, 12.5, result.ColorCoverage.Total, percentDelta)
		assert.InDelta(t, 50, result.GrayscaleCoverage.Black, percentDelta)
		assert.Equal(t, 3, result.PageNumber)
	})
}

func TestAnalyzePage_DimensionsFromResolution(t *testing.T) {
	t.Parallel()

	page := coverage.Filled(850, 1100, white)
	result, err := coverage.AnalyzePage(page, page, 100, 2)
	require.NoError(t, err)

	assert.InDelta(t, 8.5, result.Dimensions.Width, percentDelta)
	assert.InDelta(t, 11, result.Dimensions.Height, percentDelta)
	assert.Equal(t, 100, result.DPI)
	assert.Equal(t, 2, result.PageNumber)
}

func TestAnalyzePage_PassesAreIndependent(t *testing.T) {
	t.Parallel()

	colorPass := coverage.Filled(8, 8, black)
	grayPass := coverage.Filled(8, 8, white)

	result, err := coverage.AnalyzePage(colorPass, grayPass, 72, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100, result.ColorCoverage.Black, percentDelta)
	assert.InDelta(t, 0, result.GrayscaleCoverage.Black, percentDelta)
}

func TestAnalyzePage_TotalNeverExceedsHundred(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 42))

	for range 50 {
		width := 1 + rng.IntN(32)
		height := 1 + rng.IntN(32)
		pix := make([]uint8, width*height*4)

		for i := range pix {
			pix[i] = uint8(rng.UintN(256))
		}

		page, err := coverage.NewPixelBuffer(width, height, pix)
		require.NoError(t, err)

		result, err := coverage.AnalyzePage(page, page, 72, 1)
		require.NoError(t, err)

		channels := []float64{
			result.ColorCoverage.Cyan,
			result.ColorCoverage.Magenta,
			result.ColorCoverage.Yellow,
			result.ColorCoverage.Black,
			result.ColorCoverage.Total,
			result.GrayscaleCoverage.Black,
		}
		for _, value := range channels {
			require.GreaterOrEqual(t, value, 0.0)
			require.LessOrEqual(t, value, 100.0)
		}
	}
}

func TestAnalyzePage_Errors(t *testing.T) {
	t.Parallel()

	valid := coverage.Filled(4, 4, white)
	empty := coverage.Filled(0, 0, white)

	testCases := []struct {
		wantErr    error
		colorPass  *coverage.PixelBuffer
		grayPass   *coverage.PixelBuffer
		name       string
		dpi        int
		pageNumber int
	}{
		{
			name:      "Zero area colour pass",
			colorPass: empty, grayPass: empty, dpi: 72, pageNumber: 1,
			wantErr: coverage.ErrInvalidBuffer,
		},
		{
			name:      "Nil grayscale pass",
			colorPass: valid, grayPass: nil, dpi: 72, pageNumber: 1,
			wantErr: coverage.ErrInvalidBuffer,
		},
		{
			name:      "Mismatched passes",
			colorPass: valid, grayPass: coverage.Filled(4, 5, white), dpi: 72, pageNumber: 1,
			wantErr: coverage.ErrInvalidBuffer,
		},
		{
			name:      "Zero dpi",
			colorPass: valid, grayPass: valid, dpi: 0, pageNumber: 1,
			wantErr: coverage.ErrInvalidResolution,
		},
		{
			name:      "Page zero",
			colorPass: valid, grayPass: valid, dpi: 72, pageNumber: 0,
			wantErr: coverage.ErrInvalidPageNumber,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := coverage.AnalyzePage(
				testCase.colorPass,
				testCase.grayPass,
				testCase.dpi,
				testCase.pageNumber,
			)
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestNewPixelBuffer(t *testing.T) {
	t.Parallel()

	buf, err := coverage.NewPixelBuffer(2, 2, make([]uint8, 16))
	require.NoError(t, err)
	assert.Equal(t, 4, buf.PixelCount())

	_, err = coverage.NewPixelBuffer(2, 2, make([]uint8, 15))
	require.ErrorIs(t, err, coverage.ErrInvalidBuffer)

	_, err = coverage.NewPixelBuffer(-1, 2, nil)
	require.ErrorIs(t, err, coverage.ErrInvalidBuffer)
}

func TestNewPixelBuffer_TranslucentPixelsAreFlattened(t *testing.T) {
	t.Parallel()

	// Fully transparent black, then half-transparent black, then opaque red.
	pix := []uint8{
		0, 0, 0, 0,
		0, 0, 0, 128,
		255, 0, 0, 255,
	}
	original := append([]uint8(nil), pix...)

	buf, err := coverage.NewPixelBuffer(3, 1, pix)
	require.NoError(t, err)
	assert.Equal(t, []uint8{
		255, 255, 255, 255,
		127, 127, 127, 255,
		255, 0, 0, 255,
	}, buf.Pix)
	assert.Equal(t, original, pix)

	transparent, err := coverage.NewPixelBuffer(2, 2, make([]uint8, 16))
	require.NoError(t, err)

	result, err := coverage.AnalyzePage(transparent, transparent, 72, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0, result.ColorCoverage.Total, percentDelta)
	assert.InDelta(t, 0, result.GrayscaleCoverage.Black, percentDelta)
}

func TestFromImage(t *testing.T) {
	t.Parallel()

	t.Run("Transparent regions are paper", func(t *testing.T) {
		t.Parallel()

		buf := coverage.FromImage(image.NewRGBA(image.Rect(0, 0, 6, 6)))
		result, err := coverage.AnalyzePage(buf, buf, 72, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0, result.ColorCoverage.Total, percentDelta)
	})

	t.Run("Offset bounds are normalized", func(t *testing.T) {
		t.Parallel()

		img := image.NewRGBA(image.Rect(5, 5, 9, 8))
		for y := 5; y < 8; y++ {
			for x := 5; x < 9; x++ {
				img.Set(x, y, black)
			}
		}

		buf := coverage.FromImage(img)
		assert.Equal(t, 4, buf.Width)
		assert.Equal(t, 3, buf.Height)

		result, err := coverage.AnalyzePage(buf, buf, 72, 1)
		require.NoError(t, err)
		assert.InDelta(t, 100, result.ColorCoverage.Black, percentDelta)
	})
}

func TestMonochromeFromImage(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 5, 5))
	for y := range 5 {
		for x := range 5 {
			img.Set(x, y, red)
		}
	}

	colorPass := coverage.FromImage(img)
	grayPass := coverage.MonochromeFromImage(img)

	result, err := coverage.AnalyzePage(colorPass, grayPass, 72, 1)
	require.NoError(t, err)

	assert.InDelta(t, 100, result.ColorCoverage.Magenta, percentDelta)
	assert.InDelta(t, 100, result.ColorCoverage.Yellow, percentDelta)
	assert.InDelta(t, 50, result.ColorCoverage.Total, percentDelta)
	// Red has a luma of about 76, so roughly 70% ink in monochrome.
	assert.InDelta(t, 70.1, result.GrayscaleCoverage.Black, 0.5)

	for i := 0; i < len(grayPass.Pix); i += 4 {
		require.Equal(t, grayPass.Pix[i], grayPass.Pix[i+1])
		require.Equal(t, grayPass.Pix[i], grayPass.Pix[i+2])
	}
}
