package coverage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
)

const unitDelta = 1e-9

func TestToCMYK(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name                       string
		r, g, b                    float64
		wantC, wantM, wantY, wantK float64
	}{
		{name: "Pure black has only key", r: 0, g: 0, b: 0, wantC: 0, wantM: 0, wantY: 0, wantK: 1},
		{name: "Pure white needs no ink", r: 1, g: 1, b: 1, wantC: 0, wantM: 0, wantY: 0, wantK: 0},
		{name: "Red is magenta plus yellow", r: 1, g: 0, b: 0, wantC: 0, wantM: 1, wantY: 1, wantK: 0},
		{name: "Cyan", r: 0, g: 1, b: 1, wantC: 1, wantM: 0, wantY: 0, wantK: 0},
		{name: "Mid gray is half key", r: 0.5, g: 0.5, b: 0.5, wantC: 0, wantM: 0, wantY: 0, wantK: 0.5},
		{
			name: "Dark orange",
			r:    0.5, g: 0.25, b: 0,
			wantC: 0, wantM: 0.5, wantY: 1, wantK: 0.5,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			c, m, y, k := coverage.ToCMYK(testCase.r, testCase.g, testCase.b)
			assert.InDelta(t, testCase.wantC, c, unitDelta)
			assert.InDelta(t, testCase.wantM, m, unitDelta)
			assert.InDelta(t, testCase.wantY, y, unitDelta)
			assert.InDelta(t, testCase.wantK, k, unitDelta)
		})
	}
}

func TestToCMYK_BoundedForAllSamples(t *testing.T) {
	t.Parallel()

	const step = 15

	for r := 0; r <= 255; r += step {
		for g := 0; g <= 255; g += step {
			for b := 0; b <= 255; b += step {
				c, m, y, k := coverage.ToCMYK(float64(r)/255, float64(g)/255, float64(b)/255)
				for _, v := range []float64{c, m, y, k} {
					require.GreaterOrEqual(t, v, 0.0, "rgb(%d,%d,%d)", r, g, b)
					require.LessOrEqual(t, v, 1.0, "rgb(%d,%d,%d)", r, g, b)
				}

				if k == 1 {
					require.Zero(t, c+m+y, "rgb(%d,%d,%d)", r, g, b)
				}
			}
		}
	}
}

func TestInkIntensity(t *testing.T) {
	t.Parallel()

	t.Run("Extremes", func(t *testing.T) {
		t.Parallel()

		assert.InDelta(t, 1.0, coverage.InkIntensity(0, 0, 0), unitDelta)
		assert.InDelta(t, 0.0, coverage.InkIntensity(255, 255, 255), unitDelta)
	})

	t.Run("Brighter gray needs less ink", func(t *testing.T) {
		t.Parallel()

		for v := range 255 {
			darker := uint8(v)
			brighter := uint8(v + 1)
			require.Less(
				t,
				coverage.InkIntensity(brighter, brighter, brighter),
				coverage.InkIntensity(darker, darker, darker),
			)
		}
	})

	t.Run("Ordered by luma weight", func(t *testing.T) {
		t.Parallel()

		green := coverage.InkIntensity(0, 255, 0)
		red := coverage.InkIntensity(255, 0, 0)
		blue := coverage.InkIntensity(0, 0, 255)

		assert.Less(t, green, red)
		assert.Less(t, red, blue)
		assert.InDelta(t, (255-0.299*255)/255, red, unitDelta)
	})
}
