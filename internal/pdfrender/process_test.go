package pdfrender_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
	"github.com/book-expert/ink-coverage-service/internal/pdfrender"
)

var errBrokenPage = errors.New("broken page")

// fakeRasterizer renders page N as a solid colour picked by pageColor, taking longer
// for earlier pages so completion order differs from page order.
type fakeRasterizer struct {
	pageColor func(page int) color.Color
	failPages map[int]bool
	pages     int
	renders   atomic.Int32
}

func (f *fakeRasterizer) PageCount(_ context.Context, _ string) (int, error) {
	return f.pages, nil
}

func (f *fakeRasterizer) RenderPage(
	ctx context.Context,
	req pdfrender.RenderRequest,
) (image.Image, error) {
	f.renders.Add(1)

	if f.failPages[req.Page] {
		return nil, errBrokenPage
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(f.pages-req.Page) * time.Millisecond):
	}

	fill := color.Color(color.White)
	if f.pageColor != nil {
		fill = f.pageColor(req.Page)
	}

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := range 10 {
		for x := range 10 {
			img.Set(x, y, fill)
		}
	}

	if req.Mode == pdfrender.RenderGrayscale {
		gray := image.NewGray(img.Bounds())
		for y := range 10 {
			for x := range 10 {
				gray.Set(x, y, img.At(x, y))
			}
		}

		return gray, nil
	}

	return img, nil
}

func newFakeProcessor(
	t *testing.T,
	opts *pdfrender.Options,
	rasterizer pdfrender.Rasterizer,
) *pdfrender.Processor {
	t.Helper()

	if opts.ProgressBarOutput == nil {
		opts.ProgressBarOutput = &bytes.Buffer{}
	}

	proc := pdfrender.NewProcessor(opts, newTestLogger(t))
	proc.SetRasterizerForTest(rasterizer)

	return proc
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)

	proc := pdfrender.NewProcessor(&pdfrender.Options{}, log)
	require.ErrorIs(t, proc.ValidateConfigForTest(), pdfrender.ErrInputPathRequired)

	proc = pdfrender.NewProcessor(&pdfrender.Options{InputPath: "in", KeepImages: true}, log)
	require.ErrorIs(t, proc.ValidateConfigForTest(), pdfrender.ErrOutputPathRequired)

	proc = pdfrender.NewProcessor(&pdfrender.Options{InputPath: "in"}, log)
	require.NoError(t, proc.ValidateConfigForTest())
}

func TestDiscoverPDFsAndEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte(""), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.PDF"), []byte(""), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte(""), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.pdf"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "._a.pdf"), []byte(""), 0o600))

	files, err := pdfrender.DiscoverPDFs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.PDF")}, files)

	log := newTestLogger(t)

	proc := pdfrender.NewProcessor(&pdfrender.Options{InputPath: dir}, log)
	paths, err := proc.DiscoverInputPDFsForTest()
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	single := filepath.Join(dir, "a.pdf")
	proc = pdfrender.NewProcessor(&pdfrender.Options{InputPath: single}, log)
	paths, err = proc.DiscoverInputPDFsForTest()
	require.NoError(t, err)
	assert.Equal(t, []string{single}, paths)

	proc = pdfrender.NewProcessor(&pdfrender.Options{InputPath: filepath.Join(dir, "c.txt")}, log)
	_, err = proc.DiscoverInputPDFsForTest()
	require.ErrorIs(t, err, pdfrender.ErrNotPDF)

	proc = pdfrender.NewProcessor(&pdfrender.Options{InputPath: t.TempDir()}, log)
	_, err = proc.DiscoverInputPDFsForTest()
	require.ErrorIs(t, err, os.ErrNotExist)

	proc = pdfrender.NewProcessor(&pdfrender.Options{InputPath: filepath.Join(dir, "missing")}, log)
	_, err = proc.DiscoverInputPDFsForTest()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckTools_MissingGhostscript(t *testing.T) {
	t.Parallel()

	proc := pdfrender.NewProcessor(&pdfrender.Options{InputPath: "in"}, newTestLogger(t))
	proc.SetRasterizerForTest(pdfrender.NewGhostscriptRasterizerForTest(
		&fakeExec{missing: map[string]bool{"gs": true}},
		false,
	))
	require.ErrorIs(t, proc.CheckTools(), pdfrender.ErrToolMissing)

	// Rasterizers without external tools need no preparation.
	proc.SetRasterizerForTest(&fakeRasterizer{pages: 1})
	require.NoError(t, proc.CheckTools())
}

func TestAnalyzeDocument_PagesInOrder(t *testing.T) {
	t.Parallel()

	// Odd pages black, even pages white.
	rasterizer := &fakeRasterizer{
		pages: 6,
		pageColor: func(page int) color.Color {
			if page%2 == 1 {
				return color.Black
			}

			return color.White
		},
	}
	proc := newFakeProcessor(t, &pdfrender.Options{InputPath: "in", DPI: 10, Workers: 3}, rasterizer)

	result, err := proc.AnalyzeDocument(context.Background(), "doc.pdf")
	require.NoError(t, err)
	require.Len(t, result.Pages, 6)
	assert.Empty(t, result.Failures)
	require.NoError(t, result.Err())
	assert.Equal(t, 6, result.PageCount)
	assert.Equal(t, "doc.pdf", result.Source)

	for index, page := range result.Pages {
		assert.Equal(t, index+1, page.PageNumber)
		assert.Equal(t, 10, page.DPI)
		assert.InDelta(t, 1.0, page.Dimensions.Width, 1e-9)

		if page.PageNumber%2 == 1 {
			assert.InDelta(t, 100.0, page.ColorCoverage.Black, 1e-9)
			assert.InDelta(t, 100.0, page.GrayscaleCoverage.Black, 1e-9)
		} else {
			assert.InDelta(t, 0.0, page.ColorCoverage.Total, 1e-9)
			assert.InDelta(t, 0.0, page.GrayscaleCoverage.Black, 1e-9)
		}
	}

	assert.Equal(t, int32(12), rasterizer.renders.Load())
}

func TestAnalyzeDocument_FailedPagesAreFlagged(t *testing.T) {
	t.Parallel()

	rasterizer := &fakeRasterizer{pages: 4, failPages: map[int]bool{2: true, 4: true}}
	proc := newFakeProcessor(t, &pdfrender.Options{InputPath: "in", Workers: 2}, rasterizer)

	result, err := proc.AnalyzeDocument(context.Background(), "doc.pdf")
	require.NoError(t, err)

	require.Len(t, result.Pages, 2)
	assert.Equal(t, 1, result.Pages[0].PageNumber)
	assert.Equal(t, 3, result.Pages[1].PageNumber)
	assert.Equal(t, []int{2, 4}, result.FailedPages())
	require.ErrorIs(t, result.Err(), errBrokenPage)
	assert.Contains(t, result.Err().Error(), "page 2")

	// The analyzed pages still form a valid document.
	require.NoError(t, coverage.CheckOrder(result.Pages))
}

func TestAnalyzeDocument_FailFast(t *testing.T) {
	t.Parallel()

	rasterizer := &fakeRasterizer{pages: 5, failPages: map[int]bool{3: true}}
	proc := newFakeProcessor(
		t,
		&pdfrender.Options{InputPath: "in", Workers: 1, FailFast: true},
		rasterizer,
	)

	result, err := proc.AnalyzeDocument(context.Background(), "doc.pdf")
	require.ErrorIs(t, err, errBrokenPage)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "page 3")
}

func TestAnalyzeDocument_FailFastReportsShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &interruptingExec{cancel: cancel, pages: 3}
	proc := newFakeProcessor(
		t,
		&pdfrender.Options{InputPath: "in", Workers: 1, FailFast: true},
		pdfrender.NewGhostscriptRasterizerForTest(exec, false),
	)

	result, err := proc.AnalyzeDocument(ctx, "doc.pdf")
	assert.Nil(t, result)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, coverage.ErrRasterization)
}

func TestAnalyzeDocument_ZeroPages(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor(t, &pdfrender.Options{InputPath: "in"}, &fakeRasterizer{pages: 0})

	_, err := proc.AnalyzeDocument(context.Background(), "doc.pdf")
	require.ErrorIs(t, err, pdfrender.ErrPDFZeroOrNegativePages)
}

func TestAnalyzeDocument_Canceled(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor(t, &pdfrender.Options{InputPath: "in", Workers: 2}, &fakeRasterizer{pages: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := proc.AnalyzeDocument(ctx, "doc.pdf")
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeDocument_KeepImagesUsesOutputFolder(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	proc := newFakeProcessor(
		t,
		&pdfrender.Options{InputPath: "in", OutputPath: outDir, KeepImages: true, Workers: 1},
		&fakeRasterizer{pages: 1},
	)

	_, err := proc.AnalyzeDocument(context.Background(), filepath.Join("in", "report.pdf"))
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(outDir, "report", "pages"))
}

func TestProcess_Flow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.pdf"), []byte("%PDF-1.4"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "b.pdf"), []byte("%PDF-1.4"), 0o600))

	var buf bytes.Buffer

	proc := newFakeProcessor(
		t,
		&pdfrender.Options{ProgressBarOutput: &buf, InputPath: inDir, Workers: 2},
		&fakeRasterizer{pages: 2},
	)

	results, err := proc.Process(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(inDir, "a.pdf"), results[0].Source)
	assert.Equal(t, filepath.Join(inDir, "b.pdf"), results[1].Source)
	assert.NotEqual(t, 0, buf.Len())

	_, err = pdfrender.NewProcessor(&pdfrender.Options{}, newTestLogger(t)).Process(ctx)
	require.ErrorIs(t, err, pdfrender.ErrInputPathRequired)
}

func TestProcess_SkipsFailedDocuments(t *testing.T) {
	t.Parallel()

	inDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.pdf"), []byte("%PDF-1.4"), 0o600))

	proc := newFakeProcessor(t, &pdfrender.Options{InputPath: inDir}, &fakeRasterizer{pages: 0})

	results, err := proc.Process(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
