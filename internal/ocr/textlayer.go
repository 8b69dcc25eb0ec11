package ocr

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextLayer reads the embedded (digital) text of a PDF, one string per page.
type TextLayer interface {
	PageTexts(ctx context.Context, path string) ([]string, error)
}

// NativeTextLayer reads the text layer in-process with ledongthuc/pdf.
// Glyph runs are grouped into rows top-to-bottom and ordered left-to-right inside a row,
// so table-like documents keep their visual order.
type NativeTextLayer struct{}

func (NativeTextLayer) PageTexts(ctx context.Context, path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		pages = append(pages, nativePageText(r, i))
	}
	return pages, nil
}

// nativePageText never fails; malformed content streams make the pdf package panic,
// which we treat as an empty page.
func nativePageText(r *pdf.Reader, num int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
		}
	}()

	page := r.Page(num)
	if page.V.IsNull() {
		return ""
	}
	rows, err := page.GetTextByRow()
	if err != nil || len(rows) == 0 {
		plain, perr := page.GetPlainText(nil)
		if perr != nil {
			return ""
		}
		return plain
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		glyphs := make([]pdf.Text, len(row.Content))
		copy(glyphs, row.Content)
		sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].X < glyphs[j].X })
		if line := strings.TrimRight(joinRow(glyphs), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// joinRow concatenates positioned glyph runs, inserting one space for a word gap and
// three for a column gap.
func joinRow(glyphs []pdf.Text) string {
	var b strings.Builder
	for i, g := range glyphs {
		if i > 0 {
			prev := glyphs[i-1]
			size := math.Max(prev.FontSize, 1)
			gap := g.X - (prev.X + prev.W)
			switch {
			case gap > 2*size:
				b.WriteString("   ")
			case gap > 0.2*size && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(g.S, " "):
				b.WriteString(" ")
			}
		}
		b.WriteString(g.S)
	}
	return b.String()
}

// PopplerTextLayer shells out to `pdftotext -layout`.
type PopplerTextLayer struct {
	Binary string
	Runner Runner
}

func (p PopplerTextLayer) PageTexts(ctx context.Context, path string) ([]string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftotext"
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.Runner.Run(ctx, bin, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	// A form-feed \f is used as page separator; the last page is followed by one too.
	pages := strings.Split(string(out), "\f")
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	for i := range pages {
		pages[i] = strings.TrimRight(pages[i], "\n")
	}
	return pages, nil
}
