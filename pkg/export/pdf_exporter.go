package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
)

// maxEmbedPx bounds embedded image copies on their longest side.
const maxEmbedPx = 150

// PDFExporter renders datasets into a tabular field-sheet PDF. Columns whose
// header appears in Dataset.Images get a thumbnail of the stored image in
// place of the text cell.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 9)
	colWidth := 277.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	rowHeight := 7.0
	if len(data.Images) > 0 {
		rowHeight = 28.0
	}

	pdf.SetFont("Arial", "", 8)
	for i, row := range data.Rows {
		x, y := pdf.GetX(), pdf.GetY()
		for j, header := range data.Headers {
			cellX := x + float64(j)*colWidth
			pdf.Rect(cellX, y, colWidth, rowHeight, "D")
			if img := imageFor(data.Images, i, header); img != nil {
				if err := e.embedImage(pdf, img, fmt.Sprintf("img-%d-%s", i, header), cellX, y, colWidth, rowHeight); err != nil {
					return nil, err
				}
				continue
			}
			pdf.SetXY(cellX, y)
			pdf.CellFormat(colWidth, rowHeight, row[header], "", 0, "", false, 0, "")
		}
		pdf.SetXY(x, y+rowHeight)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// embedImage decodes, shrinks to the embed bound and anchors the thumbnail
// inside the cell rectangle.
func (e *PDFExporter) embedImage(pdf *gofpdf.Fpdf, raw []byte, name string, x, y, w, h float64) error {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode export image %s: %w", name, err)
	}
	thumb := imaging.Fit(img, maxEmbedPx, maxEmbedPx, imaging.Lanczos)

	encoded := &bytes.Buffer{}
	if err := imaging.Encode(encoded, thumb, imaging.JPEG); err != nil {
		return fmt.Errorf("encode export image %s: %w", name, err)
	}

	opts := gofpdf.ImageOptions{ImageType: "JPEG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, encoded)
	side := h - 2
	if side > w-2 {
		side = w - 2
	}
	pdf.ImageOptions(name, x+1, y+1, side, 0, false, opts, 0, "")
	return nil
}

func imageFor(images []map[string][]byte, row int, header string) []byte {
	if row >= len(images) || images[row] == nil {
		return nil
	}
	return images[row][header]
}
