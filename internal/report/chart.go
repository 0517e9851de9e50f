package report

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/lox/afolu/internal/carbon"
	"github.com/lox/afolu/internal/models"
)

const (
	chartWidth  = 800
	chartHeight = 480
	chartMargin = 60
)

var (
	fontTitle font.Face
	fontLabel font.Face
	fontOnce  sync.Once
	fontErr   error
)

func loadFonts() {
	fontOnce.Do(func() {
		fontTitle, fontErr = newFace(gobold.TTF, 22)
		if fontErr != nil {
			return
		}
		fontLabel, fontErr = newFace(goregular.TTF, 15)
	})
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	return face, nil
}

type bar struct {
	label string
	value float64 // plotted value, -1..1
	text  string
	r     float64
	g     float64
	b     float64
}

func chartBars(a *models.Analysis) []bar {
	lai := a.Indices.LAI / 8
	return []bar{
		{"NDVI", a.Indices.NDVI, fmt.Sprintf("%.3f", a.Indices.NDVI), 0.18, 0.55, 0.24},
		{"EVI", a.Indices.EVI, fmt.Sprintf("%.3f", a.Indices.EVI), 0.40, 0.69, 0.30},
		{"NBR", a.Indices.NBR, fmt.Sprintf("%.3f", a.Indices.NBR), 0.80, 0.45, 0.15},
		{"LAI/8", lai, fmt.Sprintf("%.2f", a.Indices.LAI), 0.20, 0.45, 0.70},
	}
}

// Chart draws the vegetation indices as a PNG bar chart. LAI is scaled
// by its 8 m²/m² cap so all bars share one axis.
func Chart(a *models.Analysis) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fontErr
	}

	bars := chartBars(a)
	lo, hi := 0.0, 1.0
	for _, b := range bars {
		if b.value < lo {
			lo = -1
		}
	}

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetFontFace(fontTitle)
	dc.SetRGB(0.1, 0.1, 0.1)
	dc.DrawStringAnchored("Vegetation indices", chartWidth/2, 30, 0.5, 0.5)

	dc.SetFontFace(fontLabel)
	dc.SetRGB(0.35, 0.35, 0.35)
	subtitle := fmt.Sprintf("%s  %s to %s  |  %s  |  %.2f tCO2/ha/yr",
		a.Provider, a.StartDate.Format("2006-01-02"), a.EndDate.Format("2006-01-02"),
		carbon.ClassifyNDVI(a.Indices.NDVI), a.Carbon.CO2)
	dc.DrawStringAnchored(subtitle, chartWidth/2, 55, 0.5, 0.5)

	top := float64(chartMargin + 30)
	bottom := float64(chartHeight - chartMargin)
	left := float64(chartMargin)
	right := float64(chartWidth - chartMargin/2)
	y := func(v float64) float64 {
		return bottom - (v-lo)/(hi-lo)*(bottom-top)
	}

	// gridlines
	dc.SetLineWidth(1)
	for v := lo; v <= hi+1e-9; v += 0.25 {
		dc.SetRGB(0.88, 0.88, 0.88)
		dc.DrawLine(left, y(v), right, y(v))
		dc.Stroke()
		dc.SetRGB(0.4, 0.4, 0.4)
		dc.DrawStringAnchored(fmt.Sprintf("%.2f", v), left-8, y(v), 1, 0.5)
	}
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.SetLineWidth(1.5)
	dc.DrawLine(left, y(0), right, y(0))
	dc.Stroke()

	slot := (right - left) / float64(len(bars))
	width := slot * 0.55
	for i, b := range bars {
		x := left + slot*float64(i) + (slot-width)/2
		v := clamp(b.value, lo, hi)
		y0, y1 := y(0), y(v)
		if y1 > y0 {
			y0, y1 = y1, y0
		}
		dc.SetRGB(b.r, b.g, b.b)
		dc.DrawRectangle(x, y1, width, y0-y1)
		dc.Fill()

		dc.SetRGB(0.1, 0.1, 0.1)
		labelY := y(v) - 12
		if v < 0 {
			labelY = y(v) + 14
		}
		dc.DrawStringAnchored(b.text, x+width/2, labelY, 0.5, 0.5)
		dc.DrawStringAnchored(b.label, x+width/2, bottom+20, 0.5, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
