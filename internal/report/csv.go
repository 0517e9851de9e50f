package report

import (
	"bytes"
	"fmt"

	"github.com/gocarina/gocsv"

	"github.com/lox/afolu/internal/models"
)

type Row struct {
	Metric string `csv:"metric"`
	Value  string `csv:"value"`
	Unit   string `csv:"unit"`
}

// Rows returns the exported metrics in display order.
func Rows(a *models.Analysis) []Row {
	return []Row{
		{"NDVI", fmt.Sprintf("%.4f", a.Indices.NDVI), "dimensionless"},
		{"EVI", fmt.Sprintf("%.4f", a.Indices.EVI), "dimensionless"},
		{"LAI", fmt.Sprintf("%.2f", a.Indices.LAI), "m2/m2"},
		{"NBR", fmt.Sprintf("%.4f", a.Indices.NBR), "dimensionless"},
		{"AGB", fmt.Sprintf("%.2f", a.Carbon.AGB), "Mg/ha"},
		{"Carbon", fmt.Sprintf("%.2f", a.Carbon.Carbon), "tC/ha"},
		{"CO2", fmt.Sprintf("%.2f", a.Carbon.CO2), "tCO2/ha/yr"},
	}
}

func CSV(a *models.Analysis) ([]byte, error) {
	rows := Rows(a)
	var buf bytes.Buffer
	if err := gocsv.Marshal(&rows, &buf); err != nil {
		return nil, fmt.Errorf("marshal csv: %w", err)
	}
	return buf.Bytes(), nil
}
