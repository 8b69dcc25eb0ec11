package export

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

const reportSheet = "Rate Confirmations"

var reportHeaders = []string{
	"File",
	"Broker",
	"Load #",
	"Rate",
	"Total Miles",
	"Pickups",
	"Deliveries",
	"First Pickup",
	"Last Delivery",
	"Method",
	"Error",
}

// ReportXLSX builds a workbook with one row per batch item.
func ReportXLSX(items []Item) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, err
	}
	for i, h := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(reportSheet, cell, h)
	}
	if err := f.SetPanes(reportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	for n, it := range items {
		row := n + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(reportSheet, cell, v)
		}
		rec := it.Outcome.Record
		write(1, filepath.Base(it.Path))
		write(2, rec.Broker)
		write(3, rec.LoadNumber)
		write(4, rec.Rate)
		write(5, rec.TotalMiles)
		write(6, len(rec.Pickups))
		write(7, len(rec.Deliveries))
		write(8, firstAddress(rec.Pickups))
		write(9, lastAddress(rec.Deliveries))
		write(10, it.Outcome.Method)
		if it.Err != nil {
			write(11, truncate(it.Err.Error(), 200))
		}
	}

	_ = f.SetColWidth(reportSheet, "A", "A", 32) // file
	_ = f.SetColWidth(reportSheet, "B", "B", 36) // broker
	_ = f.SetColWidth(reportSheet, "C", "E", 14)
	_ = f.SetColWidth(reportSheet, "F", "G", 10)
	_ = f.SetColWidth(reportSheet, "H", "I", 48) // addresses
	_ = f.SetColWidth(reportSheet, "J", "J", 18)
	_ = f.SetColWidth(reportSheet, "K", "K", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func firstAddress(stops []entity.Stop) string {
	if len(stops) == 0 {
		return ""
	}
	return stops[0].Address
}

func lastAddress(stops []entity.Stop) string {
	if len(stops) == 0 {
		return ""
	}
	return stops[len(stops)-1].Address
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
