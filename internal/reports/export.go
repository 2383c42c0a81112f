package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	pareto "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/pareto/domain"
)

// ParetoReport carries an analysis plus the parameters that produced it, so
// exports are self-describing.
type ParetoReport struct {
	Kind        string
	WindowDays  int
	MachineID   string
	GeneratedAt time.Time
	Analysis    pareto.Analysis
}

// BuildParetoPDF renders a Pareto analysis as a PDF.
func BuildParetoPDF(report ParetoReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Pareto Analysis")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Type: %s", report.Kind))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Window: last %d days", report.WindowDays))
	pdf.Ln(5)
	if report.MachineID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Machine: %s", report.MachineID))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total events: %d", report.Analysis.Total))
	pdf.Ln(8)

	// Entries table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Factor", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Share %", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Cumulative %", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, entry := range report.Analysis.Entries {
		factor := entry.Factor
		if entry.VitalFew {
			factor = "* " + factor
		}
		pdf.CellFormat(60, 6, factor, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", entry.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", entry.CostEstimate), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.1f", entry.Percentage), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.1f", entry.Cumulative), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)
	pdf.Cell(0, 6, "* vital few")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildParetoXLSX renders a Pareto analysis as an XLSX workbook.
func BuildParetoXLSX(report ParetoReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	entriesSheet := "entries"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(entriesSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Pareto Analysis")
	_ = f.SetCellValue(summarySheet, "A3", "Type")
	_ = f.SetCellValue(summarySheet, "B3", report.Kind)
	_ = f.SetCellValue(summarySheet, "A4", "Window (days)")
	_ = f.SetCellValue(summarySheet, "B4", report.WindowDays)
	_ = f.SetCellValue(summarySheet, "A5", "Machine")
	_ = f.SetCellValue(summarySheet, "B5", report.MachineID)
	_ = f.SetCellValue(summarySheet, "A6", "Generated")
	_ = f.SetCellValue(summarySheet, "B6", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A7", "Total events")
	_ = f.SetCellValue(summarySheet, "B7", report.Analysis.Total)
	_ = f.SetCellValue(summarySheet, "A8", "Vital few")
	_ = f.SetCellValue(summarySheet, "B8", len(report.Analysis.VitalFew))

	_ = f.SetCellValue(entriesSheet, "A1", "Factor")
	_ = f.SetCellValue(entriesSheet, "B1", "Count")
	_ = f.SetCellValue(entriesSheet, "C1", "Cost")
	_ = f.SetCellValue(entriesSheet, "D1", "Share %")
	_ = f.SetCellValue(entriesSheet, "E1", "Cumulative %")
	_ = f.SetCellValue(entriesSheet, "F1", "Vital Few")
	for i, entry := range report.Analysis.Entries {
		row := i + 2
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("A%d", row), entry.Factor)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("B%d", row), entry.Count)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("C%d", row), entry.CostEstimate)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("D%d", row), entry.Percentage)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("E%d", row), entry.Cumulative)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("F%d", row), entry.VitalFew)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
