package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const (
	rankingSheet = "Ranking"
	spaceSheet   = "Search Space"
	summarySheet = "Summary"
)

type workbookStyles struct {
	header  int
	number  int
	percent int
	muted   int
}

// Workbook builds a workbook with the ranking, the search space and a run
// summary. The caller owns the returned file and must Close it.
func Workbook(r Report) (*excelize.File, error) {
	fx := excelize.NewFile()

	if err := fx.SetSheetName(fx.GetSheetName(0), rankingSheet); err != nil {
		fx.Close()
		return nil, err
	}
	for _, name := range []string{spaceSheet, summarySheet} {
		if _, err := fx.NewSheet(name); err != nil {
			fx.Close()
			return nil, err
		}
	}

	styles, err := createStyles(fx)
	if err != nil {
		fx.Close()
		return nil, fmt.Errorf("failed to create styles: %w", err)
	}

	for _, write := range []func(*excelize.File, Report, workbookStyles) error{
		writeRankingSheet, writeSpaceSheet, writeSummarySheet,
	} {
		if err := write(fx, r, styles); err != nil {
			fx.Close()
			return nil, err
		}
	}

	fx.SetActiveSheet(0)
	return fx, nil
}

// WriteWorkbook saves the workbook to path, creating parent directories
func WriteWorkbook(path string, r Report) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx, err := Workbook(r)
	if err != nil {
		return err
	}
	defer fx.Close()

	return fx.SaveAs(path)
}

// WriteWorkbookTo streams the workbook, e.g. into an HTTP response
func WriteWorkbookTo(w io.Writer, r Report) error {
	fx, err := Workbook(r)
	if err != nil {
		return err
	}
	defer fx.Close()

	return fx.Write(w)
}

func createStyles(fx *excelize.File) (workbookStyles, error) {
	var styles workbookStyles
	var err error

	border := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	fmtNumber := "0.0000"
	styles.number, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: &fmtNumber,
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       border,
	})
	if err != nil {
		return styles, err
	}

	fmtPercent := "0.00"
	styles.percent, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: &fmtPercent,
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       border,
	})
	if err != nil {
		return styles, err
	}

	styles.muted, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Color: "808080", Italic: true},
		Border: border,
	})
	return styles, err
}

func writeHeader(fx *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	return fx.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// writeRankingSheet lists every result: ranked rows first, then excluded
// and failed ones with an empty rank
func writeRankingSheet(fx *excelize.File, r Report, styles workbookStyles) error {
	ids, names := r.columns()
	headers := append([]string{"Rank"}, names...)
	headers = append(headers,
		"Score", "Return %", "Sharpe", "Sortino", "Calmar", "Max DD %",
		"Profit Factor", "Win Rate %", "Trades", "Status", "Error",
	)
	if err := writeHeader(fx, rankingSheet, headers, styles.header); err != nil {
		return err
	}

	rows := r.ranked(0)
	for _, res := range r.Results {
		if res.Rank == 0 {
			rows = append(rows, res)
		}
	}

	metricCol := len(ids) + 2
	for i, res := range rows {
		rowNum := i + 2
		values := make([]any, 0, len(headers))
		if res.Rank > 0 {
			values = append(values, res.Rank)
		} else {
			values = append(values, nil)
		}
		for _, id := range ids {
			if v, ok := res.Assignment[id]; ok {
				values = append(values, v)
			} else {
				values = append(values, nil)
			}
		}
		values = append(values, res.Score)
		if m := res.Metrics; m != nil {
			values = append(values,
				m.TotalReturnPct, m.SharpeRatio, m.SortinoRatio, m.CalmarRatio, m.MaxDrawdownPct,
				m.ProfitFactor, m.WinRate, m.TotalTrades,
			)
		} else {
			values = append(values, nil, nil, nil, nil, nil, nil, nil, nil)
		}
		values = append(values, Status(res), res.Error)

		start, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(rankingSheet, start, &values); err != nil {
			return err
		}

		from, _ := excelize.CoordinatesToCellName(metricCol, rowNum)
		to, _ := excelize.CoordinatesToCellName(metricCol+7, rowNum)
		if err := fx.SetCellStyle(rankingSheet, from, to, styles.number); err != nil {
			return err
		}
		for _, offset := range []int{1, 5, 7} {
			cell, _ := excelize.CoordinatesToCellName(metricCol+offset, rowNum)
			if err := fx.SetCellStyle(rankingSheet, cell, cell, styles.percent); err != nil {
				return err
			}
		}
		if res.Rank == 0 {
			first, _ := excelize.CoordinatesToCellName(1, rowNum)
			last, _ := excelize.CoordinatesToCellName(len(headers), rowNum)
			if err := fx.SetCellStyle(rankingSheet, first, last, styles.muted); err != nil {
				return err
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	return fx.SetColWidth(rankingSheet, "A", lastCol, 14)
}

func writeSpaceSheet(fx *excelize.File, r Report, styles workbookStyles) error {
	headers := []string{"Variable ID", "Name", "Min", "Max", "Step", "Values"}
	if err := writeHeader(fx, spaceSheet, headers, styles.header); err != nil {
		return err
	}
	for i, v := range r.Variables {
		values := []any{v.VariableID, v.Name, v.Min, v.Max, v.Step, v.Steps()}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(spaceSheet, cell, &values); err != nil {
			return err
		}
	}
	return fx.SetColWidth(spaceSheet, "A", "F", 16)
}

func writeSummarySheet(fx *excelize.File, r Report, styles workbookStyles) error {
	if err := writeHeader(fx, summarySheet, []string{"Field", "Value"}, styles.header); err != nil {
		return err
	}

	rows := [][]any{
		{"Title", r.Title},
		{"Objective", r.Objective},
		{"Total combinations", r.TotalCombinations},
		{"Evaluated", r.Evaluated},
		{"Failed", r.Failed},
		{"Truncated", r.Truncated},
	}
	if best := r.ranked(1); len(best) == 1 {
		rows = append(rows, []any{"Best score", best[0].Score}, []any{"Best assignment", best[0].Assignment.String()})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	return fx.SetColWidth(summarySheet, "A", "B", 24)
}
