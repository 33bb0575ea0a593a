// Package export writes debt statements as XLSX workbooks, ready to be
// used for preparing batch bank transfers.
package export

import (
	"fmt"
	"io"

	"moneyflow/internal/debt"
	"moneyflow/internal/domain"

	"github.com/xuri/excelize/v2"
)

const (
	debtsSheet      = "Debts"
	repaymentsSheet = "Repayments"
)

// Statement writes the person's outstanding pool and repayment history.
func Statement(w io.Writer, person domain.Person, pool []domain.Debt, repayments []domain.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", debtsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(repaymentsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Person", person.Name},
		{"Outstanding", debt.Outstanding(pool).InexactFloat64()},
		{},
		{"Debt ID", "Date", "Tag", "Amount", "Remaining", "Note"},
	}
	for _, d := range pool {
		rows = append(rows, []interface{}{
			d.ID.String(), d.OccurredAt.Format("2006-01-02"), d.Tag,
			d.Amount.InexactFloat64(), d.Remaining.InexactFloat64(), d.Note,
		})
	}
	if err := writeRows(f, debtsSheet, rows); err != nil {
		return err
	}

	rows = [][]interface{}{{"Repayment ID", "Date", "Amount", "Debt ID", "Allocated", "Tag", "Note"}}
	for _, r := range repayments {
		if r.Metadata == nil || r.Metadata.BulkAllocation == nil {
			rows = append(rows, []interface{}{r.ID.String(), r.OccurredAt.Format("2006-01-02"), r.Amount.Abs().InexactFloat64(), "", "", "", r.Note})
			continue
		}
		for _, a := range r.Metadata.BulkAllocation.Debts {
			debtID := ""
			if a.ID != nil {
				debtID = a.ID.String()
			}
			rows = append(rows, []interface{}{
				r.ID.String(), r.OccurredAt.Format("2006-01-02"), r.Amount.Abs().InexactFloat64(),
				debtID, a.Amount.InexactFloat64(), a.Tag, a.Note,
			})
		}
	}
	if err := writeRows(f, repaymentsSheet, rows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
