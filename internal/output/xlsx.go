package output

import (
	"github.com/IliaW/email-harvester/internal/model"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Results"

func writeXLSX(path string, records []*model.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	head := header(records)
	headRow := make([]interface{}, len(head))
	for i, name := range head {
		headRow[i] = excelize.Cell{StyleID: bold, Value: name}
	}
	if err = sw.SetRow("A1", headRow); err != nil {
		return err
	}
	for i, rec := range records {
		values := row(head, rec)
		cells := make([]interface{}, len(values))
		for j, v := range values {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err = sw.SetRow(cell, cells); err != nil {
			return err
		}
	}
	if err = sw.Flush(); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.GetRows(f.GetSheetList()[0])
}
