package output

import (
	"encoding/csv"
	"os"

	"github.com/IliaW/email-harvester/internal/model"
)

func writeCSV(path string, records []*model.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	head := header(records)
	if err = w.Write(head); err != nil {
		return err
	}
	for _, rec := range records {
		if err = w.Write(row(head, rec)); err != nil {
			return err
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return err
	}

	return file.Close()
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	return r.ReadAll()
}
