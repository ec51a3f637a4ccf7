package input

import (
	"bufio"
	"os"
	"strings"
)

func readText(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	table := &Table{Kind: KindText, Header: []string{"URL"}}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		table.Rows = append(table.Rows, []string{line})
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}

	return table, nil
}
