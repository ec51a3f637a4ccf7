package input

import (
	"os"
	"regexp"
	"strings"

	"github.com/fumiama/go-docx"
)

var documentURLRegex = regexp.MustCompile(`https?://\S+`)

// readDocx scans the paragraphs of a Word document, table cells included, for URL tokens.
// Every occurrence becomes a row in document order. Hyperlinks contribute their target too.
func readDocx(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	doc, err := docx.Parse(file, info.Size())
	if err != nil {
		return nil, err
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			paragraphs = append(paragraphs, paragraphText(doc, it))
		case *docx.Table:
			paragraphs = append(paragraphs, tableText(doc, it)...)
		}
	}

	return documentTable(paragraphs), nil
}

// paragraphText joins the text runs of p. Tabs and breaks become spaces so tokens on either
// side stay separate.
func paragraphText(doc *docx.Docx, p *docx.Paragraph) string {
	var sb strings.Builder
	for _, child := range p.Children {
		switch c := child.(type) {
		case *docx.Run:
			writeRun(&sb, c)
		case *docx.Hyperlink:
			var label strings.Builder
			writeRun(&label, &c.Run)
			sb.WriteString(label.String())
			// A link whose label already shows the target counts once.
			if target, err := doc.ReferTarget(c.ID); err == nil && !strings.Contains(label.String(), target) {
				sb.WriteByte(' ')
				sb.WriteString(target)
				sb.WriteByte(' ')
			}
		}
	}

	return sb.String()
}

func writeRun(sb *strings.Builder, r *docx.Run) {
	for _, child := range r.Children {
		switch c := child.(type) {
		case *docx.Text:
			sb.WriteString(c.Text)
		case *docx.Tab, *docx.BarterRabbet:
			sb.WriteByte(' ')
		}
	}
}

func tableText(doc *docx.Docx, t *docx.Table) []string {
	var out []string
	for _, row := range t.TableRows {
		for _, cell := range row.TableCells {
			for _, p := range cell.Paragraphs {
				out = append(out, paragraphText(doc, p))
			}
			for _, nested := range cell.Tables {
				out = append(out, tableText(doc, nested)...)
			}
		}
	}

	return out
}

func documentTable(paragraphs []string) *Table {
	table := &Table{Kind: KindDocument, Header: []string{"URL"}}
	for _, p := range paragraphs {
		for _, u := range documentURLRegex.FindAllString(p, -1) {
			table.Rows = append(table.Rows, []string{strings.TrimRight(u, ".,;:)]}>\"'")})
		}
	}

	return table
}
