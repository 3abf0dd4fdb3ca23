// Package export writes publications to spreadsheet files.
package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/veille/internal/model"
)

// SheetName is the worksheet publications are written to.
const SheetName = "Publications"

// DateLayout formats the published column.
const DateLayout = "2006-01-02"

// Header is the first row of every export.
var Header = []string{"title", "commune", "canton", "type", "published", "url", "description"}

// WriteXLSX writes pubs to a new workbook at path, one row per publication
// after the header row.
func WriteXLSX(path string, pubs []model.Publication) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, Header)
	for _, p := range pubs {
		addRow(sheet, []string{
			p.Title,
			p.Commune,
			string(p.Canton),
			string(p.Type),
			p.PublishedAt.Format(DateLayout),
			p.URL,
			p.Description,
		})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
