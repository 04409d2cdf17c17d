package export

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// XLSXBackend writes Office Open XML workbooks with excelize.
type XLSXBackend struct{}

func (XLSXBackend) Name() string        { return "excelize" }
func (XLSXBackend) ContentType() string { return xlsxContentType }

func (XLSXBackend) Encode(ctx context.Context, s Sheet, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	name := s.Name
	if name == "" {
		name = SheetName
	}
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return errors.Wrap(err, "rename sheet")
	}
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return errors.Wrap(err, "stream writer")
	}

	header := make([]any, len(s.Header))
	for i, h := range s.Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, row := range s.Rows {
		if i%500 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return errors.Wrapf(err, "write row %d", i+2)
		}
	}
	if err := sw.Flush(); err != nil {
		return errors.Wrap(err, "flush sheet")
	}
	return errors.Wrap(f.Write(w), "write workbook")
}
