// Package export renders archived items into portable projections. The
// read side never mutates the store; every projection is a single
// ascending scan over the selected items.
package export

import (
	"context"
	"fmt"

	"github.com/chatarc/chatarc/internal/store"
)

// Writer renders export rows to an output stream. Rows arrive in
// ascending ID order.
type Writer interface {
	WriteRow(row store.ExportRow) error
	Flush() error
}

// Run streams the filtered items of a source through the writer.
func Run(ctx context.Context, st *store.Store, sourceID int64, f store.ItemFilter, w Writer) error {
	if err := st.ScanExport(ctx, sourceID, f, w.WriteRow); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	return nil
}
