// Package printer is a configurable no-op/log-only label printer stub: a
// traceability sink for dispatched triplets, with no real hardware driver.
package printer

import (
	"strings"

	"github.com/charmbracelet/log"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
)

// Printer logs columns of labels when enabled, and is a silent no-op
// otherwise, gated by printing.enabled.
type Printer struct {
	enabled   bool
	columns   int
	separator string
	logger    *log.Logger
}

// New builds a Printer from printing.{enabled,columns,column_separator}.
func New(cfg *config.Config, logger *log.Logger) *Printer {
	cols := cfg.Printing.Columns
	if cols <= 0 {
		cols = 2
	}
	sep := cfg.Printing.ColumnSeparator
	if sep == "" {
		sep = " | "
	}
	return &Printer{
		enabled:   cfg.Printing.Enabled,
		columns:   cols,
		separator: sep,
		logger:    logger,
	}
}

// PrintLabels logs items in rows of columns width (or the Printer's
// configured default when columns <= 0). A no-op when printing is disabled.
func (p *Printer) PrintLabels(items []string, columns int) {
	cols := columns
	if cols <= 0 {
		cols = p.columns
	}
	if !p.enabled {
		p.logger.Debug("printing disabled, skip labels", "count", len(items))
		return
	}

	p.logger.Info("print labels", "cols", cols, "count", len(items))
	var row []string
	for i, item := range items {
		row = append(row, item)
		if (i+1)%cols == 0 {
			p.logger.Info(strings.Join(row, p.separator))
			row = nil
		}
	}
	if len(row) > 0 {
		p.logger.Info(strings.Join(row, p.separator))
	}
}
