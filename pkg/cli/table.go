package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// Table wraps text/tabwriter with consistent column-aligned output.
// Headers and a dash divider are written lazily on first Row() or Flush(),
// so empty tables produce no output.
type Table struct {
	w       *tabwriter.Writer
	headers []string
	prefix  string
	written bool
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{
		w:       tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0),
		headers: headers,
	}
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// Row writes a tab-separated row. On the first call, headers and divider
// are emitted before the row.
func (t *Table) Row(values ...string) {
	t.ensureHeaders()
	fmt.Fprintln(t.w, t.prefix+strings.Join(values, "\t"))
}

// Flush writes any buffered output. If no rows were written, nothing is printed.
func (t *Table) Flush() {
	if !t.written {
		return
	}
	t.w.Flush()
}

func (t *Table) ensureHeaders() {
	if t.written {
		return
	}
	t.written = true
	fmt.Fprintln(t.w, t.prefix+strings.Join(t.headers, "\t"))
	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(t.w, t.prefix+strings.Join(dividers, "\t"))
}

// WrapTable buffers rows so it can size columns to the terminal before
// printing, capping the widest columns and word-wrapping their cells.
// Use it where cells can run long: commands, error messages, paths.
type WrapTable struct {
	headers []string
	rows    [][]string
	width   int
	prefix  string
}

// NewWrapTable creates a wrapping table sized to the current terminal,
// or 80 columns when stdout is not a terminal.
func NewWrapTable(headers ...string) *WrapTable {
	return &WrapTable{headers: headers, width: termWidth()}
}

// Width overrides the target terminal width.
func (t *WrapTable) Width(w int) *WrapTable {
	t.width = w
	return t
}

// WithPrefix sets a string prepended to each output line.
func (t *WrapTable) WithPrefix(prefix string) *WrapTable {
	t.prefix = prefix
	return t
}

// Row buffers one row for printing at Flush.
func (t *WrapTable) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush renders the buffered rows. If no rows were added, nothing is
// printed.
func (t *WrapTable) Flush() {
	t.FlushTo(os.Stdout)
}

// FlushTo renders the buffered rows to the given writer.
func (t *WrapTable) FlushTo(w io.Writer) {
	if len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visualLen(cell) > widths[i] {
				widths[i] = visualLen(cell)
			}
		}
	}
	widths = capWidths(widths, t.headers, t.width, len(t.prefix))

	dividers := make([]string, len(widths))
	for i, cw := range widths {
		dividers[i] = strings.Repeat("-", cw)
	}
	t.writeRow(w, t.headers, widths)
	t.writeRow(w, dividers, widths)
	for _, row := range t.rows {
		t.writeRow(w, row, widths)
	}
}

func (t *WrapTable) writeRow(w io.Writer, row []string, widths []int) {
	// Wrap each cell, then print line by line until the tallest cell is
	// exhausted.
	wrapped := make([][]string, len(widths))
	height := 1
	for i := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		wrapped[i] = wrapCell(cell, widths[i])
		if len(wrapped[i]) > height {
			height = len(wrapped[i])
		}
	}

	for line := 0; line < height; line++ {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if line < len(wrapped[i]) {
				cell = wrapped[i][line]
			}
			parts[i] = padCell(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(t.prefix+strings.Join(parts, "  "), " "))
	}
}

func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

var ansiRE = regexp.MustCompile("\x1b\\[[0-9;]*m")

// visualLen is the printed length of s, ignoring ANSI color sequences.
func visualLen(s string) int {
	return len(ansiRE.ReplaceAllString(s, ""))
}

// padCell right-pads s with spaces to the given visual width.
func padCell(s string, width int) string {
	gap := width - visualLen(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

// capWidths shrinks the widest columns until the table fits termWidth,
// never going below each header's own length. Columns are separated by
// two spaces; prefix is the indent charged to every line.
func capWidths(widths []int, headers []string, termWidth, prefix int) []int {
	out := make([]int, len(widths))
	copy(out, widths)

	total := prefix + 2*(len(out)-1)
	for _, w := range out {
		total += w
	}
	if total <= termWidth {
		return out
	}

	min := make([]int, len(headers))
	for i, h := range headers {
		min[i] = visualLen(h)
	}

	for total > termWidth {
		widest := -1
		for i, w := range out {
			if w > min[i] && (widest == -1 || w > out[widest]) {
				widest = i
			}
		}
		if widest == -1 {
			break
		}
		out[widest]--
		total--
	}
	return out
}

// wrapCell word-wraps s to the given width, hard-breaking words longer
// than a whole line. Strings that already fit come back unchanged.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}

	var lines []string
	var line string
	for _, word := range strings.Split(s, " ") {
		for visualLen(word) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			lines = append(lines, word[:width])
			word = word[width:]
		}
		switch {
		case line == "":
			line = word
		case visualLen(line)+1+visualLen(word) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
