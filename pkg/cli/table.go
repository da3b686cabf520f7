package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const columnGap = 2

// Table buffers rows and writes them column-aligned on Flush. When the
// output is a terminal, wide columns are word-wrapped to fit its width.
// Empty tables produce no output.
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	prefix  string
	width   int // 0 means unlimited
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table writing to w.
func NewTableTo(w io.Writer, headers ...string) *Table {
	return &Table{
		out:     w,
		headers: headers,
		width:   terminalWidth(w),
	}
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// WithWidth caps the rendered line width. 0 disables wrapping.
func (t *Table) WithWidth(width int) *Table {
	t.width = width
	return t
}

// Row adds a row. Missing trailing cells are rendered empty.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush writes the table. If no rows were added, nothing is printed.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], visualLen(row[i]))
		}
	}
	if t.width > 0 {
		widths = capWidths(widths, t.headers, t.width, visualLen(t.prefix))
	}

	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.writeRow(widths, t.headers)
	t.writeRow(widths, dividers)
	for _, row := range t.rows {
		t.writeRow(widths, row)
	}
	t.rows = nil
}

func (t *Table) writeRow(widths []int, row []string) {
	cells := make([][]string, len(widths))
	lines := 1
	for i := range widths {
		var v string
		if i < len(row) {
			v = row[i]
		}
		cells[i] = wrapCell(v, widths[i])
		lines = max(lines, len(cells[i]))
	}
	for l := 0; l < lines; l++ {
		var b strings.Builder
		b.WriteString(t.prefix)
		for i, cell := range cells {
			var s string
			if l < len(cell) {
				s = cell[l]
			}
			b.WriteString(s)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-visualLen(s)+columnGap))
			}
		}
		fmt.Fprintln(t.out, strings.TrimRight(b.String(), " "))
	}
}

// capWidths shrinks the widest columns until a line fits in termWidth. A
// column never shrinks below its header's width.
func capWidths(widths []int, headers []string, termWidth, prefixLen int) []int {
	out := append([]int(nil), widths...)
	total := prefixLen + columnGap*(len(out)-1)
	for _, w := range out {
		total += w
	}
	for total > termWidth {
		widest := -1
		for i, w := range out {
			if w > visualLen(headers[i]) && (widest < 0 || w > out[widest]) {
				widest = i
			}
		}
		if widest < 0 {
			break
		}
		cut := min(total-termWidth, out[widest]-visualLen(headers[widest]))
		out[widest] -= cut
		total -= cut
	}
	return out
}

// wrapCell word-wraps s into lines of at most width visible characters.
// Words longer than width are broken. Escape codes are dropped from cells
// that need wrapping.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}
	var lines []string
	var cur string
	for _, word := range strings.Fields(ansiEscape.ReplaceAllString(s, "")) {
		for utf8.RuneCountInString(word) > width {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
		}
		switch {
		case cur == "":
			cur = word
		case utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(word) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visualLen is the number of characters s occupies on screen.
func visualLen(s string) int {
	return utf8.RuneCountInString(ansiEscape.ReplaceAllString(s, ""))
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
