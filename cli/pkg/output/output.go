// Package output formats CLI results: colored status lines, JSON dumps and
// aligned tables.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ANSI styles. Empty when NO_COLOR is set.
var (
	styleSuccess = "\033[32;1m"
	styleError   = "\033[31;1m"
	styleInfo    = "\033[36m"
	styleWarn    = "\033[33m"
	styleHeader  = "\033[37;1m"
	styleReset   = "\033[0m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		styleSuccess, styleError, styleInfo, styleWarn, styleHeader, styleReset = "", "", "", "", "", ""
	}
}

func Success(format string, a ...any) {
	fmt.Printf(styleSuccess+"✓ "+format+styleReset+"\n", a...)
}

func Error(format string, a ...any) {
	fmt.Fprintf(os.Stderr, styleError+"✗ "+format+styleReset+"\n", a...)
}

func Info(format string, a ...any) {
	fmt.Printf(styleInfo+format+styleReset+"\n", a...)
}

func Warn(format string, a ...any) {
	fmt.Printf(styleWarn+"⚠ "+format+styleReset+"\n", a...)
}

// JSON pretty-prints v to stdout.
func JSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders rows with columns padded to the widest cell.
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, header := range t.headers {
		fmt.Printf("%s%-*s%s  ", styleHeader, widths[i], header, styleReset)
	}
	fmt.Println()

	for i := range t.headers {
		fmt.Print(strings.Repeat("-", widths[i]) + "  ")
	}
	fmt.Println()

	for _, row := range t.rows {
		for i, cell := range row {
			fmt.Printf("%-*s  ", widths[i], cell)
		}
		fmt.Println()
	}
}
