// Package repl is an interactive shell over a sheet. Lines name a cell
// and new content ("A1 =B2+1"), or a bare cell to inspect; colon
// commands drive the sheet as a whole.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"tabula/grid"
	"tabula/sheet"
)

const PROMPT = "sheet> "

type scannerResult struct {
	line string
	err  error
	ok   bool
}

// Start begins the REPL session.
func Start(in io.Reader, out io.Writer) {
	sh := sheet.New()

	var (
		scanCh chan scannerResult
		tty    *ttyInput
	)
	if ti, ok := newTTYInput(in, out); ok {
		tty = ti
		defer tty.Close()
	} else {
		scanner := bufio.NewScanner(in)
		scanCh = make(chan scannerResult)
		go scanInput(scanner, scanCh)
	}

	sessionOut := out
	if tty != nil {
		// In raw TTY mode, normalize LF to CRLF so lines start in column 0.
		sessionOut = newTTYLineWriter(out)
	}

	fmt.Fprintf(sessionOut, "tabula - interactive sheet\n")
	fmt.Fprintf(sessionOut, "Set a cell with \"A1 =B2+1\", inspect with \"A1\".\n")
	fmt.Fprintf(sessionOut, "Commands: :help, :quit, :values, :texts, :size\n\n")

	for {
		var (
			line string
			ok   bool
		)
		if tty != nil {
			line, ok = tty.readLine(PROMPT)
			if !ok {
				return
			}
		} else {
			fmt.Fprint(out, PROMPT)
			line, ok = waitForInput(scanCh)
			if !ok {
				return
			}
		}

		output, quit := ExecLine(sh, line)
		if output != "" {
			fmt.Fprint(sessionOut, output)
		}
		if quit {
			return
		}
	}
}

// ExecLine applies one shell line to the sheet and returns the text to
// display plus whether the session should end. The eval subcommand runs
// script files through the same function.
func ExecLine(sh *sheet.Sheet, line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}

	if strings.HasPrefix(trimmed, ":") {
		return execCommand(sh, trimmed)
	}

	name, rest, hasText := strings.Cut(trimmed, " ")
	pos, ok := grid.Parse(name)
	if !ok {
		return fmt.Sprintf("invalid position %q (try :help)\n", name), false
	}

	if !hasText {
		return describeCell(sh, pos), false
	}

	if err := sh.SetCell(pos, strings.TrimSpace(rest)); err != nil {
		return fmt.Sprintf("error: %s\n", err), false
	}
	return describeCell(sh, pos), false
}

func execCommand(sh *sheet.Sheet, cmd string) (string, bool) {
	var out strings.Builder

	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":quit", ":q", ":exit":
		return "", true

	case ":help", ":h":
		out.WriteString("Lines:\n")
		out.WriteString("  A1 <text>     - set cell A1 (prefix = for a formula, ' to escape)\n")
		out.WriteString("  A1            - show cell A1's value and text\n")
		out.WriteString("Commands:\n")
		out.WriteString("  :values       - print all computed values\n")
		out.WriteString("  :texts        - print all raw texts\n")
		out.WriteString("  :size         - print the printable size\n")
		out.WriteString("  :clear <pos>  - clear one cell\n")
		out.WriteString("  :help, :quit\n")

	case ":values":
		_ = sh.PrintValues(&out)

	case ":texts":
		_ = sh.PrintTexts(&out)

	case ":size":
		size := sh.PrintableSize()
		fmt.Fprintf(&out, "%d x %d\n", size.Rows, size.Cols)

	case ":clear":
		pos, ok := grid.Parse(arg)
		if !ok {
			fmt.Fprintf(&out, "invalid position %q\n", arg)
			break
		}
		if err := sh.ClearCell(pos); err != nil {
			fmt.Fprintf(&out, "error: %s\n", err)
		}

	default:
		fmt.Fprintf(&out, "unknown command: %s (try :help)\n", name)
	}

	return out.String(), false
}

func describeCell(sh *sheet.Sheet, pos grid.Position) string {
	cell, err := sh.GetCell(pos)
	if err != nil {
		return fmt.Sprintf("error: %s\n", err)
	}
	if cell == nil {
		return fmt.Sprintf("%s is empty\n", pos)
	}
	return fmt.Sprintf("%s = %s (text %q)\n", pos, cell.Value(), cell.Text())
}

func scanInput(scanner *bufio.Scanner, out chan<- scannerResult) {
	defer close(out)
	for scanner.Scan() {
		out <- scannerResult{line: scanner.Text(), ok: true}
	}
	if err := scanner.Err(); err != nil {
		out <- scannerResult{err: err}
	}
}

func waitForInput(scanCh <-chan scannerResult) (string, bool) {
	in, ok := <-scanCh
	if !ok || in.err != nil {
		return "", false
	}
	return in.line, in.ok
}
