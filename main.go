package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"tabula/ast"
	"tabula/lexer"
	"tabula/parser"
	"tabula/repl"
	"tabula/service"
	"tabula/sheet"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	sub := os.Args[1]
	switch sub {
	case "-h", "--help", "help":
		usage()
		return
	case "parse":
		os.Exit(parseCommand(os.Args[2:]))
	case "eval":
		os.Exit(evalCommand(os.Args[2:]))
	case "repl":
		os.Exit(replCommand(os.Args[2:]))
	case "serve":
		os.Exit(serveCommand(os.Args[2:]))
	case "service":
		os.Exit(serviceCommand(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  tabula <command> [arguments]\n")
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  parse <expression>       parse a formula and print its AST\n")
	fmt.Fprintf(os.Stderr, "  eval <file>              run a sheet script and print the result (- for stdin)\n")
	fmt.Fprintf(os.Stderr, "  repl                     start the interactive sheet shell\n")
	fmt.Fprintf(os.Stderr, "  serve [addr]             start the websocket sheet server (default :8080)\n")
	fmt.Fprintf(os.Stderr, "  service [endpoint]       start the ZeroMQ sheet service (default tcp://127.0.0.1:5601)\n")
	fmt.Fprintf(os.Stderr, "  help                     show this help message\n")
}

func parseCommand(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: tabula parse <expression>\n")
		return 2
	}

	expression := args[0]
	if len(expression) >= 2 && expression[0] == sheet.FormulaSign {
		expression = expression[1:]
	}

	p := parser.New(lexer.New(expression))
	expr := p.ParseFormula()
	if errs := p.ErrorsDetailed(); len(errs) > 0 || expr == nil {
		fmt.Fprintln(os.Stderr, parser.FormatParseErrors(errs, expression))
		return 1
	}

	fmt.Printf("%s\n", ast.Print(expr))
	fmt.Print(ast.Format(expr))
	return 0
}

func evalCommand(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: tabula eval <file>\n")
		return 2
	}

	var in io.Reader
	if args[0] == "-" {
		in = os.Stdin
	} else {
		file, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			return 1
		}
		defer file.Close()
		in = file
	}

	sh := sheet.New()
	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		output, quit := repl.ExecLine(sh, scanner.Text())
		if output != "" {
			fmt.Fprintf(os.Stderr, "line %d: %s", lineNo, output)
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
		return 1
	}

	fmt.Println("Values:")
	if err := sh.PrintValues(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "print error: %v\n", err)
		return 1
	}
	fmt.Println("Texts:")
	if err := sh.PrintTexts(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "print error: %v\n", err)
		return 1
	}
	return 0
}

func replCommand(args []string) int {
	if len(args) != 0 {
		fmt.Fprintf(os.Stderr, "usage: tabula repl\n")
		return 2
	}
	repl.Start(os.Stdin, os.Stdout)
	return 0
}

func serveCommand(args []string) int {
	addr := ":8080"
	if len(args) > 0 {
		addr = args[0]
	}

	server := sheet.NewServer()
	if err := server.Start(addr); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		return 1
	}
	return 0
}

func serviceCommand(args []string) int {
	endpoint := "tcp://127.0.0.1:5601"
	if len(args) > 0 {
		endpoint = args[0]
	}

	svc := service.New(context.Background())
	defer svc.Close()
	if err := svc.ListenAndServe(endpoint); err != nil {
		fmt.Fprintf(os.Stderr, "service error: %v\n", err)
		return 1
	}
	return 0
}
