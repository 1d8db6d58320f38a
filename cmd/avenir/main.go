// Command avenir is the minimal host-embedding driver: it compiles a single
// JavaScript source file, can disassemble or persist the result, and can
// run it on the reference VM. It exists to exercise the compiler pipeline
// end-to-end, not as a full engine CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"avenir/internal/bytecode"
	"avenir/internal/codegen"
	"avenir/internal/config"
	"avenir/internal/disasm"
	"avenir/internal/lexer"
	"avenir/internal/loader"
	"avenir/internal/parser"
	"avenir/internal/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	case "version", "-v", "--version":
		fmt.Println("avenir", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`avenir - a minimal JavaScript compiler and reference VM

Usage:
  avenir run [-config avenir.toml] [-debug] [-persist] <file.js>
  avenir disasm [-config avenir.toml] [-debug] <file.js>

Commands:
  run      Compile and execute a source file
  disasm   Compile and print the disassembled bytecode
  version  Print the avenir version`)
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = "avenir.toml"
	}
	return config.Load(configPath)
}

func compileFile(path string, debugInfo bool) (*bytecode.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	l := lexer.New(string(src))
	p := parser.New(l)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("parsing %s: %d errors, first: %s", path, len(errs), errs[0])
	}

	mod, err := codegen.Compile(prog, codegen.Options{DebugInfo: debugInfo, SourcePath: path})
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	return mod, nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to avenir.toml")
	debug := fs.Bool("debug", false, "emit debug info")
	persist := fs.Bool("persist", false, "save the compiled module to the configured store")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("run: missing input file")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	mod, err := compileFile(fs.Arg(0), *debug || cfg.Compile.DebugInfo)
	if err != nil {
		return err
	}

	if *persist {
		if err := persistModule(cfg, mod); err != nil {
			return err
		}
	}

	res, err := vm.New(mod).Run()
	if err != nil {
		return fmt.Errorf("running %s: %w", fs.Arg(0), err)
	}
	fmt.Println(res.String())
	return nil
}

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to avenir.toml")
	debug := fs.Bool("debug", false, "emit debug info")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("disasm: missing input file")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	mod, err := compileFile(fs.Arg(0), *debug || cfg.Compile.DebugInfo)
	if err != nil {
		return err
	}

	color := disasm.StdoutIsTerminal(os.Stdout.Fd())
	return disasm.Module(os.Stdout, mod, color)
}

func persistModule(cfg *config.Config, mod *bytecode.Module) error {
	store, err := loader.Open(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening module store: %w", err)
	}
	defer store.Close()

	hash, err := store.Save(mod)
	if err != nil {
		return fmt.Errorf("persisting module: %w", err)
	}
	fmt.Fprintf(os.Stderr, "persisted module %s\n", hash)
	return nil
}
