// Command rrvm is the textual-frontend-to-backend driver: it assembles one
// or more .rr source files, then drives the resulting bytecode through
// either the interpreter or the TAC lowering backend. Grounded in
// original_source/main.c (fixed set of in-code programs run through the
// active backend, TAC dumped when selected) generalised the way the
// teacher's own main.go/vm/run.go generalise a single hard-coded program
// into a file-driven CLI — here the flag surface itself is promoted from
// the teacher's stdlib flag to github.com/urfave/cli/v2, matching the
// library the wider retrieval pack already depends on in production.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/rrvm/rrvm/backend/interpreter"
	"github.com/rrvm/rrvm/backend/tac"
	"github.com/rrvm/rrvm/frontend"
	"github.com/rrvm/rrvm/internal/config"
	"github.com/rrvm/rrvm/internal/debugger"
	"github.com/rrvm/rrvm/internal/trace"
	"github.com/rrvm/rrvm/vm"
)

func main() {
	app := &cli.App{
		Name:      "rrvm",
		Usage:     "assemble and run rrvm bytecode programs",
		ArgsUsage: "<file.rr> [file2.rr ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Value: "interpreter", Usage: "backend to drive the program through: interpreter|tac"},
			&cli.BoolFlag{Name: "trace", Usage: "print one line per dispatched opcode"},
			&cli.BoolFlag{Name: "debug", Usage: "drop into an interactive single-step session instead of free-running"},
			&cli.StringFlag{Name: "dump-ir", Usage: "write the TAC Horn-clause dump to this path (backend=tac only); defaults to a temp-dir path derived from the input filename"},
			&cli.IntFlag{Name: "word-bits", Value: 64, Usage: "machine word width: 32 or 64 (validated only; execution always uses 64-bit words)"},
			&cli.StringFlag{Name: "config", Value: ".rrvmrc.toml", Usage: "path to an optional TOML file of flag defaults"},
		},
		Action: run,
	}

	// The teacher's own main() wraps its dispatch loop in a recover() to
	// convert an unexpected panic into a clean exit (vm.go's
	// getDefaultRecoverFuncForVM); the dispatch loop here never panics by
	// contract, but the same defense-in-depth is kept at the outermost
	// entry point.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "rrvm: internal error:", r)
			os.Exit(2)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rrvm:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	backendName := c.String("backend")
	if !c.IsSet("backend") && cfg.Backend != "" {
		backendName = cfg.Backend
	}

	doTrace := c.Bool("trace")
	if !c.IsSet("trace") && cfg.Trace {
		doTrace = true
	}

	wordBits := c.Int("word-bits")
	if !c.IsSet("word-bits") && cfg.WordBits != 0 {
		wordBits = cfg.WordBits
	}
	if wordBits != 32 && wordBits != 64 {
		return fmt.Errorf("--word-bits must be 32 or 64, got %d", wordBits)
	}

	files := c.Args().Slice()
	if len(files) == 0 {
		return cli.Exit("usage: rrvm [flags] <file.rr> [file2.rr ...]", 1)
	}

	var src strings.Builder
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		src.Write(data)
		src.WriteByte('\n')
	}

	code, err := frontend.Assemble(src.String())
	if err != nil {
		return fmt.Errorf("assembling %s: %w", strings.Join(files, ", "), err)
	}

	machine := vm.New(code)

	var hook vm.StepHook
	switch {
	case c.Bool("debug"):
		hook = debugger.New(os.Stdin, os.Stdout).Hook()
	case doTrace:
		hook = trace.New(os.Stderr).Hook()
	}

	switch backendName {
	case "interpreter":
		if err := vm.Run(machine, interpreter.New(), hook); err != nil {
			return fmt.Errorf("running: %w", err)
		}
	case "tac":
		builder := tac.NewBuilder()
		if err := vm.Run(machine, builder, hook); err != nil {
			return fmt.Errorf("lowering: %w", err)
		}
		return dumpIR(c, cfg, files[0], builder.Program())
	default:
		return fmt.Errorf("unknown backend %q (want interpreter|tac)", backendName)
	}
	return nil
}

func dumpIR(c *cli.Context, cfg config.File, firstSourceFile string, prog []tac.Instr) error {
	dest := c.String("dump-ir")
	if !c.IsSet("dump-ir") && cfg.DumpIR != "" {
		dest = cfg.DumpIR
	}
	if dest == "" {
		base := strings.TrimSuffix(filepath.Base(firstSourceFile), filepath.Ext(firstSourceFile))
		dest = filepath.Join(os.TempDir(), base+".pl")
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating IR dump %s: %w", dest, err)
	}
	defer f.Close()

	if err := tac.Fprint(f, prog); err != nil {
		return fmt.Errorf("writing IR dump: %w", err)
	}
	fmt.Fprintln(os.Stderr, "wrote IR dump to", dest)
	return nil
}
