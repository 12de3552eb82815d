// Package trace implements the opcode-level execution tracer and one-shot
// state dump used by cmd/rrvm's --trace flag and by internal/debugger. It is kept
// entirely separate from the core dispatch loop (vm.Run only ever calls an
// opaque vm.StepHook) the same way the teacher keeps formatInstructionStr
// and printCurrentState out of vm.go's execInstructions hot path.
package trace

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/rrvm/rrvm/vm"
)

// Tracer accumulates one line per dispatched opcode into w, in the
// "%-12s ip=%d sp=%d tp=%d fp=%d" shape: the teacher's formatInstructionStr
// line for its own single-step debug output, plus the frame pointer.
type Tracer struct {
	w        io.Writer
	colorize bool

	opColor  *color.Color
	argColor *color.Color
}

// New returns a Tracer writing to w. Coloring is enabled only when w is an
// *os.File attached to a terminal, mirroring the teacher's
// debug REPL assuming an interactive TTY (run.go's RunProgramDebugMode)
// without forcing color codes into redirected output or CI logs.
func New(w io.Writer) *Tracer {
	colorize := false
	if f, ok := w.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Tracer{
		w:        w,
		colorize: colorize,
		opColor:  color.New(color.FgCyan, color.Bold),
		argColor: color.New(color.FgYellow),
	}
}

// Hook returns a vm.StepHook bound to this tracer, suitable for passing to
// vm.Run.
func (t *Tracer) Hook() vm.StepHook {
	return func(v *vm.VM, op vm.Opcode, opcodeIP int) {
		name := op.String()
		if t.colorize {
			name = t.opColor.Sprint(name)
		}
		line := fmt.Sprintf("%-12s ip=%d sp=%d tp=%d fp=%d", name, opcodeIP, v.SP, v.TP, v.FP)
		if t.colorize {
			line = fmt.Sprintf("%-12s %s", name, t.argColor.Sprintf("ip=%d sp=%d tp=%d fp=%d", opcodeIP, v.SP, v.TP, v.FP))
		}
		fmt.Fprintln(t.w, line)
	}
}

// DumpState renders a one-shot ASCII snapshot of the data stack, the tape
// window around tp, and the open block stack (call frames are not shown).
// It generalises the
// teacher's ad hoc fmt.Println("  stack>", ...) debug dump (vm.go's
// printCurrentState) into a structured table, the same relationship
// fatih/color's colorized opcode name bears to the teacher's plain-text
// formatInstructionStr.
func DumpState(w io.Writer, v *vm.VM) {
	fmt.Fprintf(w, "ip=%d sp=%d fp=%d tp=%d\n", v.IP, v.SP, v.FP, v.TP)

	stackTable := tablewriter.NewWriter(w)
	stackTable.SetHeader([]string{"depth", "value", "type"})
	for i := v.StackDepth() - 1; i >= 0; i-- {
		val, tag := v.StackSlot(i)
		stackTable.Append([]string{fmt.Sprintf("%d", i), fmt.Sprintf("%d", int64(val)), tag.String()})
	}
	stackTable.Render()

	const tapeWindow = 4
	lo := v.TP - tapeWindow
	if lo < 0 {
		lo = 0
	}
	hi := v.TP + tapeWindow
	if hi >= v.TapeLen() {
		hi = v.TapeLen() - 1
	}
	tapeTable := tablewriter.NewWriter(w)
	tapeTable.SetHeader([]string{"tp", "value", "type"})
	for i := lo; i <= hi; i++ {
		val, tag := v.TapeSlot(i)
		marker := ""
		if i == v.TP {
			marker = " <-"
		}
		tapeTable.Append([]string{fmt.Sprintf("%d%s", i, marker), fmt.Sprintf("%d", int64(val)), tag.String()})
	}
	tapeTable.Render()

	blocks := v.BlockStackSnapshot()
	if len(blocks) > 0 {
		blockTable := tablewriter.NewWriter(w)
		blockTable.SetHeader([]string{"depth", "kind", "ip"})
		for i, b := range blocks {
			kind := "if"
			if b.Kind == vm.BlockWhile {
				kind = "while"
			}
			blockTable.Append([]string{fmt.Sprintf("%d", i), kind, fmt.Sprintf("%d", b.IP)})
		}
		blockTable.Render()
	}
}
