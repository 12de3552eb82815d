// Package debugger implements an interactive single-step REPL over the
// dispatch loop's vm.StepHook, the tagged-word/tape re-target of the
// teacher's RunProgramDebugMode (vm/run.go): "n"/"next" executes one
// opcode, "r"/"run" free-runs until a breakpoint, "b <ip>" toggles a
// breakpoint on a bytecode index, and any other input that does not start
// with "b" quits the session.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rrvm/rrvm/internal/trace"
	"github.com/rrvm/rrvm/vm"
)

// Debugger drives an interactive stepping session, printing state to out
// and reading commands from in.
type Debugger struct {
	in  *bufio.Reader
	out io.Writer

	waitForInput bool
	breakpoints  map[int]struct{}
	lastBreak    int
	quit         bool
}

// New returns a Debugger reading commands from in and writing state dumps
// and prompts to out.
func New(in io.Reader, out io.Writer) *Debugger {
	return &Debugger{
		in:           bufio.NewReader(in),
		out:          out,
		waitForInput: true,
		breakpoints:  make(map[int]struct{}),
		lastBreak:    -1,
	}
}

// Quit reports whether the user ended the session early rather than
// letting the program run to Halt or end-of-code.
func (d *Debugger) Quit() bool { return d.quit }

// Hook returns a vm.StepHook that pauses for a command after every
// dispatched opcode, exactly the granularity the teacher's debug REPL
// single-steps at (one bytecode instruction per "n"). Quitting sets v.IP
// past the end of the program so the dispatch loop exits the same clean
// way it does on a normal Halt, rather than via a side-channel error.
func (d *Debugger) Hook() vm.StepHook {
	fmt.Fprint(d.out, "Commands:\n\tn or next: execute next instruction\n\tr or run: run until breakpoint\n\tb or break <ip>: toggle a breakpoint\n\tanything else not starting with b: quit\n\n")
	return d.step
}

func (d *Debugger) step(v *vm.VM, op vm.Opcode, opcodeIP int) {
	for {
		if !d.waitForInput {
			if _, ok := d.breakpoints[opcodeIP]; ok && d.lastBreak != opcodeIP {
				fmt.Fprintln(d.out, "breakpoint")
				trace.DumpState(d.out, v)
				d.waitForInput = true
				d.lastBreak = opcodeIP
				continue
			}
			return
		}

		trace.DumpState(d.out, v)
		fmt.Fprintf(d.out, "%s ip=%d\n-> ", op, opcodeIP)
		line, _ := d.in.ReadString('\n')
		line = strings.ToLower(strings.TrimSpace(line))

		switch {
		case line == "n" || line == "next":
			d.lastBreak = -1
			return
		case line == "r" || line == "run":
			d.waitForInput = false
			continue
		case strings.HasPrefix(line, "b"):
			arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "break"), "b"))
			ip, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Fprintln(d.out, "unknown ip:", arg)
				continue
			}
			if _, ok := d.breakpoints[ip]; ok {
				delete(d.breakpoints, ip)
			} else {
				d.breakpoints[ip] = struct{}{}
			}
			continue
		default:
			d.quit = true
			v.IP = len(v.Code)
			return
		}
	}
}
