package debugger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrvm/rrvm/backend/interpreter"
	"github.com/rrvm/rrvm/internal/debugger"
	"github.com/rrvm/rrvm/vm"
)

func TestDebuggerRunCommandFreeRunsToCompletion(t *testing.T) {
	code := []vm.Word{
		vm.Word(vm.Push), vm.Word(vm.I64), 1,
		vm.Word(vm.Push), vm.Word(vm.I64), 2,
		vm.Word(vm.Add),
		vm.Word(vm.Print),
		vm.Word(vm.Halt),
	}
	in := strings.NewReader("run\n")
	var out bytes.Buffer
	dbg := debugger.New(in, &out)

	var stdout bytes.Buffer
	machine := vm.New(code, vm.WithOutput(&stdout))
	require.NoError(t, vm.Run(machine, interpreter.New(), dbg.Hook()))

	assert.False(t, dbg.Quit())
	assert.Equal(t, "3\n", stdout.String())
}

func TestDebuggerNextSingleSteps(t *testing.T) {
	code := []vm.Word{
		vm.Word(vm.Push), vm.Word(vm.I64), 1,
		vm.Word(vm.Halt),
	}
	// One "next" at the prompt after Push, then an unrecognized command at
	// the prompt after Halt quits the session.
	in := strings.NewReader("next\nq\n")
	var out bytes.Buffer
	dbg := debugger.New(in, &out)

	machine := vm.New(code)
	require.NoError(t, vm.Run(machine, interpreter.New(), dbg.Hook()))
	assert.True(t, dbg.Quit())
}

func TestDebuggerBreakpointPausesFreeRun(t *testing.T) {
	code := []vm.Word{
		vm.Word(vm.Nop),
		vm.Word(vm.Nop),
		vm.Word(vm.Halt),
	}
	// Set a breakpoint at ip=1, run, hit it, then run again to completion.
	in := strings.NewReader("b 1\nrun\nrun\n")
	var out bytes.Buffer
	dbg := debugger.New(in, &out)

	machine := vm.New(code)
	require.NoError(t, vm.Run(machine, interpreter.New(), dbg.Hook()))
	assert.Contains(t, out.String(), "breakpoint")
}
