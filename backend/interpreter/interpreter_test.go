package interpreter_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrvm/rrvm/backend/interpreter"
	"github.com/rrvm/rrvm/vm"
)

// runProgram assembles code into a fresh VM, drives it through a fresh
// interpreter backend, and returns everything printed to stdout.
func runProgram(t *testing.T, code []vm.Word) string {
	t.Helper()
	var buf bytes.Buffer
	machine := vm.New(code, vm.WithOutput(&buf))
	err := vm.Run(machine, interpreter.New(), nil)
	require.NoError(t, err)
	return buf.String()
}

func w(words ...vm.Word) []vm.Word { return words }

// Scenario 1 (§8): (3 + 4) * 5 == 35.
func TestArithmeticScenario(t *testing.T) {
	code := w(
		vm.Word(vm.Push), vm.Word(vm.I64), 3,
		vm.Word(vm.Push), vm.Word(vm.I64), 4,
		vm.Word(vm.Add),
		vm.Word(vm.Push), vm.Word(vm.I64), 5,
		vm.Word(vm.Mul),
		vm.Word(vm.Print),
		vm.Word(vm.Halt),
	)
	assert.Equal(t, "35\n", runProgram(t, code))
}

// Scenario 2 (§8): 10 rem 3 == 1, then not(false) == 1.
func TestRemAndNot(t *testing.T) {
	code := w(
		vm.Word(vm.Push), vm.Word(vm.I64), 10,
		vm.Word(vm.Push), vm.Word(vm.I64), 3,
		vm.Word(vm.Rem),
		vm.Word(vm.Print),
		vm.Word(vm.Push), vm.Word(vm.Bool), 0,
		vm.Word(vm.Not),
		vm.Word(vm.Print),
		vm.Word(vm.Halt),
	)
	assert.Equal(t, "1\n1\n", runProgram(t, code))
}

// Scenario 3 (§8): tape pointer save/restore and offset demo.
func TestTapePointerDemo(t *testing.T) {
	code := w(
		vm.Word(vm.Set), vm.Word(vm.Ptr), 1,
		vm.Word(vm.Deref),
		vm.Word(vm.Set), vm.Word(vm.I64), 123,
		vm.Word(vm.Refer),
		vm.Word(vm.Offset), 1,
		vm.Word(vm.Load),
		vm.Word(vm.Print),
		vm.Word(vm.Offset), -1,
		vm.Word(vm.Where),
		vm.Word(vm.Print),
		vm.Word(vm.Halt),
	)
	assert.Equal(t, "123\n0\n", runProgram(t, code))
}

// Scenario 6 (§8): chained pointer dereference across three tape cells.
func TestChainedDeref(t *testing.T) {
	code := w(
		vm.Word(vm.Set), vm.Word(vm.I64), 1,
		vm.Word(vm.Offset), 1,
		vm.Word(vm.Set), vm.Word(vm.I64), 2,
		vm.Word(vm.Offset), 1,
		vm.Word(vm.Set), vm.Word(vm.I64), 3,
		vm.Word(vm.Offset), -2,
		vm.Word(vm.Deref),
		vm.Word(vm.Deref),
		vm.Word(vm.Deref),
		vm.Word(vm.Set), vm.Word(vm.I64), 999,
		vm.Word(vm.Refer),
		vm.Word(vm.Refer),
		vm.Word(vm.Refer),
		vm.Word(vm.Where),
		vm.Word(vm.Print),
		vm.Word(vm.Offset), 3,
		vm.Word(vm.Load),
		vm.Word(vm.Print),
		vm.Word(vm.Halt),
	)
	assert.Equal(t, "0\n999\n", runProgram(t, code))
}

// Scenario 4 (§8): two functions, an if/else on the taken branch.
func TestFunctionsAndIfElse(t *testing.T) {
	// function 0: f() { push 7; push 35; add; return }
	// function 1: g() { push 5; push 3; mul; return }
	// main: call f; call g; add; print; push 1; if { push 100; print } else { push 200; print }; halt
	code := w(
		vm.Word(vm.Function), 0,
		vm.Word(vm.Push), vm.Word(vm.I64), 7,
		vm.Word(vm.Push), vm.Word(vm.I64), 35,
		vm.Word(vm.Add),
		vm.Word(vm.Return),
		vm.Word(vm.EndBlock),
		vm.Word(vm.Function), 1,
		vm.Word(vm.Push), vm.Word(vm.I64), 5,
		vm.Word(vm.Push), vm.Word(vm.I64), 3,
		vm.Word(vm.Mul),
		vm.Word(vm.Return),
		vm.Word(vm.EndBlock),
		vm.Word(vm.Call), 0,
		vm.Word(vm.Call), 1,
		vm.Word(vm.Add),
		vm.Word(vm.Print),
		vm.Word(vm.Push), vm.Word(vm.I64), 1,
		vm.Word(vm.If),
		vm.Word(vm.Push), vm.Word(vm.I64), 100,
		vm.Word(vm.Print),
		vm.Word(vm.Else),
		vm.Word(vm.Push), vm.Word(vm.I64), 200,
		vm.Word(vm.Print),
		vm.Word(vm.EndBlock),
		vm.Word(vm.Halt),
	)
	assert.Equal(t, "57\n100\n", runProgram(t, code))
}

// Scenario 4's false path: same shape, but the if condition is 0, so the
// else branch runs instead and the block stack must still end balanced.
func TestIfElseFalseBranch(t *testing.T) {
	code := w(
		vm.Word(vm.Push), vm.Word(vm.I64), 0,
		vm.Word(vm.If),
		vm.Word(vm.Push), vm.Word(vm.I64), 100,
		vm.Word(vm.Print),
		vm.Word(vm.Else),
		vm.Word(vm.Push), vm.Word(vm.I64), 200,
		vm.Word(vm.Print),
		vm.Word(vm.EndBlock),
		vm.Word(vm.Halt),
	)
	assert.Equal(t, "200\n", runProgram(t, code))
}

// An if with no else, condition false, falls straight through past
// EndBlock without ever touching the block stack.
func TestIfNoElseFalse(t *testing.T) {
	code := w(
		vm.Word(vm.Push), vm.Word(vm.I64), 0,
		vm.Word(vm.If),
		vm.Word(vm.Push), vm.Word(vm.I64), 100,
		vm.Word(vm.Print),
		vm.Word(vm.EndBlock),
		vm.Word(vm.Push), vm.Word(vm.I64), 9,
		vm.Word(vm.Print),
		vm.Word(vm.Halt),
	)
	assert.Equal(t, "9\n", runProgram(t, code))
}

// Scenario 5 (§8): while countdown from 4 to 1.
func TestWhileCountdown(t *testing.T) {
	// tape[0] = 4
	// cond (ip=3): load
	// while cond_ip=3
	//   load; print; load; push 1; sub; store
	// endblock
	// halt
	code := w(
		vm.Word(vm.Set), vm.Word(vm.I64), 4, // ip 0-2
		vm.Word(vm.Load), // ip 3 <- condition start
		vm.Word(vm.While), 3, // ip 4-5
		vm.Word(vm.Load), // ip 6
		vm.Word(vm.Print),
		vm.Word(vm.Load),
		vm.Word(vm.Push), vm.Word(vm.I64), 1,
		vm.Word(vm.Sub),
		vm.Word(vm.Store),
		vm.Word(vm.EndBlock),
		vm.Word(vm.Halt),
	)
	assert.Equal(t, "4\n3\n2\n1\n", runProgram(t, code))
}

func TestDivideByZeroIsFatal(t *testing.T) {
	code := w(
		vm.Word(vm.Push), vm.Word(vm.I64), 1,
		vm.Word(vm.Push), vm.Word(vm.I64), 0,
		vm.Word(vm.Div),
		vm.Word(vm.Halt),
	)
	machine := vm.New(code)
	err := vm.Run(machine, interpreter.New(), nil)
	assert.ErrorIs(t, err, vm.ErrDivideByZero)
}

func TestTypeMismatchIsFatal(t *testing.T) {
	code := w(
		vm.Word(vm.Push), vm.Word(vm.I64), 1,
		vm.Word(vm.Push), vm.Word(vm.Bool), 1,
		vm.Word(vm.Add),
		vm.Word(vm.Halt),
	)
	machine := vm.New(code)
	err := vm.Run(machine, interpreter.New(), nil)
	assert.ErrorIs(t, err, vm.ErrTypeMismatch)
}

// Round-trip arithmetic invariant (§8): a == (a/b)*b + (a%b).
func TestRoundTripArithmetic(t *testing.T) {
	cases := []struct{ a, b int64 }{
		{17, 5}, {-17, 5}, {17, -5}, {-17, -5}, {0, 3},
	}
	for _, c := range cases {
		code := w(
			vm.Word(vm.Push), vm.Word(vm.I64), vm.Word(c.a),
			vm.Word(vm.Push), vm.Word(vm.I64), vm.Word(c.b),
			vm.Word(vm.Div),
			vm.Word(vm.Push), vm.Word(vm.I64), vm.Word(c.b),
			vm.Word(vm.Mul),
			vm.Word(vm.Push), vm.Word(vm.I64), vm.Word(c.a),
			vm.Word(vm.Push), vm.Word(vm.I64), vm.Word(c.b),
			vm.Word(vm.Rem),
			vm.Word(vm.Add),
			vm.Word(vm.Push), vm.Word(vm.I64), vm.Word(c.a),
			vm.Word(vm.Halt),
		)
		machine := vm.New(code)
		require.NoError(t, vm.Run(machine, interpreter.New(), nil))
		expected, _, err := machine.PeekValue()
		require.NoError(t, err)
		machine.PopValue()
		got, _, err := machine.PeekValue()
		require.NoError(t, err)
		assert.Equal(t, expected, got, "a=%d b=%d", c.a, c.b)
	}
}

// Balanced-blocks invariant (§8): a well-formed program with both a
// function call and a while loop ends with block_sp == 0 and call_sp == 0.
func TestBalancedBlocksAndCallStack(t *testing.T) {
	code := w(
		vm.Word(vm.Function), 0,
		vm.Word(vm.Push), vm.Word(vm.I64), 1,
		vm.Word(vm.Return),
		vm.Word(vm.EndBlock),
		vm.Word(vm.Call), 0,
		vm.Word(vm.Print),
		vm.Word(vm.Set), vm.Word(vm.I64), 2,
		vm.Word(vm.Load),
		vm.Word(vm.While), 9, // cond ip recomputed below
		vm.Word(vm.Load),
		vm.Word(vm.Push), vm.Word(vm.I64), 1,
		vm.Word(vm.Sub),
		vm.Word(vm.Store),
		vm.Word(vm.EndBlock),
		vm.Word(vm.Halt),
	)
	// Recompute the while's condition ip to point at the `load` right
	// before the while opcode (keeps the literal bytecode above readable
	// to maintain instead of hand-counting offsets twice).
	for i, word := range code {
		if vm.Opcode(word) == vm.While {
			code[i+1] = vm.Word(i - 1)
			break
		}
	}

	machine := vm.New(code)
	require.NoError(t, vm.Run(machine, interpreter.New(), nil))
	assert.Equal(t, 0, machine.BlockDepth())
	assert.Equal(t, 0, machine.CallDepth())
	assert.Equal(t, 0, machine.StackDepth())
}

// Pointer save/restore invariant (§8): a matched Deref/Refer leaves tp and
// the pointer-stack depth unchanged.
func TestPointerSaveRestoreInvariant(t *testing.T) {
	code := w(
		vm.Word(vm.Set), vm.Word(vm.Ptr), 0,
		vm.Word(vm.Deref),
		vm.Word(vm.Refer),
		vm.Word(vm.Halt),
	)
	machine := vm.New(code)
	require.NoError(t, vm.Run(machine, interpreter.New(), nil))
	assert.Equal(t, 0, machine.TP)
	assert.Equal(t, 0, machine.PointerDepth())
}
