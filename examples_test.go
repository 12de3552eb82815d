// End-to-end coverage for the example programs shipped under examples/,
// each mirroring one of the literal scenarios worked through in the
// specification: assemble the textual source, drive it through both
// backends, and check the interpreter's stdout against the expected
// transcript.
package rrvm_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrvm/rrvm/backend/interpreter"
	"github.com/rrvm/rrvm/backend/tac"
	"github.com/rrvm/rrvm/frontend"
	"github.com/rrvm/rrvm/vm"
)

var expectedOutput = map[string]string{
	"1.rr": "35\n",
	"2.rr": "1\n1\n",
	"3.rr": "123\n0\n",
	"4.rr": "57\n100\n",
	"5.rr": "4\n3\n2\n1\n",
	"6.rr": "0\n999\n",
}

func TestExamplesProduceExpectedOutput(t *testing.T) {
	for name, want := range expectedOutput {
		name, want := name, want
		t.Run(name, func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join("examples", name))
			require.NoError(t, err)

			code, err := frontend.Assemble(string(src))
			require.NoError(t, err)

			var buf bytes.Buffer
			machine := vm.New(code, vm.WithOutput(&buf))
			require.NoError(t, vm.Run(machine, interpreter.New(), nil))

			assert.Equal(t, want, buf.String())
		})
	}
}

// The TAC backend must lower every example without error and must emit at
// least one goal per example, even though it never executes anything.
func TestExamplesLowerToTAC(t *testing.T) {
	for name := range expectedOutput {
		name := name
		t.Run(name, func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join("examples", name))
			require.NoError(t, err)

			code, err := frontend.Assemble(string(src))
			require.NoError(t, err)

			builder := tac.NewBuilder()
			machine := vm.New(code)
			require.NoError(t, vm.Run(machine, builder, nil))
			require.NotEmpty(t, builder.Program())

			var buf bytes.Buffer
			require.NoError(t, tac.Fprint(&buf, builder.Program()))
			assert.NotEmpty(t, buf.String())
		})
	}
}
