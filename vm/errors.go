package vm

import "errors"

// Fatal programmer errors (§7 of the spec). These mirror the teacher's
// sentinel-error style in vm.go (errProgramFinished, errSegmentationFault,
// errIllegalOperation, errUnknownInstruction, errIO) — returned from the
// dispatch loop and the backend hooks, and tested for with errors.Is at the
// call site the way the teacher's own tests compare vm.errcode against a
// sentinel. The TAC builder does not check its operand stack: a hook that
// pops a temp from an empty operand stack panics instead of returning one
// of these.
var (
	ErrProgramFinished      = errors.New("vm: program finished")
	ErrStackOverflow        = errors.New("vm: data stack overflow")
	ErrStackUnderflow       = errors.New("vm: data stack underflow")
	ErrPointerStackOverflow = errors.New("vm: pointer stack overflow")
	ErrPointerStackUnderflow = errors.New("vm: pointer stack underflow")
	ErrCallStackOverflow    = errors.New("vm: call stack overflow")
	ErrCallStackUnderflow   = errors.New("vm: call stack underflow")
	ErrBlockStackOverflow   = errors.New("vm: block stack overflow")
	ErrTapeOutOfBounds      = errors.New("vm: tape pointer out of bounds")
	ErrDivideByZero         = errors.New("vm: division or remainder by zero")
	ErrTypeMismatch         = errors.New("vm: operand type tags do not match")
	ErrUnknownOpcode        = errors.New("vm: unknown opcode")
	ErrTruncatedImmediate   = errors.New("vm: missing immediate past end of code")
	ErrUndefinedFunction    = errors.New("vm: call to undefined function index")
	ErrUnmatchedBlock       = errors.New("vm: else or endblock without a matching block")
)
