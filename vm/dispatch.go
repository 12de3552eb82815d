package vm

import "runtime/debug"

// Backend is the pluggable record of per-opcode hooks described in §4.1 and
// §6. The dispatch loop decodes the opcode and its fixed immediates and
// forwards them to the matching hook; it never touches stacks or tape
// itself for anything other than advancing IP. This mirrors the teacher's
// function-pointer-table design (vm/bytecode.go's arity methods plus
// vm/vm.go's big opcode switch) reshaped into a Go interface, exactly the
// "trait/interface with one method per opcode" the spec's own Design Notes
// (§9) recommend for a target language.
type Backend interface {
	Setup(v *VM) error
	Finalize(v *VM, imm Word) error

	Nop(v *VM) error
	Push(v *VM, t TypeTag, val Word) error
	Set(v *VM, t TypeTag, val Word) error
	Add(v *VM) error
	Sub(v *VM) error
	Mul(v *VM) error
	Div(v *VM) error
	Rem(v *VM) error
	BitAnd(v *VM) error
	BitOr(v *VM) error
	BitXor(v *VM) error
	Lsh(v *VM) error
	Lrsh(v *VM) error
	Arsh(v *VM) error
	Or(v *VM) error
	And(v *VM) error
	Not(v *VM) error
	Gez(v *VM) error
	Move(v *VM, imm Word) error
	Offset(v *VM, imm Word) error
	Load(v *VM) error
	Store(v *VM) error
	Deref(v *VM) error
	Refer(v *VM) error
	Where(v *VM) error
	Index(v *VM) error
	Print(v *VM) error
	PrintChar(v *VM) error
	Function(v *VM, idx Word) error
	Call(v *VM, idx Word) error
	Return(v *VM) error
	If(v *VM) error
	Else(v *VM) error
	EndBlock(v *VM) error
	While(v *VM, condIP Word) error
	Halt(v *VM) error
}

// BaseBackend supplies a no-op implementation of every hook so a concrete
// backend can embed it and override only the opcodes it cares about,
// matching the "missing hooks are treated as no-ops" rule in §6.
type BaseBackend struct{}

func (BaseBackend) Setup(*VM) error               { return nil }
func (BaseBackend) Finalize(*VM, Word) error      { return nil }
func (BaseBackend) Nop(*VM) error                 { return nil }
func (BaseBackend) Push(*VM, TypeTag, Word) error { return nil }
func (BaseBackend) Set(*VM, TypeTag, Word) error  { return nil }
func (BaseBackend) Add(*VM) error                 { return nil }
func (BaseBackend) Sub(*VM) error                 { return nil }
func (BaseBackend) Mul(*VM) error                 { return nil }
func (BaseBackend) Div(*VM) error                 { return nil }
func (BaseBackend) Rem(*VM) error                 { return nil }
func (BaseBackend) BitAnd(*VM) error              { return nil }
func (BaseBackend) BitOr(*VM) error               { return nil }
func (BaseBackend) BitXor(*VM) error              { return nil }
func (BaseBackend) Lsh(*VM) error                 { return nil }
func (BaseBackend) Lrsh(*VM) error                { return nil }
func (BaseBackend) Arsh(*VM) error                { return nil }
func (BaseBackend) Or(*VM) error                  { return nil }
func (BaseBackend) And(*VM) error                 { return nil }
func (BaseBackend) Not(*VM) error                 { return nil }
func (BaseBackend) Gez(*VM) error                 { return nil }
func (BaseBackend) Move(*VM, Word) error          { return nil }
func (BaseBackend) Offset(*VM, Word) error        { return nil }
func (BaseBackend) Load(*VM) error                { return nil }
func (BaseBackend) Store(*VM) error               { return nil }
func (BaseBackend) Deref(*VM) error               { return nil }
func (BaseBackend) Refer(*VM) error               { return nil }
func (BaseBackend) Where(*VM) error               { return nil }
func (BaseBackend) Index(*VM) error               { return nil }
func (BaseBackend) Print(*VM) error                { return nil }
func (BaseBackend) PrintChar(*VM) error           { return nil }
func (BaseBackend) Function(*VM, Word) error      { return nil }
func (BaseBackend) Call(*VM, Word) error          { return nil }
func (BaseBackend) Return(*VM) error              { return nil }
func (BaseBackend) If(*VM) error                  { return nil }
func (BaseBackend) Else(*VM) error                { return nil }
func (BaseBackend) EndBlock(*VM) error            { return nil }
func (BaseBackend) While(*VM, Word) error         { return nil }
func (BaseBackend) Halt(*VM) error                { return nil }

// StepHook, when non-nil, is invoked by Run after every successfully
// dispatched opcode (including Halt), before IP-bounds are re-checked. It
// exists for the tracing sink (internal/trace) to observe state without the
// core dispatch loop depending on it, the same separation of concerns the
// teacher keeps between execInstructions and its debug-only
// formatInstructionStr helper.
type StepHook func(v *VM, op Opcode, opcodeIP int)

// Run drives v through code via backend until Halt or end-of-code, per the
// dispatch contract in §4.1. GC is disabled for the duration of the loop and
// restored afterward, the same trade the teacher makes around its own tight
// dispatch loop in vm/run.go's RunProgram.
func Run(v *VM, backend Backend, hook StepHook) error {
	if err := backend.Setup(v); err != nil {
		return err
	}

	prevGC := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(prevGC)

	for v.IP < len(v.Code) {
		opcodeIP := v.IP
		op := Opcode(v.Code[v.IP])
		v.IP++

		arity := op.NumImmediates()
		if v.IP+arity > len(v.Code) {
			return ErrTruncatedImmediate
		}

		var err error
		switch op {
		case Nop:
			err = backend.Nop(v)
		case Push:
			t, val := TypeTag(v.Code[v.IP]), v.Code[v.IP+1]
			v.IP += 2
			err = backend.Push(v, t, val)
		case Set:
			t, val := TypeTag(v.Code[v.IP]), v.Code[v.IP+1]
			v.IP += 2
			err = backend.Set(v, t, val)
		case Add:
			err = backend.Add(v)
		case Sub:
			err = backend.Sub(v)
		case Mul:
			err = backend.Mul(v)
		case Div:
			err = backend.Div(v)
		case Rem:
			err = backend.Rem(v)
		case BitAnd:
			err = backend.BitAnd(v)
		case BitOr:
			err = backend.BitOr(v)
		case BitXor:
			err = backend.BitXor(v)
		case Lsh:
			err = backend.Lsh(v)
		case Lrsh:
			err = backend.Lrsh(v)
		case Arsh:
			err = backend.Arsh(v)
		case Or:
			err = backend.Or(v)
		case And:
			err = backend.And(v)
		case Not:
			err = backend.Not(v)
		case Gez:
			err = backend.Gez(v)
		case Move:
			imm := v.Code[v.IP]
			v.IP++
			err = backend.Move(v, imm)
		case Offset:
			imm := v.Code[v.IP]
			v.IP++
			err = backend.Offset(v, imm)
		case Load:
			err = backend.Load(v)
		case Store:
			err = backend.Store(v)
		case Deref:
			err = backend.Deref(v)
		case Refer:
			err = backend.Refer(v)
		case Where:
			err = backend.Where(v)
		case Index:
			err = backend.Index(v)
		case Print:
			err = backend.Print(v)
		case PrintChar:
			err = backend.PrintChar(v)
		case Function:
			idx := v.Code[v.IP]
			v.IP++
			err = backend.Function(v, idx)
		case Call:
			idx := v.Code[v.IP]
			v.IP++
			err = backend.Call(v, idx)
		case Return:
			err = backend.Return(v)
		case If:
			err = backend.If(v)
		case Else:
			err = backend.Else(v)
		case EndBlock:
			err = backend.EndBlock(v)
		case While:
			condIP := v.Code[v.IP]
			v.IP++
			err = backend.While(v, condIP)
		case Halt:
			if err = backend.Halt(v); err != nil {
				return err
			}
			if hook != nil {
				hook(v, op, opcodeIP)
			}
			return backend.Finalize(v, 0)
		default:
			return ErrUnknownOpcode
		}

		if err != nil {
			return err
		}
		if hook != nil {
			hook(v, op, opcodeIP)
		}
	}

	return backend.Finalize(v, 0)
}
