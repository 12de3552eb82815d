package tac

import "github.com/rrvm/rrvm/vm"

// Builder is a vm.Backend that lowers a bytecode program into the TAC IR
// instead of executing it. It never mutates v.IP, so driving it through
// vm.Run turns the dispatch loop into a single linear pass over Code: every
// opcode is translated exactly once, in the order it appears in the
// bytecode, regardless of what a condition would have done at real runtime.
// That is also why If/While bodies are lowered from straight-line bytecode
// layout rather than by following branches the way backend/interpreter
// does — the true branch, the Else marker, and the false branch all sit one
// after another in Code, and EndBlock/Else here only ever close the TAC
// clause shape, never skip anything.
type Builder struct {
	vm.BaseBackend

	Prog []Instr

	stack    []int
	nextTemp int

	labelCounter int
	blockStack   []blockEntry
	funcLabel    map[int]int

	vmIPToTacIndex []int
	vmIPToTacLabel []int

	tempTypes []vm.TypeTag
}

type blockKind byte

const (
	blockIf blockKind = iota
	blockElse
	blockWhile
	blockFunction
)

// blockEntry mirrors the interpreter's BlockEntry but carries the extra
// label bookkeeping a structured-control construct needs to close out its
// TAC clause shape, ported from tac_block_entry in the reference backend.
type blockEntry struct {
	kind                            blockKind
	startLabel, elseLabel, endLabel int
	condVMIP                        int // -1 if not applicable
}

// NewBuilder constructs a Builder. Call Setup (or drive it through vm.Run,
// which calls Setup itself) before emitting anything.
func NewBuilder() *Builder { return &Builder{} }

// Program returns the completed TAC instruction stream.
func (b *Builder) Program() []Instr { return b.Prog }

func (b *Builder) Setup(v *vm.VM) error {
	n := len(v.Code)
	b.vmIPToTacIndex = make([]int, n)
	b.vmIPToTacLabel = make([]int, n)
	for i := range b.vmIPToTacIndex {
		b.vmIPToTacIndex[i] = -1
		b.vmIPToTacLabel[i] = -1
	}
	b.labelCounter = 1
	b.funcLabel = make(map[int]int)
	return nil
}

func (b *Builder) Finalize(*vm.VM, vm.Word) error { return nil }

// --- small internal helpers ---

func opcodeIPFor(v *vm.VM, consumed int) int {
	if v.IP >= consumed {
		return v.IP - consumed
	}
	return 0
}

func (b *Builder) recordVMIP(vmIP, tacIndex int) {
	if vmIP >= 0 && vmIP < len(b.vmIPToTacIndex) {
		b.vmIPToTacIndex[vmIP] = tacIndex
	}
}

// fixVMMapAfterInsert bumps every vm-ip -> tac-index mapping that pointed at
// or past idx, after a label has been spliced in at idx. vmIPToTacLabel is
// keyed by vm ip, not by tac index, so it never needs shifting.
func (b *Builder) fixVMMapAfterInsert(idx int) {
	for i := range b.vmIPToTacIndex {
		if b.vmIPToTacIndex[i] >= idx {
			b.vmIPToTacIndex[i]++
		}
	}
}

func (b *Builder) ensureTempType(id int) {
	for len(b.tempTypes) <= id {
		b.tempTypes = append(b.tempTypes, vm.Unknown)
	}
}

func (b *Builder) setTempType(id int, t vm.TypeTag) {
	b.ensureTempType(id)
	b.tempTypes[id] = t
}

func (b *Builder) tempType(id int) vm.TypeTag {
	if id >= 0 && id < len(b.tempTypes) {
		return b.tempTypes[id]
	}
	return vm.Unknown
}

func (b *Builder) pushTemp(id int) { b.stack = append(b.stack, id) }

func (b *Builder) popTemp() int {
	n := len(b.stack) - 1
	id := b.stack[n]
	b.stack = b.stack[:n]
	return id
}

func (b *Builder) peekTemp() (int, bool) {
	if len(b.stack) == 0 {
		return 0, false
	}
	return b.stack[len(b.stack)-1], true
}

func (b *Builder) pushBlockEntry(be blockEntry) { b.blockStack = append(b.blockStack, be) }

func (b *Builder) popBlockEntry() (blockEntry, error) {
	if len(b.blockStack) == 0 {
		return blockEntry{}, vm.ErrUnmatchedBlock
	}
	n := len(b.blockStack) - 1
	be := b.blockStack[n]
	b.blockStack = b.blockStack[:n]
	return be, nil
}

func (b *Builder) emit(instr Instr) int {
	idx := len(b.Prog)
	b.Prog = append(b.Prog, instr)
	return idx
}

func (b *Builder) emitLabel(label int) int { return b.emit(Instr{Op: OpLabel, Label: label}) }
func (b *Builder) emitJmp(label int) int   { return b.emit(Instr{Op: OpJmp, Label: label}) }
func (b *Builder) emitJz(cond, label int) int {
	return b.emit(Instr{Op: OpJz, Lhs: cond, Label: label})
}

func (b *Builder) newLabel() int {
	l := b.labelCounter
	b.labelCounter++
	return l
}

// insertAt splices instr into Prog at idx, shifting everything after it one
// slot to the right.
func (b *Builder) insertAt(idx int, instr Instr) {
	b.Prog = append(b.Prog, Instr{})
	copy(b.Prog[idx+1:], b.Prog[idx:])
	b.Prog[idx] = instr
}

// insertLabelAtIdx splices a Label instruction in at a previously recorded
// tac index, ported from tac_insert_label_at_idx. Any vm-ip whose recorded
// tac index equals idx is retroactively attached to the new label before the
// splice renumbers everything at or past idx.
func (b *Builder) insertLabelAtIdx(idx, label int) {
	for i, mapped := range b.vmIPToTacIndex {
		if mapped == idx {
			b.vmIPToTacLabel[i] = label
		}
	}
	b.insertAt(idx, Instr{Op: OpLabel, Label: label})
	b.fixVMMapAfterInsert(idx)
}

func (b *Builder) binary(op Op) error {
	rhs := b.popTemp()
	lhs := b.popTemp()
	dst := b.nextTemp
	b.nextTemp++
	dt := b.tempType(lhs)
	b.setTempType(dst, dt)
	b.emit(Instr{Op: op, Dst: dst, Lhs: lhs, Rhs: rhs, DstType: dt})
	b.pushTemp(dst)
	return nil
}

func (b *Builder) unary(op Op) error {
	lhs := b.popTemp()
	dst := b.nextTemp
	b.nextTemp++
	b.emit(Instr{Op: op, Dst: dst, Lhs: lhs})
	b.pushTemp(dst)
	return nil
}

// --- Backend hooks: value-producing and straight-line opcodes ---

func (b *Builder) Push(v *vm.VM, t vm.TypeTag, val vm.Word) error {
	b.recordVMIP(opcodeIPFor(v, 3), len(b.Prog))
	tmp := b.nextTemp
	b.nextTemp++
	b.setTempType(tmp, t)
	b.emit(Instr{Op: OpConst, Dst: tmp, Imm: val, DstType: t})
	b.pushTemp(tmp)
	return nil
}

func (b *Builder) Set(v *vm.VM, t vm.TypeTag, val vm.Word) error {
	b.recordVMIP(opcodeIPFor(v, 3), len(b.Prog))

	valtmp := b.nextTemp
	b.nextTemp++
	b.setTempType(valtmp, t)
	b.emit(Instr{Op: OpConst, Dst: valtmp, Imm: val, DstType: t})

	// Peek, never pop: the pointer stays available for whatever pointer op
	// follows, matching VM semantics where Set does not consume the pointer.
	lhs, ok := b.peekTemp()
	if !ok {
		lhs = b.nextTemp
		b.nextTemp++
		b.setTempType(lhs, vm.Ptr)
		b.emit(Instr{Op: OpWhere, Dst: lhs, DstType: vm.Ptr})
		b.pushTemp(lhs)
	}
	b.emit(Instr{Op: OpSet, Lhs: lhs, Rhs: valtmp})
	return nil
}

func (b *Builder) Add(v *vm.VM) error    { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpAdd) }
func (b *Builder) Sub(v *vm.VM) error    { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpSub) }
func (b *Builder) Mul(v *vm.VM) error    { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpMul) }
func (b *Builder) Div(v *vm.VM) error    { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpDiv) }
func (b *Builder) Rem(v *vm.VM) error    { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpRem) }
func (b *Builder) BitAnd(v *vm.VM) error { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpBitAnd) }
func (b *Builder) BitOr(v *vm.VM) error  { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpBitOr) }
func (b *Builder) BitXor(v *vm.VM) error { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpBitXor) }
func (b *Builder) Lsh(v *vm.VM) error    { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpLsh) }
func (b *Builder) Lrsh(v *vm.VM) error   { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpLrsh) }
func (b *Builder) Arsh(v *vm.VM) error   { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpArsh) }
func (b *Builder) Or(v *vm.VM) error     { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpOr) }
func (b *Builder) And(v *vm.VM) error    { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.binary(OpAnd) }

func (b *Builder) Not(v *vm.VM) error { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.unary(OpNot) }
func (b *Builder) Gez(v *vm.VM) error { b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog)); return b.unary(OpGez) }

func (b *Builder) Move(v *vm.VM, imm vm.Word) error {
	b.recordVMIP(opcodeIPFor(v, 2), len(b.Prog))
	b.emit(Instr{Op: OpMove, Imm: imm})
	return nil
}

func (b *Builder) Load(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	dst := b.nextTemp
	b.nextTemp++
	b.emit(Instr{Op: OpLoad, Dst: dst})
	b.pushTemp(dst)
	return nil
}

func (b *Builder) Store(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	src := b.popTemp()
	b.emit(Instr{Op: OpStore, Dst: noTemp, Lhs: src})
	return nil
}

func (b *Builder) Print(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	val := b.popTemp()
	b.emit(Instr{Op: OpPrint, Lhs: val})
	return nil
}

func (b *Builder) PrintChar(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	val := b.popTemp()
	b.emit(Instr{Op: OpPrintChar, Lhs: val})
	return nil
}

func (b *Builder) Deref(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	lhs := b.popTemp()
	dst := b.nextTemp
	b.nextTemp++
	b.emit(Instr{Op: OpDeref, Dst: dst, Lhs: lhs})
	b.pushTemp(dst)
	return nil
}

func (b *Builder) Refer(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	lhs := b.popTemp()
	dst := b.nextTemp
	b.nextTemp++
	b.emit(Instr{Op: OpRefer, Dst: dst, Lhs: lhs})
	b.pushTemp(dst)
	return nil
}

func (b *Builder) Where(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	dst := b.nextTemp
	b.nextTemp++
	b.emit(Instr{Op: OpWhere, Dst: dst})
	b.pushTemp(dst)
	return nil
}

func (b *Builder) Offset(v *vm.VM, imm vm.Word) error {
	b.recordVMIP(opcodeIPFor(v, 2), len(b.Prog))
	lhs := b.popTemp()
	dst := b.nextTemp
	b.nextTemp++
	b.emit(Instr{Op: OpOffset, Dst: dst, Lhs: lhs, Imm: imm})
	b.pushTemp(dst)
	return nil
}

func (b *Builder) Index(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	rhs := b.popTemp()
	lhs := b.popTemp()
	dst := b.nextTemp
	b.nextTemp++
	b.emit(Instr{Op: OpIndex, Dst: dst, Lhs: lhs, Rhs: rhs})
	b.pushTemp(dst)
	return nil
}

// --- Functions and calls ---

func (b *Builder) Function(v *vm.VM, idx vm.Word) error {
	b.recordVMIP(opcodeIPFor(v, 2), len(b.Prog))
	lbl := b.newLabel()
	b.funcLabel[int(idx)] = lbl
	b.emitLabel(lbl)
	b.pushBlockEntry(blockEntry{kind: blockFunction, startLabel: lbl, condVMIP: -1})
	return nil
}

func (b *Builder) Call(v *vm.VM, idx vm.Word) error {
	b.recordVMIP(opcodeIPFor(v, 2), len(b.Prog))
	label, ok := b.funcLabel[int(idx)]
	if !ok {
		// Forward reference to a function whose Function opcode hasn't been
		// walked yet; reserve its label now so the call site is valid TAC.
		label = b.newLabel()
		b.funcLabel[int(idx)] = label
	}
	dst := b.nextTemp
	b.nextTemp++
	b.emit(Instr{Op: OpCall, Dst: dst, Label: label})
	b.pushTemp(dst)
	return nil
}

func (b *Builder) Return(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	b.emit(Instr{Op: OpRet})
	return nil
}

// --- Structured control flow ---

func (b *Builder) If(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	cond := b.popTemp()
	elseLabel := b.newLabel()
	endLabel := b.newLabel()
	b.emitJz(cond, elseLabel)
	b.pushBlockEntry(blockEntry{kind: blockIf, elseLabel: elseLabel, endLabel: endLabel, condVMIP: -1})
	return nil
}

func (b *Builder) Else(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	if len(b.blockStack) == 0 {
		return vm.ErrUnmatchedBlock
	}
	top := len(b.blockStack) - 1
	be := b.blockStack[top]
	if be.kind != blockIf {
		return vm.ErrUnmatchedBlock
	}
	b.emitJmp(be.endLabel)
	b.emitLabel(be.elseLabel)
	b.blockStack[top].kind = blockElse
	return nil
}

// While retroactively splices a Label into the already-emitted TAC stream
// at the tac index corresponding to condIP (the vm ip the condition check
// starts at), so the loop body's closing jump has something to land on.
// condIP was recorded by an earlier Push/Load/etc. hook during this same
// linear walk, which is why the mapping is guaranteed to already exist by
// the time While runs.
func (b *Builder) While(v *vm.VM, condIP vm.Word) error {
	b.recordVMIP(opcodeIPFor(v, 2), len(b.Prog))
	cond := b.popTemp()

	condVMIP := int(condIP)
	condLabel := -1
	if condVMIP >= 0 && condVMIP < len(b.vmIPToTacIndex) {
		if mapIdx := b.vmIPToTacIndex[condVMIP]; mapIdx >= 0 {
			condLabel = b.newLabel()
			b.insertLabelAtIdx(mapIdx, condLabel)
		}
	}
	if condLabel < 0 {
		// No mapping was recorded for this vm ip; fall back to a fresh label
		// rather than leaving the loop unable to close.
		condLabel = b.newLabel()
	}
	if condVMIP >= 0 && condVMIP < len(b.vmIPToTacLabel) {
		b.vmIPToTacLabel[condVMIP] = condLabel
	}

	endLabel := b.newLabel()
	b.emitJz(cond, endLabel)
	bodyLabel := b.newLabel()
	b.emitLabel(bodyLabel)
	b.pushBlockEntry(blockEntry{kind: blockWhile, startLabel: condLabel, endLabel: endLabel, condVMIP: condVMIP})
	return nil
}

func (b *Builder) EndBlock(v *vm.VM) error {
	b.recordVMIP(opcodeIPFor(v, 1), len(b.Prog))
	be, err := b.popBlockEntry()
	if err != nil {
		return err
	}
	switch be.kind {
	case blockWhile:
		target := be.startLabel
		if target <= 0 {
			for _, lbl := range b.vmIPToTacLabel {
				if lbl > 0 {
					target = lbl
					break
				}
			}
		}
		if target <= 0 {
			return vm.ErrUnmatchedBlock
		}
		b.emitJmp(target)
		b.emitLabel(be.endLabel)
	case blockIf, blockElse:
		b.emitLabel(be.endLabel)
	case blockFunction:
		// Nothing to emit; the label was already placed by Function.
	default:
		return vm.ErrUnmatchedBlock
	}
	return nil
}
