// Package tac lowers a bytecode program into a linear three-address-code
// intermediate representation and prints it as Horn-clause predicates, per
// §4.3/§4.4 of the specification. The builder is grounded directly on
// original_source/frontend/tac/tac.h, the C implementation this
// specification was distilled from — in particular the retroactive
// while-condition label insertion (tac_while/tac_insert_label_at_idx/
// tac_fix_vm_map_after_insert) and the Horn-clause goal renderer
// (tac_print_goal/tac_dump_write) are ported from that file's exact
// algorithm rather than re-derived.
package tac

import "github.com/rrvm/rrvm/vm"

// Op is the closed opcode set of the TAC IR (§4.3).
type Op byte

const (
	OpConst Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLsh
	OpLrsh
	OpArsh
	OpOr
	OpAnd
	OpNot
	OpGez
	OpMove
	OpLoad
	OpStore
	OpPrint
	OpPrintChar
	OpDeref
	OpRefer
	OpWhere
	OpOffset
	OpIndex
	OpSet
	OpLabel
	OpJmp
	OpJz
	OpCall
	OpRet
)

// noTemp is the "absent" sentinel for dst/lhs/rhs, per §4.3.
const noTemp = -1

// Instr is one three-address instruction. Fields not meaningful for a given
// Op are left at their zero/absent value; see the per-op emission
// contracts in §4.3 for which fields a given Op populates.
type Instr struct {
	Op      Op
	Dst     int
	Lhs     int
	Rhs     int
	Imm     vm.Word
	DstType vm.TypeTag
	// Label is the jump target or clause id carried by Label/Jmp/Jz/Call.
	Label int
}
