package tac

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/rrvm/rrvm/vm"
)

// goal renders one instruction as a Prolog goal, with no trailing comma or
// period — the caller decides how instructions join into a clause. Ported
// from tac_print_goal.
func goal(w *bufio.Writer, instr Instr) {
	switch instr.Op {
	case OpConst:
		switch instr.DstType {
		case vm.F32:
			bits := uint32(instr.Imm)
			f := math.Float32frombits(bits)
			fmt.Fprintf(w, "const(t%d, f32, 0x%08x /* %f */)", instr.Dst, bits, float64(f))
		case vm.F64:
			bits := uint64(instr.Imm)
			d := math.Float64frombits(bits)
			fmt.Fprintf(w, "const(t%d, f64, 0x%016x /* %f */)", instr.Dst, bits, d)
		default:
			fmt.Fprintf(w, "const(t%d, %s, %d)", instr.Dst, instr.DstType, int64(instr.Imm))
		}
	case OpAdd:
		fmt.Fprintf(w, "add(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpSub:
		fmt.Fprintf(w, "sub(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpMul:
		fmt.Fprintf(w, "mul(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpDiv:
		fmt.Fprintf(w, "div(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpRem:
		fmt.Fprintf(w, "rem(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpBitAnd:
		fmt.Fprintf(w, "bitand(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpBitOr:
		fmt.Fprintf(w, "bitor(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpBitXor:
		fmt.Fprintf(w, "bitxor(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpLsh:
		fmt.Fprintf(w, "lsh(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpLrsh:
		fmt.Fprintf(w, "lrsh(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpArsh:
		fmt.Fprintf(w, "arsh(t%d, %s, t%d, t%d)", instr.Dst, instr.DstType, instr.Lhs, instr.Rhs)
	case OpOr:
		fmt.Fprintf(w, "or(t%d, bool, t%d, t%d)", instr.Dst, instr.Lhs, instr.Rhs)
	case OpAnd:
		fmt.Fprintf(w, "and(t%d, bool, t%d, t%d)", instr.Dst, instr.Lhs, instr.Rhs)
	case OpNot:
		fmt.Fprintf(w, "not(t%d, bool, t%d)", instr.Dst, instr.Lhs)
	case OpGez:
		fmt.Fprintf(w, "gez(t%d, bool, t%d)", instr.Dst, instr.Lhs)
	case OpMove:
		fmt.Fprintf(w, "move(%d)", int64(instr.Imm))
	case OpLoad:
		fmt.Fprintf(w, "load(t%d)", instr.Dst)
	case OpStore:
		fmt.Fprintf(w, "store(t%d)", instr.Lhs)
	case OpPrint:
		fmt.Fprintf(w, "print(t%d)", instr.Lhs)
	case OpPrintChar:
		fmt.Fprintf(w, "printchar(t%d)", instr.Lhs)
	case OpDeref:
		fmt.Fprintf(w, "deref(t%d, t%d)", instr.Dst, instr.Lhs)
	case OpRefer:
		fmt.Fprintf(w, "refer(t%d, t%d)", instr.Dst, instr.Lhs)
	case OpWhere:
		fmt.Fprintf(w, "where(t%d)", instr.Dst)
	case OpOffset:
		fmt.Fprintf(w, "offset(t%d, t%d, %d)", instr.Dst, instr.Lhs, int64(instr.Imm))
	case OpIndex:
		fmt.Fprintf(w, "index(t%d, t%d, t%d)", instr.Dst, instr.Lhs, instr.Rhs)
	case OpSet:
		fmt.Fprintf(w, "set(t%d, t%d)", instr.Lhs, instr.Rhs)
	case OpJmp:
		fmt.Fprintf(w, "jmp(l%d)", instr.Label)
	case OpJz:
		fmt.Fprintf(w, "jz(t%d, l%d)", instr.Lhs, instr.Label)
	case OpCall:
		if instr.Dst >= 0 {
			fmt.Fprintf(w, "call(l%d, t%d)", instr.Label, instr.Dst)
		} else {
			fmt.Fprintf(w, "call(l%d)", instr.Label)
		}
	case OpRet:
		fmt.Fprint(w, "ret")
	case OpLabel:
		fmt.Fprint(w, "true")
	default:
		fmt.Fprintf(w, "unknown(%d)", instr.Op)
	}
}

// Fprint renders prog as a sequence of Horn-clause predicates, one per
// label: each Label opens a new clause "l<id> :-", comma-joins its goals,
// and closes with a period on the next label, a Ret, or end of program.
// Instructions before the first label, and non-label instructions after a
// Ret, form an implicit l0 clause. Ported
// from tac_dump_write.
func Fprint(w io.Writer, prog []Instr) error {
	bw := bufio.NewWriter(w)
	currLabel := -1
	i := 0
	for i < len(prog) {
		if prog[i].Op == OpLabel {
			lbl := prog[i].Label
			if currLabel != -1 {
				fmt.Fprintln(bw)
			}
			currLabel = lbl
			fmt.Fprintf(bw, "l%d :-\n", currLabel)
			i++
			if i >= len(prog) || prog[i].Op == OpLabel {
				fmt.Fprintln(bw, "  true.")
				continue
			}
		} else if currLabel != 0 || (i > 0 && prog[i-1].Op == OpRet) {
			if currLabel != -1 {
				fmt.Fprintln(bw)
			}
			currLabel = 0
			fmt.Fprintln(bw, "l0 :-")
		}

		bw.WriteString("  ")
		goal(bw, prog[i])
		if prog[i].Op == OpRet {
			fmt.Fprintln(bw, ".")
			i++
			continue
		}
		i++
		for i < len(prog) && prog[i].Op != OpLabel {
			bw.WriteString(",\n  ")
			goal(bw, prog[i])
			if prog[i].Op == OpRet {
				fmt.Fprintln(bw, ".")
				i++
				break
			}
			i++
		}
		if i >= len(prog) || (i < len(prog) && prog[i].Op == OpLabel) {
			if !(i > 0 && prog[i-1].Op == OpRet) {
				fmt.Fprintln(bw, ".")
			}
		}
	}
	return bw.Flush()
}
