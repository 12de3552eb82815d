package frontend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rrvm/rrvm/vm"
)

// ParseError carries the offending line number (1-based) and a message,
// matching the teacher's parseInputLine/preprocessLine convention of
// returning a descriptive fmt.Errorf rather than a bare error value.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// rawLine is one non-blank, non-label, non-comment source line paired with
// its 1-based source line number, produced by the preprocessing pass.
type rawLine struct {
	sourceLine int
	mnemonic   string
	args       []string
}

// Assemble lowers a textual rrvm program into a flat bytecode buffer ready
// for vm.Run. It performs the two jobs the spec's §6 "Frontend contract"
// assigns to an external parser: label resolution (including forward
// references, and the retroactive "label marks a while condition's start"
// pattern) and function-name resolution, both of which must be complete
// before the buffer is handed to the dispatch loop.
//
// Grounded on original_source/frontend/lexer/lexer.h +
// frontend/parser/parser.h (line-oriented, whitespace-tokenized, '#'
// comments) and the teacher's vm/parse.go preprocessLine/parseInputLine
// two-stage shape (strip comments and whitespace first, resolve symbols
// second, parse per-line last).
func Assemble(source string) ([]vm.Word, error) {
	lines := strings.Split(source, "\n")

	labels := make(map[string]int)  // label name -> word offset
	funcs := make(map[string]int)   // function name -> dense function index
	nextFuncIdx := 0

	var raws []rawLine
	wordOffset := 0

	for i, line := range lines {
		lineNo := i + 1
		toks := tokenizeLine(line)
		if len(toks) == 0 {
			continue
		}

		if len(toks) == 1 && strings.HasSuffix(toks[0], ":") {
			name := strings.TrimSuffix(toks[0], ":")
			if name == "" {
				return nil, &ParseError{Line: lineNo, Message: "empty label"}
			}
			if _, dup := labels[name]; dup {
				return nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("duplicate label %q", name)}
			}
			labels[name] = wordOffset
			continue
		}
		if strings.HasSuffix(toks[0], ":") {
			return nil, &ParseError{Line: lineNo, Message: "label and extra tokens on the same line"}
		}

		mnemonic := toks[0]
		args := toks[1:]

		op, ok := vm.LookupOpcode(mnemonic)
		if !ok {
			return nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("unknown mnemonic %q", mnemonic)}
		}

		// function/call take a symbolic name in place of a raw index; reserve
		// their dense index now so forward references (a call before its
		// function's body has been seen) resolve.
		if op == vm.Function || op == vm.Call {
			if len(args) != 1 {
				return nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("%s requires exactly one function name", mnemonic)}
			}
			if _, ok := funcs[args[0]]; !ok {
				funcs[args[0]] = nextFuncIdx
				nextFuncIdx++
			}
		}

		raws = append(raws, rawLine{sourceLine: lineNo, mnemonic: mnemonic, args: args})
		wordOffset += 1 + op.NumImmediates()
	}

	code := make([]vm.Word, 0, wordOffset)
	for _, rl := range raws {
		op, _ := vm.LookupOpcode(rl.mnemonic)
		words, err := assembleOne(op, rl, labels, funcs)
		if err != nil {
			return nil, err
		}
		code = append(code, words...)
	}
	return code, nil
}

func assembleOne(op vm.Opcode, rl rawLine, labels, funcs map[string]int) ([]vm.Word, error) {
	switch op {
	case vm.Push, vm.Set:
		if len(rl.args) != 2 {
			return nil, argCountErr(rl, 2)
		}
		tag, ok := vm.LookupTypeTag(rl.args[0])
		if !ok {
			return nil, &ParseError{Line: rl.sourceLine, Message: fmt.Sprintf("unknown type %q", rl.args[0])}
		}
		val, err := parseValue(rl, tag, rl.args[1])
		if err != nil {
			return nil, err
		}
		return []vm.Word{vm.Word(op), vm.Word(tag), val}, nil

	case vm.Move, vm.Offset:
		if len(rl.args) != 1 {
			return nil, argCountErr(rl, 1)
		}
		imm, err := parseInt(rl, rl.args[0])
		if err != nil {
			return nil, err
		}
		return []vm.Word{vm.Word(op), imm}, nil

	case vm.Function, vm.Call:
		if len(rl.args) != 1 {
			return nil, argCountErr(rl, 1)
		}
		idx, ok := funcs[rl.args[0]]
		if !ok {
			return nil, &ParseError{Line: rl.sourceLine, Message: fmt.Sprintf("undefined function %q", rl.args[0])}
		}
		return []vm.Word{vm.Word(op), vm.Word(idx)}, nil

	case vm.While:
		if len(rl.args) != 1 {
			return nil, argCountErr(rl, 1)
		}
		condIP, ok := labels[rl.args[0]]
		if !ok {
			return nil, &ParseError{Line: rl.sourceLine, Message: fmt.Sprintf("undefined label %q", rl.args[0])}
		}
		return []vm.Word{vm.Word(op), vm.Word(condIP)}, nil

	default:
		if len(rl.args) != 0 {
			return nil, argCountErr(rl, 0)
		}
		return []vm.Word{vm.Word(op)}, nil
	}
}

func argCountErr(rl rawLine, want int) error {
	return &ParseError{Line: rl.sourceLine, Message: fmt.Sprintf("%s expects %d argument(s), got %d", rl.mnemonic, want, len(rl.args))}
}

// parseValue interprets a push/set value literal under the given type tag:
// a quoted character literal, a float literal (bit-cast per tag width), or
// an integer literal (decimal or 0x-prefixed hex).
func parseValue(rl rawLine, tag vm.TypeTag, lit string) (vm.Word, error) {
	if strings.HasPrefix(lit, "'") {
		runes := []rune(lit)
		if len(runes) != 3 || runes[2] != '\'' {
			return 0, &ParseError{Line: rl.sourceLine, Message: "malformed character literal"}
		}
		return vm.Word(runes[1]), nil
	}

	if tag.IsFloat() {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return 0, &ParseError{Line: rl.sourceLine, Message: fmt.Sprintf("malformed float literal %q", lit)}
		}
		if tag == vm.F32 {
			return vm.WordFromFloat32(float32(f)), nil
		}
		return vm.WordFromFloat64(f), nil
	}

	if tag == vm.Bool {
		switch lit {
		case "true", "1":
			return 1, nil
		case "false", "0":
			return 0, nil
		default:
			return 0, &ParseError{Line: rl.sourceLine, Message: fmt.Sprintf("malformed bool literal %q", lit)}
		}
	}

	return parseInt(rl, lit)
}

func parseInt(rl rawLine, lit string) (vm.Word, error) {
	base := 10
	neg := false
	s := lit
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if strings.HasPrefix(s, "0x") {
		base = 16
		s = s[2:]
	}
	u, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		// Fall back to a signed parse for bare decimal negatives beyond
		// int64's unsigned-magnitude fast path (kept simple, matches
		// strconv.ParseInt's own fallback in the teacher's parseInputLine).
		v, err2 := strconv.ParseInt(lit, base, 64)
		if err2 != nil {
			return 0, &ParseError{Line: rl.sourceLine, Message: fmt.Sprintf("malformed integer literal %q", lit)}
		}
		return vm.Word(v), nil
	}
	val := int64(u)
	if neg {
		val = -val
	}
	return vm.Word(val), nil
}
