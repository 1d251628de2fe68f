package armir

import (
	"github.com/armature-emu/armature/internal/cpu"
)

// Optimize runs every pass over blk in order. code is used to fold literals.
func Optimize(blk *Block, code CodeReader) {
	Forward(blk)
	Fold(blk)
	Collapse(blk)
	Forward(blk)
	Fold(blk)
	FoldLiterals(blk, code)
	Fold(blk)
	EliminateDeadCode(blk)
	DetectIdle(blk)
	Link(blk)
}

// nop deletes instruction i.
func (b *Block) nop(i int) { b.Instrs[i] = Instr{} }

// targets calls fn with every jump target of in.
func (in *Instr) targets(fn func(int)) {
	switch in.Op {
	case OpJump, OpJumpIf, OpJumpIfZero:
		fn(in.Target)
	case OpBranch:
		fn(in.Target)
		fn(in.Target2)
	}
}

// fallsThrough returns true if control can continue with the next instruction.
func (o Op) fallsThrough() bool {
	return o != OpJump && o != OpBranch && !o.IsTerminator()
}

// tracked is a known value of a register or flag.
type tracked struct {
	known bool
	v     Arg
}

// forwardState is the known register and flag values at a program point.
type forwardState struct {
	reachable bool
	regs      [16]tracked
	flags     [32]tracked
}

func (s *forwardState) merge(o *forwardState) {
	if !s.reachable {
		*s = *o
		return
	}
	if !o.reachable {
		return
	}
	for i := range s.regs {
		if s.regs[i] != o.regs[i] {
			s.regs[i] = tracked{}
		}
	}
	for i := range s.flags {
		if s.flags[i] != o.flags[i] {
			s.flags[i] = tracked{}
		}
	}
}

// pendingStores are the stores not observed yet by a load or the outside.
type pendingStores struct {
	regs  [16]int
	flags [32]int
}

func (p *pendingStores) reset() {
	for i := range p.regs {
		p.regs[i] = -1
	}
	for i := range p.flags {
		p.flags[i] = -1
	}
}

func (p *pendingStores) resetFlags() {
	for i := range p.flags {
		p.flags[i] = -1
	}
}

// isBool returns true if a is known to be 0 or 1.
func (b *Block) isBool(a Arg) bool {
	if a.Const {
		return a.Value <= 1
	}
	in := &b.Instrs[a.Index()]
	switch in.Op {
	case OpLoadFlag, OpEqz, OpCarry, OpOverflow, OpQAddSat, OpQSubSat:
		return true
	case OpMov:
		return b.isBool(in.Args[0])
	case OpLsr:
		return in.Args[1].Const && in.Args[1].Value == 31
	case OpAnd:
		return b.isBool(in.Args[0]) || b.isBool(in.Args[1])
	case OpOr, OpXor:
		return b.isBool(in.Args[0]) && b.isBool(in.Args[1])
	}
	return false
}

// Forward replaces register and flag loads by the value last stored or
// loaded, and deletes stores overwritten before anything could observe them.
// Known values are merged at jump targets.
func Forward(blk *Block) {
	incoming := make([]*forwardState, len(blk.Instrs))
	var pend pendingStores
	pend.reset()
	cur := forwardState{reachable: true}
	record := func(t int) {
		if incoming[t] == nil {
			st := cur
			incoming[t] = &st
			return
		}
		incoming[t].merge(&cur)
	}

	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		if st := incoming[i]; st != nil {
			st.merge(&cur)
			cur = *st
			pend.reset()
		}
		switch in.Op {
		case OpLoadReg:
			if t := cur.regs[in.Aux]; t.known {
				*in = Instr{Op: OpMov, Args: [3]Arg{t.v}}
			} else {
				cur.regs[in.Aux] = tracked{true, V(i)}
			}
		case OpStoreReg:
			if p := pend.regs[in.Aux]; p >= 0 {
				blk.nop(p)
			}
			pend.regs[in.Aux] = i
			cur.regs[in.Aux] = tracked{true, in.Args[0]}
		case OpLoadFlag:
			if t := cur.flags[in.Aux]; t.known {
				*in = Instr{Op: OpMov, Args: [3]Arg{t.v}}
			} else {
				cur.flags[in.Aux] = tracked{true, V(i)}
			}
		case OpStoreFlag:
			if p := pend.flags[in.Aux]; p >= 0 {
				blk.nop(p)
			}
			pend.flags[in.Aux] = i
			if blk.isBool(in.Args[0]) {
				cur.flags[in.Aux] = tracked{true, in.Args[0]}
			} else {
				cur.flags[in.Aux] = tracked{}
			}
		case OpLoadCPSR:
			pend.resetFlags()
		case OpStoreCPSR:
			pend.reset()
			// Banked registers and every flag may change.
			for r := 8; r < cpu.PC; r++ {
				cur.regs[r] = tracked{}
			}
			cur.flags = [32]tracked{}
		case OpLoadUserReg:
			pend.regs[in.Aux] = -1
		case OpStoreUserReg:
			pend.regs[in.Aux] = -1
			cur.regs[in.Aux] = tracked{}
		case OpJump, OpJumpIf, OpJumpIfZero, OpBranch:
			in.targets(record)
			pend.reset()
		default:
			if in.Op.IsTerminator() {
				pend.reset()
			}
		}
		if !in.Op.fallsThrough() {
			cur = forwardState{}
		}
	}
}

// resolve returns a with forwarded values substituted.
func resolve(repl map[int]Arg, a Arg) Arg {
	if a.Const {
		return a
	}
	if r, ok := repl[a.Index()]; ok {
		return r
	}
	return a
}

// simplify returns the value of a pure op when an operand makes it trivial.
func simplify(o Op, args [3]Arg) (Arg, bool) {
	x, y := args[0], args[1]
	isConst := func(a Arg, v uint32) bool { return a.Const && a.Value == v }
	switch o {
	case OpAdd, OpSub, OpOr, OpXor, OpBic, OpLsl, OpLsr, OpAsr, OpRor:
		if isConst(y, 0) {
			return x, true
		}
		if o == OpAdd || o == OpOr || o == OpXor {
			if isConst(x, 0) {
				return y, true
			}
		}
	case OpAnd:
		switch {
		case isConst(x, 0), isConst(y, 0):
			return C(0), true
		case isConst(y, 0xffffffff):
			return x, true
		case isConst(x, 0xffffffff):
			return y, true
		}
	case OpMul:
		if isConst(x, 0) || isConst(y, 0) {
			return C(0), true
		}
	}
	return Arg{}, false
}

// Fold substitutes moves, evaluates pure ops with constant operands, resolves
// jumps on constants and deletes unreachable instructions.
func Fold(blk *Block) {
	repl := map[int]Arg{}
	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		for j := 0; j < in.Op.NumArgs(); j++ {
			in.Args[j] = resolve(repl, in.Args[j])
		}
		switch op := in.Op; {
		case op == OpMov:
			repl[i] = in.Args[0]
			blk.nop(i)
		case op.IsPure():
			n := op.NumArgs()
			allConst := true
			for j := 0; j < n; j++ {
				allConst = allConst && in.Args[j].Const
			}
			if allConst {
				repl[i] = C(Eval(op, in.Aux, in.Args[0].Value, in.Args[1].Value, in.Args[2].Value))
				blk.nop(i)
			} else if v, ok := simplify(op, in.Args); ok {
				repl[i] = v
				blk.nop(i)
			}
		case op == OpJumpIf || op == OpJumpIfZero:
			if c := in.Args[0]; c.Const {
				if (c.Value != 0) == (op == OpJumpIf) {
					*in = Instr{Op: OpJump, Target: in.Target}
				} else {
					blk.nop(i)
				}
			}
		case op == OpBranch:
			if c := in.Args[0]; c.Const {
				t := in.Target2
				if c.Value != 0 {
					t = in.Target
				}
				*in = Instr{Op: OpJump, Target: t}
			}
		}
	}
	removeUnreachable(blk)
}

func removeUnreachable(blk *Block) {
	reachable := make([]bool, len(blk.Instrs)+1)
	reachable[0] = true
	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		if !reachable[i] {
			blk.nop(i)
			continue
		}
		in.targets(func(t int) { reachable[t] = true })
		if in.Op.fallsThrough() {
			reachable[i+1] = true
		}
	}
}

// skipNops returns the first non-nop instruction index at or after i.
func (b *Block) skipNops(i int) int {
	for i < len(b.Instrs) && b.Instrs[i].Op == OpNop {
		i++
	}
	return i
}

// chase follows jump chains from t for a conditional jump on cond of kind op.
func (b *Block) chase(t int, op Op, cond Arg) int {
	for {
		t = b.skipNops(t)
		if t >= len(b.Instrs) {
			return t
		}
		in := &b.Instrs[t]
		switch {
		case in.Op == OpJump:
			t = in.Target
		case op == OpJumpIf || op == OpJumpIfZero:
			if (in.Op == OpJumpIf || in.Op == OpJumpIfZero) && in.Args[0] == cond {
				if in.Op == op {
					t = in.Target
				} else {
					t++
				}
				continue
			}
			return t
		default:
			return t
		}
	}
}

// Collapse shortens jump chains, deletes jumps to the next instruction and
// fuses a conditional jump followed by a jump into a two-way Branch.
func Collapse(blk *Block) {
	for changed := true; changed; {
		changed = false
		for i := range blk.Instrs {
			in := &blk.Instrs[i]
			var t, t2 int
			switch in.Op {
			case OpJump:
				t = blk.chase(in.Target, OpJump, Arg{})
			case OpJumpIf, OpJumpIfZero:
				t = blk.chase(in.Target, in.Op, in.Args[0])
			case OpBranch:
				t = blk.chase(in.Target, OpJumpIf, in.Args[0])
				t2 = blk.chase(in.Target2, OpJumpIfZero, in.Args[0])
			default:
				continue
			}
			if t != in.Target || (in.Op == OpBranch && t2 != in.Target2) {
				in.Target = t
				if in.Op == OpBranch {
					in.Target2 = t2
				}
				changed = true
			}
			next := blk.skipNops(i + 1)
			switch {
			case in.Op == OpBranch && in.Target == in.Target2:
				*in = Instr{Op: OpJump, Target: in.Target}
				changed = true
			case in.Op != OpBranch && in.Target == next:
				blk.nop(i)
				changed = true
			case (in.Op == OpJumpIf || in.Op == OpJumpIfZero) && blk.Instrs[next].Op == OpJump:
				// Nothing else targets the jump: chains through it were shortened.
				taken, other := in.Target, blk.Instrs[next].Target
				if in.Op == OpJumpIfZero {
					taken, other = other, taken
				}
				*in = Instr{Op: OpBranch, Args: [3]Arg{in.Args[0]}, Target: taken, Target2: other}
				blk.nop(next)
				changed = true
			}
		}
	}
}

// FoldLiterals replaces reads of program-counter relative constant addresses
// by the value read through code, and records the literal on the block.
//
// A literal is left as a read once the block may have written its word: after
// a write to that word, and after any write whose address is not constant.
func FoldLiterals(blk *Block, code CodeReader) {
	var written []uint32
	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		if in.Op.IsWrite() {
			if !in.Args[0].Const {
				// Jumps only go forward, so no later read can be folded.
				return
			}
			a := in.Args[0].Value
			written = append(written, a&^3, (a+writeSize(in.Op)-1)&^3)
			continue
		}
		if !in.Op.IsRead() || in.Aux != AuxLiteral || !in.Args[0].Const {
			continue
		}
		addr := in.Args[0].Value
		if containsWord(written, addr&^3) {
			continue
		}
		word := code.Fetch32(addr &^ 3)
		var v uint32
		switch in.Op {
		case OpRead8:
			v = uint32(uint8(word >> (8 * (addr & 3))))
		case OpRead8S:
			v = uint32(int8(word >> (8 * (addr & 3))))
		case OpRead16:
			v = uint32(code.Fetch16(addr))
		case OpRead16S:
			v = uint32(int16(code.Fetch16(addr)))
		default:
			v = code.Fetch32(addr)
		}
		*in = Instr{Op: OpMov, Args: [3]Arg{C(v)}}
		blk.addLiteral(addr &^ 3)
	}
}

func writeSize(o Op) uint32 {
	switch o {
	case OpWrite8:
		return 1
	case OpWrite16:
		return 2
	}
	return 4
}

func containsWord(words []uint32, w uint32) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

func (b *Block) addLiteral(addr uint32) {
	for _, l := range b.Literals {
		if l == addr {
			return
		}
	}
	b.Literals = append(b.Literals, addr)
}

// EliminateDeadCode deletes instructions without side effects whose results
// are unused.
func EliminateDeadCode(blk *Block) {
	live := make([]bool, len(blk.Instrs))
	for i := len(blk.Instrs) - 1; i >= 0; i-- {
		in := &blk.Instrs[i]
		if in.Op == OpNop {
			continue
		}
		if !live[i] && !in.Op.HasSideEffect() {
			blk.nop(i)
			continue
		}
		for j := 0; j < in.Op.NumArgs(); j++ {
			if a := in.Args[j]; !a.Const {
				live[a.Index()] = true
			}
		}
	}
}

// DetectIdle rewrites the exit of a block that only loops on itself without
// changing any state but the cycle counter to OpIdle.
func DetectIdle(blk *Block) {
	exit := -1
	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		switch op := in.Op; {
		case op == OpNop, op == OpLoadReg, op == OpLoadFlag, op == OpCycles, op.IsPure():
		case op == OpExit || op == OpIdle:
			if exit >= 0 {
				return
			}
			exit = i
		default:
			return
		}
	}
	if exit < 0 {
		return
	}
	in := &blk.Instrs[exit]
	t := in.Args[0]
	if !t.Const {
		return
	}
	target := t.Value &^ 3
	if blk.Attr.Thumb() {
		target = t.Value &^ 1
	}
	if target == blk.Addr {
		in.Op = OpIdle
		in.Link = LinkInfo{}
	}
}

// linkState is the knowledge of the T bit along a path.
type linkState struct {
	reachable bool
	// tainted is set after the CPSR was replaced.
	tainted bool
	tKnown  bool
	t       uint32
}

func (s *linkState) merge(o *linkState) {
	switch {
	case !s.reachable:
		*s = *o
	case !o.reachable:
	default:
		s.tainted = s.tainted || o.tainted
		if !o.tKnown || s.t != o.t {
			s.tKnown = false
		}
	}
}

// Link marks the exits whose successor block is known: the target is a
// constant and neither the mode nor the T bit changed in an unknown way.
func Link(blk *Block) {
	incoming := make([]*linkState, len(blk.Instrs))
	t := uint32(0)
	if blk.Attr.Thumb() {
		t = 1
	}
	cur := linkState{reachable: true, tKnown: true, t: t}
	for i := range blk.Instrs {
		in := &blk.Instrs[i]
		if st := incoming[i]; st != nil {
			st.merge(&cur)
			cur = *st
		}
		switch in.Op {
		case OpStoreFlag:
			if in.Aux == cpu.T {
				if a := in.Args[0]; a.Const {
					cur.tKnown, cur.t = true, a.Value&1
				} else {
					cur.tKnown = false
				}
			}
		case OpStoreCPSR:
			cur.tainted = true
		case OpJump, OpJumpIf, OpJumpIfZero, OpBranch:
			in.targets(func(t int) {
				if incoming[t] == nil {
					st := cur
					incoming[t] = &st
				} else {
					incoming[t].merge(&cur)
				}
			})
		case OpExit:
			in.Link = LinkInfo{}
			if a := in.Args[0]; a.Const && cur.reachable && cur.tKnown && !cur.tainted {
				attr := blk.Attr &^ Attr(cpu.FlagT)
				addr := a.Value &^ 3
				if cur.t != 0 {
					attr |= Attr(cpu.FlagT)
					addr = a.Value &^ 1
				}
				in.Link = LinkInfo{Linked: true, Addr: addr, Attr: attr}
			}
		}
		if !in.Op.fallsThrough() {
			cur = linkState{}
		}
	}
}
