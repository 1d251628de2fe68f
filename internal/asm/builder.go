package asm

import (
	"errors"
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
)

// progNode is a Node over a golang-asm instruction.
type progNode obj.Prog

// NewNode returns the Node of p, which must have been added with AddInstruction.
func NewNode(p *obj.Prog) Node { return (*progNode)(p) }

func (n *progNode) String() string { return (*obj.Prog)(n).String() }

func (n *progNode) OffsetInBinary() NodeOffsetInBinary { return NodeOffsetInBinary(n.Pc) }

// BaseAssembler holds the architecture independent state of a golang-asm
// backed assembler: the instruction list and the jumps waiting for a target.
type BaseAssembler struct {
	b     *goasm.Builder
	count int
	// forward are jumps to the next instruction added.
	forward []*obj.Prog
}

// NewBaseAssembler returns an empty assembler for the golang-asm arch, ex.
// "amd64".
func NewBaseAssembler(arch string) (*BaseAssembler, error) {
	b, err := goasm.NewBuilder(arch, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	return &BaseAssembler{b: b}, nil
}

// Assemble implements AssemblerBase.Assemble
func (a *BaseAssembler) Assemble() ([]byte, error) {
	switch {
	case a.count == 0:
		return nil, errors.New("nothing to assemble")
	case len(a.forward) > 0:
		return nil, fmt.Errorf("%d jumps target the end of the code", len(a.forward))
	}
	return a.b.Assemble(), nil
}

// SetJumpTargetOnNext implements AssemblerBase.SetJumpTargetOnNext
func (a *BaseAssembler) SetJumpTargetOnNext(nodes ...Node) {
	for _, n := range nodes {
		a.forward = append(a.forward, (*obj.Prog)(n.(*progNode)))
	}
}

// NewProg returns an instruction to fill in and pass to AddInstruction.
func (a *BaseAssembler) NewProg() *obj.Prog { return a.b.NewProg() }

// AddInstruction appends p, resolving the jumps waiting for it.
func (a *BaseAssembler) AddInstruction(p *obj.Prog) {
	a.b.AddInstruction(p)
	a.count++
	for _, j := range a.forward {
		j.To.SetTarget(p)
	}
	a.forward = a.forward[:0]
}
