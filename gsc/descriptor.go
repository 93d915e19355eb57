package gsc

// OperandKind names one row of the GSC operand descriptor table, the
// same data-driven replacement for switch-based dispatch used by the
// arc package, adapted to GSC's lack of a pre-computed alignment pass.
type OperandKind int

const (
	CatNone OperandKind = iota
	CatByte
	CatUnsignedShort
	CatInteger
	CatInteger64
	CatFloat
	CatVector
	CatString
	CatAnimation
	CatHash
	CatFieldVar
	CatCallFar
	CatCallLocal
	CatCallBuiltin
	CatJump
	CatJumpBack
	CatJumpLong
	CatSwitch
	CatEndSwitch
)

// Descriptor is the per-opcode row. Unlike ARC, GSC operand widths are
// not fixed by category alone — several are props-driven (str4, tok4,
// hash) — so width resolution lives in the assembler, keyed by category
// plus the Context's Props.
type Descriptor struct {
	Kind OperandKind
}

func descriptorFor(k OperandKind) Descriptor { return Descriptor{Kind: k} }
