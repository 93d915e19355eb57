package arc

// OperandKind names one row of the operand descriptor table from the
// design note in spec §9: a single table keyed by opcode, walked once by
// the layout pass and once by the emission pass, replacing the three
// parallel switch statements the original engine used for layout,
// emission, and string collection.
type OperandKind int

const (
	CatNone OperandKind = iota
	CatByte
	CatUnsignedShort
	CatInteger
	CatIntegerAnimTree
	CatFloat
	CatVector
	CatString
	CatAnimation
	CatHash
	CatLocalVars
	CatFieldVar
	CatFunctionCall
	CatFunctionRef
	CatJump
	CatSwitch
	CatEndSwitch
)

// Descriptor is the per-opcode row itself. ARC's operand widths and
// alignments are fixed by family (§4.3's table), so the descriptor only
// needs to carry which category applies. GSC's equivalent table in the
// gsc package also carries only the category; its props-driven widths
// are resolved by the gsc assembler.
type Descriptor struct {
	Kind OperandKind
}

func descriptorFor(k OperandKind) Descriptor { return Descriptor{Kind: k} }
