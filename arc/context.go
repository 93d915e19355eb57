package arc

import (
	"encoding/binary"

	"github.com/Lierrmm/gsc-tool/internal/asmerr"
)

// Endian selects the byte order used for every multi-byte field the
// assembler writes.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// ByteOrder returns the encoding/binary.ByteOrder matching e.
func (e Endian) ByteOrder() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Instance is which side of the client/server split an engine variant
// targets; it only affects the default far-call file extension.
type Instance int

const (
	InstanceServer Instance = iota
	InstanceClient
)

// Build selects which developer-only instructions and side tables an
// engine variant emits.
type Build int

const (
	BuildProd Build = iota
	BuildDevBlocks
	BuildDevMaps
	BuildDev
)

// HasDevBlocks reports whether dev-only instructions are emitted.
func (b Build) HasDevBlocks() bool { return b == BuildDevBlocks || b == BuildDev }

// HasDevMaps reports whether the dev-map side table is emitted.
func (b Build) HasDevMaps() bool { return b == BuildDevMaps || b == BuildDev }

// Props is a bitset of feature flags that parameterize header layout,
// identifier widths, and calling conventions across engine variants.
type Props uint32

const (
	PropV2 Props = 1 << iota
	PropV3
	PropHeader64
	PropHeader72
	PropHeaderXX
	PropSize64
	PropHashIDs
	PropDevStr
	PropTok4
	PropStr4
	PropHash
	PropFarcall
	PropOffs8
	PropOffs9
	PropExtension
	PropDevBlocks
	PropDevMaps
	PropSpaces
	PropGlobals
	PropRefVarg
	PropForeach
)

// Has reports whether every flag in want is set in p.
func (p Props) Has(want Props) bool { return p&want == want }

// HeaderSize returns the number of bytes reserved for the header area at
// the start of the script image.
func (p Props) HeaderSize() int {
	switch {
	case p.Has(PropHeader72):
		return 72
	case p.Has(PropHeader64):
		return 64
	default:
		return 0
	}
}

// Context is an immutable, data-driven description of one engine
// variant: endianness, magic number, feature flags, the opcode table,
// and the identifier-resolution functions. It is constructed once per
// variant (see NewT6Context, NewT9Context) and shared read-only across
// any number of concurrent Assembler instances.
type Context struct {
	endian   Endian
	magic    uint64
	props    Props
	instance Instance
	build    Build

	opcodeID   map[Opcode]byte
	opcodeByte map[byte]Opcode
	opcodeSize map[Opcode]uint8
	descriptor map[Opcode]Descriptor

	hashID  func(string) uint64
	pathID  func(string) uint64
	tokenID func(string) uint32
	funcID  func(string) uint32
	methID  func(string) uint32
}

// Endian returns the byte order the engine uses for every multi-byte
// field.
func (c *Context) Endian() Endian { return c.endian }

// Magic returns the file magic written at offset 0 of the script image.
func (c *Context) Magic() uint64 { return c.magic }

// Props returns the engine's feature flag set.
func (c *Context) Props() Props { return c.props }

// Instance returns whether this variant targets the server or client
// side of the engine.
func (c *Context) Instance() Instance { return c.instance }

// Build returns which developer-only artifacts this variant emits.
func (c *Context) Build() Build { return c.build }

// OpcodeID returns op's engine-specific byte value, or an unknown_opcode
// error if op has no entry in this variant's table.
func (c *Context) OpcodeID(op Opcode) (byte, error) {
	if id, ok := c.opcodeID[op]; ok {
		return id, nil
	}
	return 0, asmerr.New(asmerr.UnknownOpcode, "opcode %q", string(op))
}

// OpcodeName returns the engine-specific byte value's opcode tag, or an
// unknown_opcode error if id has no entry in this variant's table.
func (c *Context) OpcodeName(id byte) (Opcode, error) {
	if op, ok := c.opcodeByte[id]; ok {
		return op, nil
	}
	return "", asmerr.New(asmerr.UnknownOpcode, "byte 0x%02x", id)
}

// OpcodeSize returns op's baseline byte count (the width of the opcode
// tag itself, before any operand bytes).
func (c *Context) OpcodeSize(op Opcode) (uint8, error) {
	if sz, ok := c.opcodeSize[op]; ok {
		return sz, nil
	}
	return 0, asmerr.New(asmerr.UnknownOpcode, "opcode %q", string(op))
}

// Descriptor returns the operand layout/emission rule for op.
func (c *Context) Descriptor(op Opcode) (Descriptor, error) {
	if d, ok := c.descriptor[op]; ok {
		return d, nil
	}
	return Descriptor{}, asmerr.New(asmerr.UnknownOpcode, "opcode %q", string(op))
}

// HashID returns the 64-bit hash the engine uses to identify s when
// identifiers are resolved by hash rather than by string-pool offset.
func (c *Context) HashID(s string) uint64 { return c.hashID(s) }

// PathID returns the 64-bit hash of a far-call script path. The built-in
// variants hash s as given; no default extension is appended.
func (c *Context) PathID(s string) uint64 { return c.pathID(s) }

// TokenID returns the interned token id for s, or 0 if s is not
// interned (callers must then emit s literally).
func (c *Context) TokenID(s string) uint32 { return c.tokenID(s) }

// FuncID returns the interned builtin-function id for s, or 0.
func (c *Context) FuncID(s string) uint32 { return c.funcID(s) }

// MethID returns the interned builtin-method id for s, or 0.
func (c *Context) MethID(s string) uint32 { return c.methID(s) }

// variantConfig is what the small per-engine constructor functions
// populate; buildContext turns it into a Context. This keeps engine
// variation entirely in data instead of Context subclasses.
type variantConfig struct {
	endian   Endian
	magic    uint64
	props    Props
	instance Instance
	build    Build
	opcodes  []opcodeEntry
	hashID   func(string) uint64
	pathID   func(string) uint64
	tokenID  func(string) uint32
	funcID   func(string) uint32
	methID   func(string) uint32
}

type opcodeEntry struct {
	op   Opcode
	id   byte
	size uint8
	desc Descriptor
}

func buildContext(cfg variantConfig) *Context {
	c := &Context{
		endian:     cfg.endian,
		magic:      cfg.magic,
		props:      cfg.props,
		instance:   cfg.instance,
		build:      cfg.build,
		opcodeID:   make(map[Opcode]byte, len(cfg.opcodes)),
		opcodeByte: make(map[byte]Opcode, len(cfg.opcodes)),
		opcodeSize: make(map[Opcode]uint8, len(cfg.opcodes)),
		descriptor: make(map[Opcode]Descriptor, len(cfg.opcodes)),
		hashID:     cfg.hashID,
		pathID:     cfg.pathID,
		tokenID:    cfg.tokenID,
		funcID:     cfg.funcID,
		methID:     cfg.methID,
	}
	for _, e := range cfg.opcodes {
		c.opcodeID[e.op] = e.id
		c.opcodeByte[e.id] = e.op
		c.opcodeSize[e.op] = e.size
		c.descriptor[e.op] = e.desc
	}
	return c
}

// baseOpcodeTable is the representative opcode set every ARC variant
// constructor starts from. Real engine integrations supply their own
// full tables through the same variantConfig.opcodes mechanism; this
// set exists to exercise every operand category from the layout table.
func baseOpcodeTable() []opcodeEntry {
	entries := []struct {
		op   Opcode
		cat  OperandKind
	}{
		{OpEnd, CatNone},
		{OpReturn, CatNone},
		{OpGetUndefined, CatNone},
		{OpGetByte, CatByte},
		{OpGetNegByte, CatByte},
		{OpGetUnsignedShort, CatUnsignedShort},
		{OpGetNegUnsignedShort, CatUnsignedShort},
		{OpGetInteger, CatInteger},
		{OpGetIntegerAnimTree, CatIntegerAnimTree},
		{OpGetFloat, CatFloat},
		{OpGetVector, CatVector},
		{OpGetString, CatString},
		{OpGetIString, CatString},
		{OpGetAnimation, CatAnimation},
		{OpGetAnimTree, CatAnimation},
		{OpGetHash, CatHash},
		{OpSafeCreateLocalVariables, CatLocalVars},
		{OpEvalFieldVariable, CatFieldVar},
		{OpEvalFieldVariableRef, CatFieldVar},
		{OpScriptFunctionCall, CatFunctionCall},
		{OpScriptMethodCall, CatFunctionCall},
		{OpGetFunction, CatFunctionRef},
		{OpJump, CatJump},
		{OpJumpOnFalse, CatJump},
		{OpJumpOnTrue, CatJump},
		{OpDevblockBegin, CatJump},
		{OpSwitch, CatSwitch},
		{OpEndSwitch, CatEndSwitch},
	}
	out := make([]opcodeEntry, len(entries))
	for i, e := range entries {
		out[i] = opcodeEntry{op: e.op, id: byte(i), size: 1, desc: descriptorFor(e.cat)}
	}
	return out
}

// NewT6Context returns a little-endian, 64-byte-header ARC variant with
// string-pool identifiers (no hashids) and no dev-only artifacts, the
// configuration an early engine generation used.
func NewT6Context() *Context {
	return buildContext(variantConfig{
		endian:   LittleEndian,
		magic:    0x4154534354383000, // "ATSCT80" plus a NUL, read as a big-endian u64
		props:    PropHeader64 | PropSize64,
		instance: InstanceServer,
		build:    BuildProd,
		opcodes:  baseOpcodeTable(),
		hashID:   fnv1a64,
		pathID:   fnv1a64,
		tokenID:  internedLookup(nil),
		funcID:   internedLookup(nil),
		methID:   internedLookup(nil),
	})
}

// NewT9Context returns a little-endian, 72-byte-header ARC variant with
// hashed exports/imports and the developer side tables enabled, the
// configuration a later engine generation used.
func NewT9Context() *Context {
	return buildContext(variantConfig{
		endian:   LittleEndian,
		magic:    0x4154534354393000,
		props:    PropHeader72 | PropSize64 | PropHashIDs | PropDevStr | PropDevMaps,
		instance: InstanceServer,
		build:    BuildDevMaps,
		opcodes:  baseOpcodeTable(),
		hashID:   fnv1a64,
		pathID:   fnv1a64,
		tokenID:  internedLookup(nil),
		funcID:   internedLookup(nil),
		methID:   internedLookup(nil),
	})
}

// fnv1a64 is the 64-bit FNV-1a hash used by hash-identified engine
// variants. It is deliberately the plain public algorithm: the real
// per-engine hash constants/seeds are part of the opcode/identifier
// tables a concrete engine integration supplies, out of scope here.
func fnv1a64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// internedLookup builds a token/func/meth id function from a static
// name table, returning 0 (not interned) for anything absent from it.
func internedLookup(table map[string]uint32) func(string) uint32 {
	return func(s string) uint32 {
		if table == nil {
			return 0
		}
		return table[s]
	}
}
