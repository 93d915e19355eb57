package gsc

import (
	"encoding/binary"

	"github.com/Lierrmm/gsc-tool/internal/asmerr"
)

// Endian selects the byte order used for every multi-byte field.
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

// Build selects which developer-only instructions and side tables an
// engine variant emits.
type Build int

const (
	BuildProd Build = iota
	BuildDevBlocks
	BuildDevMaps
	BuildDev
)

func (b Build) HasDevMaps() bool { return b == BuildDevMaps || b == BuildDev }

// Props is a bitset of feature flags parameterizing identifier widths,
// call encodings, and string handling across GSC engine variants.
type Props uint32

const (
	// PropStr4 widens inline string/animation placeholder slots to 4
	// bytes (else 2).
	PropStr4 Props = 1 << iota
	// PropTok4 widens builtin-call token ids to 4 bytes (else 2).
	PropTok4
	// PropHash widens field-variable slots to an 8-byte hash and skips
	// the string table for field names.
	PropHash
	// PropFarcall makes far calls use 64-bit hashed path/name in the
	// stack segment instead of token ids.
	PropFarcall
	// PropOffs8 shifts packed local-call and switch-table displacements
	// by 8 bits instead of the default 10.
	PropOffs8
	// PropOffs9 shifts packed local-call and switch-table displacements
	// by 9 bits instead of the default 10. Mutually exclusive with
	// PropOffs8.
	PropOffs9
	// PropIW9 selects the i16+sentinel switch-case encoding instead of
	// the packed 3-byte encoding.
	PropIW9
	// PropExtension marks variants whose PathID appends .gsc to far-call
	// paths that don't already carry an extension.
	PropExtension
	PropDevBlocks
	PropDevMaps
)

// Has reports whether every flag in want is set in p.
func (p Props) Has(want Props) bool { return p&want == want }

// DisplacementShift returns the bit shift applied to packed local-call
// and switch-table displacements before emission.
func (p Props) DisplacementShift() uint {
	switch {
	case p.Has(PropOffs8):
		return 8
	case p.Has(PropOffs9):
		return 9
	default:
		return 10
	}
}

// Context describes one GSC engine variant.
type Context struct {
	endian Endian
	props  Props
	build  Build

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

func (c *Context) Endian() Endian { return c.endian }
func (c *Context) Props() Props   { return c.props }
func (c *Context) Build() Build   { return c.build }

// OpcodeID returns op's engine-specific byte value.
func (c *Context) OpcodeID(op Opcode) (byte, error) {
	if id, ok := c.opcodeID[op]; ok {
		return id, nil
	}
	return 0, asmerr.New(asmerr.UnknownOpcode, "opcode %q", string(op))
}

// OpcodeSize returns op's baseline byte count.
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

// HashID returns the 64-bit hash identifying s (builtin/field names).
func (c *Context) HashID(s string) uint64 { return c.hashID(s) }

// PathID returns the 64-bit hash of a far-call script path, including
// the engine's default extension when s doesn't already carry one and
// PropExtension is set.
func (c *Context) PathID(s string) uint64 { return c.pathID(s) }

// TokenID returns the interned token id for s, or 0 if not interned.
func (c *Context) TokenID(s string) uint32 { return c.tokenID(s) }

// FuncID returns the interned builtin-function id for s, or 0.
func (c *Context) FuncID(s string) uint32 { return c.funcID(s) }

// MethID returns the interned builtin-method id for s, or 0.
func (c *Context) MethID(s string) uint32 { return c.methID(s) }

type variantConfig struct {
	endian  Endian
	props   Props
	build   Build
	opcodes []opcodeEntry
	hashID  func(string) uint64
	pathID  func(string) uint64
	tokenID func(string) uint32
	funcID  func(string) uint32
	methID  func(string) uint32
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
		props:      cfg.props,
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

func baseOpcodeTable() []opcodeEntry {
	entries := []struct {
		op  Opcode
		cat OperandKind
	}{
		{OpEnd, CatNone},
		{OpReturn, CatNone},
		{OpGetUndefined, CatNone},
		{OpGetByte, CatByte},
		{OpGetUnsignedShort, CatUnsignedShort},
		{OpGetInteger, CatInteger},
		{OpGetInteger64, CatInteger64},
		{OpGetFloat, CatFloat},
		{OpGetVector, CatVector},
		{OpGetString, CatString},
		{OpGetIString, CatString},
		{OpGetAnimation, CatAnimation},
		{OpGetAnimTree, CatAnimation},
		{OpGetHash, CatHash},
		{OpEvalFieldVariable, CatFieldVar},
		{OpEvalLocalVariable, CatFieldVar},
		{OpScriptFarFunctionCall, CatCallFar},
		{OpScriptFarMethodCall, CatCallFar},
		{OpScriptLocalFunctionCall, CatCallLocal},
		{OpScriptFunctionCallBuiltin, CatCallBuiltin},
		{OpScriptMethodCallBuiltin, CatCallBuiltin},
		{OpJump, CatJumpLong},
		{OpJumpBack, CatJumpBack},
		{OpJumpOnFalse, CatJump},
		{OpJumpOnTrue, CatJump},
		{OpJumpOnFalseExpr, CatJump},
		{OpJumpOnTrueExpr, CatJump},
		{OpSwitch, CatSwitch},
		{OpEndSwitch, CatEndSwitch},
	}
	out := make([]opcodeEntry, len(entries))
	for i, e := range entries {
		out[i] = opcodeEntry{op: e.op, id: byte(i + 1), size: 1, desc: descriptorFor(e.cat)}
	}
	return out
}

// NewIW6Context returns a little-endian GSC variant using token-id calls
// (farcall off), the packed 3-byte displacement encoding, and 2-byte
// string/token widths — an earlier engine generation's configuration.
func NewIW6Context() *Context {
	return buildContext(variantConfig{
		endian:  LittleEndian,
		props:   0,
		build:   BuildProd,
		opcodes: baseOpcodeTable(),
		hashID:  fnv1a64,
		pathID:  pathHasher(false),
		tokenID: internedLookup(nil),
		funcID:  internedLookup(nil),
		methID:  internedLookup(nil),
	})
}

// NewIW9Context returns a little-endian GSC variant with hashed far
// calls, the iw9 switch-case encoding, and the developer map enabled —
// a later engine generation's configuration.
func NewIW9Context() *Context {
	return buildContext(variantConfig{
		endian:  LittleEndian,
		props:   PropFarcall | PropIW9 | PropHash | PropExtension | PropDevMaps,
		build:   BuildDevMaps,
		opcodes: baseOpcodeTable(),
		hashID:  fnv1a64,
		pathID:  pathHasher(true),
		tokenID: internedLookup(nil),
		funcID:  internedLookup(nil),
		methID:  internedLookup(nil),
	})
}

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

// pathHasher returns a PathID function that appends a default .gsc
// extension to paths lacking one, when extension is true.
func pathHasher(extension bool) func(string) uint64 {
	return func(s string) uint64 {
		if extension && !hasScriptExtension(s) {
			s += ".gsc"
		}
		return fnv1a64(s)
	}
}

func hasScriptExtension(s string) bool {
	for i := len(s) - 1; i >= 0 && i >= len(s)-5; i-- {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

func internedLookup(table map[string]uint32) func(string) uint32 {
	return func(s string) uint32 {
		if table == nil {
			return 0
		}
		return table[s]
	}
}
