// Package arc implements the bytecode assembler core for the ARC family
// of script engine variants.
//
// An Assembler is constructed from a Context describing one concrete
// engine variant (endianness, magic number, opcode table, feature
// flags) and converts an Assembly IR into a byte-exact script image plus
// a developer source-position side table. The Context is immutable and
// may be shared across any number of concurrent Assemblers; an
// Assembler itself owns mutable writers and fixup state and resets them
// at the start of every Assemble call, so it may be reused across
// successive inputs.
//
// This package has no opinion on how the Assembly IR was produced
// (lexing, parsing, and compilation are external collaborators) and no
// opinion on what happens to its output (loading the script image is the
// runtime's job). It only guarantees that, for a fixed Context and
// input, repeated calls to Assemble produce identical bytes.
package arc
