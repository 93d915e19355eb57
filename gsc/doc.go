// Package gsc implements the bytecode assembler core for the GSC family
// of script engine variants.
//
// Unlike arc, GSC has no string pool and no fixup tables: every literal
// operand (string, animation name, far-call path) is resolved as soon
// as the instruction that uses it is emitted, writing a placeholder
// into the script stream and the literal value into a second stream,
// the stack segment. Because GSC's instruction sizes don't depend on
// their final alignment, the sizing pass here is plain arithmetic that
// writes no bytes (it only advances the script cursor past each
// function); only local function calls need a first full pass
// over all functions before emission, since a call may target a
// function defined later in the input.
//
// As with arc, a Context is immutable and shareable across concurrent
// Assemblers; an Assembler resets its own state at the start of every
// Assemble call.
package gsc
