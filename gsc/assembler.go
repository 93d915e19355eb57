// Package gsc implements the bytecode assembler core for the GSC family
// of script engine variants, producing a script stream, a stack
// segment carrying literal strings and far-call identifiers, and a
// developer source-position side table.
package gsc

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/Lierrmm/gsc-tool/internal/asmerr"
	"github.com/Lierrmm/gsc-tool/internal/bin"
)

const encStrPrefix = "_encstr_"

// Assembler turns one Assembly into a script stream, stack segment, and
// dev-map for a fixed engine Context. Like arc.Assembler it owns its
// writers and resets them at the start of every Assemble call.
type Assembler struct {
	ctx    *Context
	script *bin.Writer
	stack  *bin.Writer
	devmap *bin.Writer
	asm    *Assembly
}

// NewAssembler returns an Assembler bound to ctx.
func NewAssembler(ctx *Context) *Assembler {
	return &Assembler{
		ctx:    ctx,
		script: bin.New(ctx.Endian().ByteOrder(), 0),
		stack:  bin.New(ctx.Endian().ByteOrder(), 0),
		devmap: bin.New(ctx.Endian().ByteOrder(), 0),
	}
}

func (a *Assembler) reset() {
	a.script.Reset()
	a.stack.Reset()
	a.devmap.Reset()
}

// Assemble converts asm into a script stream, stack segment, and
// dev-map. Errors are terminal.
func (a *Assembler) Assemble(asm *Assembly) (script, stack, devmap []byte, err error) {
	a.reset()
	a.asm = asm

	endID, err := a.ctx.OpcodeID(OpEnd)
	if err != nil {
		return nil, nil, nil, err
	}
	a.script.WriteU8(endID)
	a.devmap.Seek(4)

	for fi := range asm.Functions {
		if err := a.sizeFunction(&asm.Functions[fi]); err != nil {
			return nil, nil, nil, err
		}
	}

	for fi := range asm.Functions {
		if err := a.emitFunction(&asm.Functions[fi]); err != nil {
			return nil, nil, nil, err
		}
	}

	a.devmap.SetPos(0)
	a.devmap.WriteU32(uint32((a.devmap.Len() - 4) / 8))

	if err := a.script.Err(); err != nil {
		return nil, nil, nil, asmerr.New(asmerr.BufferOverflow, "script buffer: %v", err)
	}
	if err := a.stack.Err(); err != nil {
		return nil, nil, nil, asmerr.New(asmerr.BufferOverflow, "stack buffer: %v", err)
	}
	if err := a.devmap.Err(); err != nil {
		return nil, nil, nil, asmerr.New(asmerr.BufferOverflow, "devmap buffer: %v", err)
	}
	return a.script.Data(), a.stack.Data(), a.devmap.Data(), nil
}

func (a *Assembler) sizeFunction(fn *Function) error {
	fn.Index = a.script.Pos()
	fn.Size = 0
	newLabels := make(map[int]string, len(fn.Labels))
	for ord := range fn.Instructions {
		inst := &fn.Instructions[ord]
		base, err := a.ctx.OpcodeSize(inst.Op)
		if err != nil {
			return err
		}
		desc, err := a.ctx.Descriptor(inst.Op)
		if err != nil {
			return err
		}
		extra, err := operandSize(a.ctx, desc.Kind, inst)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%v", err)
		}
		inst.Index = fn.Size
		inst.Size = int(base) + extra
		fn.Size += inst.Size
		if label, ok := fn.Labels[ord]; ok {
			newLabels[inst.Index] = label
		}
	}
	fn.Labels = newLabels
	a.script.Seek(fn.Size)
	return nil
}

func stringWidth(p Props) int {
	if p.Has(PropStr4) {
		return 4
	}
	return 2
}

func tokenWidth(p Props) int {
	if p.Has(PropTok4) {
		return 4
	}
	return 2
}

func fieldWidth(p Props) int {
	if p.Has(PropHash) {
		return 8
	}
	return stringWidth(p)
}

func callFarWidth(p Props) int {
	if p.Has(PropFarcall) {
		return 4
	}
	return tokenWidth(p)
}

func dispWidth(p Props) int {
	if p.Has(PropIW9) {
		return 4
	}
	return 3
}

func operandSize(ctx *Context, kind OperandKind, inst *Instruction) (int, error) {
	p := ctx.Props()
	switch kind {
	case CatNone:
		return 0, nil
	case CatByte:
		return 1, nil
	case CatUnsignedShort:
		return 2, nil
	case CatInteger, CatFloat, CatHash:
		return 4, nil
	case CatInteger64:
		return 8, nil
	case CatVector:
		return 12, nil
	case CatString, CatAnimation:
		return stringWidth(p), nil
	case CatFieldVar:
		return fieldWidth(p), nil
	case CatCallFar:
		return callFarWidth(p), nil
	case CatCallLocal:
		return 3, nil
	case CatCallBuiltin:
		return tokenWidth(p), nil
	case CatJump, CatJumpBack:
		return 2, nil
	case CatJumpLong, CatSwitch:
		return 4, nil
	case CatEndSwitch:
		tbl, err := parseSwitchTable(inst.Data)
		if err != nil {
			return 0, err
		}
		sz := 2 // u16 case count
		for range tbl.cases {
			sz += 4 + dispWidth(p) // value (u32) + displacement
		}
		sz += 4 + dispWidth(p) // default entry: u32 zero + displacement
		return sz, nil
	default:
		return 0, asmerr.New(asmerr.MalformedOperand, "unhandled operand kind")
	}
}

func (a *Assembler) resolveFunction(name string) (int, bool) {
	for i := range a.asm.Functions {
		if a.asm.Functions[i].Name == name {
			return a.asm.Functions[i].Index, true
		}
	}
	return 0, false
}

func (a *Assembler) resolveLabel(fn *Function, name string) (int, error) {
	for off, n := range fn.Labels {
		if n == name {
			return off, nil
		}
	}
	return 0, asmerr.New(asmerr.UnresolvedLabel, "label %q", name)
}

func (a *Assembler) emitFunction(fn *Function) error {
	a.script.SetPos(fn.Index)

	sizePos := a.stack.Pos()
	a.stack.WriteU32(0)
	if a.ctx.Props().Has(PropHash) {
		a.stack.WriteU64(a.ctx.HashID(fn.Name))
	} else {
		id := a.ctx.TokenID(fn.Name)
		if tokenWidth(a.ctx.Props()) == 4 {
			a.stack.WriteU32(id)
		} else {
			a.stack.WriteU16(uint16(id))
		}
		if id == 0 {
			a.stack.WriteCString(fn.Name)
		}
	}

	for ord := range fn.Instructions {
		inst := &fn.Instructions[ord]
		instAbs := fn.Index + inst.Index
		a.script.SetPos(instAbs)
		id, err := a.ctx.OpcodeID(inst.Op)
		if err != nil {
			return err
		}
		a.script.WriteU8(id)
		desc, err := a.ctx.Descriptor(inst.Op)
		if err != nil {
			return err
		}
		if err := a.emitOperand(fn, ord, inst, desc.Kind, instAbs); err != nil {
			return err
		}
		if a.ctx.Build().HasDevMaps() {
			a.devmap.WriteU32(uint32(instAbs))
			a.devmap.WriteU16(uint16(inst.Pos.Line))
			a.devmap.WriteU16(uint16(inst.Pos.Column))
		}
	}

	stackLen := a.stack.Pos() - sizePos - 4
	cur := a.stack.Pos()
	a.stack.SetPos(sizePos)
	a.stack.WriteU32(uint32(stackLen))
	a.stack.SetPos(cur)
	a.script.SetPos(fn.Index + fn.Size)
	return nil
}

// pushLiteral writes s (decoded from the _encstr_ hex escape when
// present) as a NUL-terminated string to the stack segment.
func (a *Assembler) pushLiteral(s string) {
	if strings.HasPrefix(s, encStrPrefix) {
		raw, err := hex.DecodeString(s[len(encStrPrefix):])
		if err == nil {
			a.stack.WriteBytes(raw)
			a.stack.WriteU8(0)
			return
		}
	}
	a.stack.WriteCString(s)
}

func (a *Assembler) emitOperand(fn *Function, ord int, inst *Instruction, kind OperandKind, instAbs int) error {
	p := a.ctx.Props()
	switch kind {
	case CatNone:
		return nil
	case CatByte:
		v, err := strconv.ParseInt(operand(inst, 0), 0, 8)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand not a byte", inst.Op)
		}
		a.script.WriteI8(int8(v))
		return nil
	case CatUnsignedShort:
		v, err := strconv.ParseUint(operand(inst, 0), 0, 16)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand not an unsigned short", inst.Op)
		}
		a.script.WriteU16(uint16(v))
		return nil
	case CatInteger:
		v, err := strconv.ParseInt(operand(inst, 0), 0, 32)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand not an integer", inst.Op)
		}
		a.script.WriteI32(int32(v))
		return nil
	case CatInteger64:
		v, err := strconv.ParseInt(operand(inst, 0), 0, 64)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand not a 64-bit integer", inst.Op)
		}
		a.script.WriteI64(v)
		return nil
	case CatFloat:
		v, err := strconv.ParseFloat(operand(inst, 0), 32)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand not a float", inst.Op)
		}
		a.script.WriteF32(float32(v))
		return nil
	case CatHash:
		v, err := strconv.ParseUint(operand(inst, 0), 0, 32)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand not a hash", inst.Op)
		}
		a.script.WriteU32(uint32(v))
		return nil
	case CatVector:
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(operand(inst, i), 32)
			if err != nil {
				return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s component %d not a float", inst.Op, i)
			}
			a.script.WriteF32(float32(v))
		}
		return nil
	case CatString, CatAnimation:
		if len(inst.Data) == 0 {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s takes a literal operand", inst.Op)
		}
		writePlaceholder(a.script, stringWidth(p))
		a.pushLiteral(inst.Data[0])
		return nil
	case CatFieldVar:
		if p.Has(PropHash) {
			a.script.WriteU64(a.ctx.HashID(operand(inst, 0)))
			return nil
		}
		writePlaceholder(a.script, stringWidth(p))
		a.pushLiteral(operand(inst, 0))
		return nil
	case CatCallFar:
		return a.emitCallFar(fn, ord, inst)
	case CatCallLocal:
		return a.emitCallLocal(fn, ord, inst, instAbs)
	case CatCallBuiltin:
		return a.emitCallBuiltin(fn, ord, inst)
	case CatJump, CatJumpBack, CatJumpLong:
		return a.emitJump(fn, ord, inst, instAbs, kind)
	case CatSwitch:
		return a.emitSwitch(fn, ord, inst, instAbs)
	case CatEndSwitch:
		return a.emitEndSwitch(fn, ord, inst, instAbs)
	default:
		return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "unhandled operand kind for %s", inst.Op)
	}
}

func operand(inst *Instruction, i int) string {
	if i < len(inst.Data) {
		return inst.Data[i]
	}
	return ""
}

func writePlaceholder(w *bin.Writer, width int) {
	if width == 4 {
		w.WriteU32(0)
		return
	}
	w.WriteU16(0)
}

func (a *Assembler) emitCallFar(fn *Function, ord int, inst *Instruction) error {
	if len(inst.Data) < 2 {
		return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s needs a path and a name", inst.Op)
	}
	path, name := inst.Data[0], inst.Data[1]
	p := a.ctx.Props()
	if p.Has(PropFarcall) {
		a.script.WriteU32(0)
		a.stack.WriteU64(a.ctx.PathID(path))
		a.stack.WriteU64(a.ctx.HashID(name))
		return nil
	}
	writePlaceholder(a.script, tokenWidth(p))
	pathID := a.ctx.TokenID(path)
	nameID := a.ctx.TokenID(name)
	if tokenWidth(p) == 4 {
		a.stack.WriteU32(pathID)
		a.stack.WriteU32(nameID)
	} else {
		a.stack.WriteU16(uint16(pathID))
		a.stack.WriteU16(uint16(nameID))
	}
	if pathID == 0 {
		a.stack.WriteCString(path)
	}
	if nameID == 0 {
		a.stack.WriteCString(name)
	}
	return nil
}

func (a *Assembler) emitCallLocal(fn *Function, ord int, inst *Instruction, instAbs int) error {
	name := operand(inst, 0)
	target, ok := a.resolveFunction(name)
	if !ok {
		return asmerr.At(asmerr.UnresolvedLabel, fn.Name, ord, "local call to unknown function %q", name)
	}
	offs := int32(target - instAbs)
	a.script.WriteI24(packOffset(offs, a.ctx.Props()))
	return nil
}

func (a *Assembler) emitCallBuiltin(fn *Function, ord int, inst *Instruction) error {
	name := operand(inst, 0)
	var id uint32
	if strings.Contains(string(inst.Op), "Method") {
		id = a.ctx.MethID(name)
	} else {
		id = a.ctx.FuncID(name)
	}
	if tokenWidth(a.ctx.Props()) == 4 {
		a.script.WriteU32(id)
	} else {
		a.script.WriteU16(uint16(id))
	}
	return nil
}

// packOffset applies the engine's packed 3-byte displacement encoding:
// the raw offset is shifted left by offs8(8)/offs9(9)/default(10) bits
// then shifted right by 8, compensating for write_i24 only keeping the
// low 24 bits of the result.
func packOffset(offs int32, p Props) int32 {
	return (offs << p.DisplacementShift()) >> 8
}

// switchTypeInteger and switchTypeString mirror the engine's switch_type
// enum (none=0, integer=1, string=2); they are the sentinel encoding's
// type byte, not a Go type.
const (
	switchTypeInteger byte = 1
	switchTypeString  byte = 2
)

// emitDisplacement writes a relative displacement from the current
// position (from) to target. typeByte is only meaningful for the
// sentinel iw9 encoding, where it records what kind of switch-table
// entry this is (0 for the default entry). Only switch-table entries
// use it; jumps and the switch dispatch are written by emitJump and
// emitSwitch.
func (a *Assembler) emitDisplacement(target, from int, typeByte byte) {
	p := a.ctx.Props()
	if p.Has(PropIW9) {
		a.script.WriteI16(int16(target - from))
		a.script.WriteU8(0xFF)
		a.script.WriteU8(typeByte)
		return
	}
	a.script.WriteI24(packOffset(int32(target-from), p))
}

// emitJump writes a jump/branch displacement. Unlike local calls and
// switch-table entries, these are never packed through packOffset or
// the iw9 sentinel: conditional jumps write a raw i16 counted from the
// byte past the operand, a backward jump writes the same i16 reversed,
// and a plain jump writes a raw i32.
func (a *Assembler) emitJump(fn *Function, ord int, inst *Instruction, instAbs int, kind OperandKind) error {
	target, err := a.resolveLabel(fn, operand(inst, 0))
	if err != nil {
		return err
	}
	targetAbs := fn.Index + target
	switch kind {
	case CatJumpBack:
		a.script.WriteI16(int16((instAbs + 3) - targetAbs))
	case CatJumpLong:
		a.script.WriteI32(int32(targetAbs - instAbs - 5))
	default: // CatJump
		a.script.WriteI16(int16(targetAbs - instAbs - 3))
	}
	return nil
}

// emitSwitch writes the OP_switch dispatch displacement: always a raw
// i32, never the packed/sentinel encoding used by the switch table
// emitted at OP_endswitch.
func (a *Assembler) emitSwitch(fn *Function, ord int, inst *Instruction, instAbs int) error {
	target, err := a.resolveLabel(fn, operand(inst, 0))
	if err != nil {
		return err
	}
	a.script.WriteI32(int32(fn.Index + target - instAbs - 4))
	return nil
}

func (a *Assembler) emitEndSwitch(fn *Function, ord int, inst *Instruction, instAbs int) error {
	tbl, err := parseSwitchTable(inst.Data)
	if err != nil {
		return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%v", err)
	}
	a.script.WriteU16(uint16(len(tbl.cases) + 1))
	p := a.ctx.Props()
	for i, c := range tbl.cases {
		var typeByte byte
		if c.typ == "string" {
			typeByte = switchTypeString
			if p.Has(PropIW9) {
				a.script.WriteU32(0)
			} else {
				a.script.WriteU32(uint32(i + 1))
			}
			a.pushLiteral(c.value)
		} else {
			typeByte = switchTypeInteger
			n, err := strconv.ParseInt(c.value, 0, 32)
			if err != nil {
				return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "case value %q not numeric", c.value)
			}
			if p.Has(PropIW9) {
				a.script.WriteU32(uint32(n))
			} else {
				a.script.WriteU32((uint32(n) & 0xFFFFFF) + 0x800000)
			}
		}
		target, err := a.resolveLabel(fn, c.label)
		if err != nil {
			return err
		}
		a.emitDisplacement(fn.Index+target, a.script.Pos(), typeByte)
	}
	a.script.WriteU32(0)
	if !p.Has(PropIW9) {
		a.stack.WriteCString("\x01")
	}
	target, err := a.resolveLabel(fn, tbl.defaultLbl)
	if err != nil {
		return err
	}
	a.emitDisplacement(fn.Index+target, a.script.Pos(), 0)
	return nil
}

type switchCase struct {
	typ, value, label string
}

type switchTable struct {
	cases      []switchCase
	defaultLbl string
}

func parseSwitchTable(data []string) (switchTable, error) {
	if len(data) < 1 {
		return switchTable{}, asmerr.New(asmerr.MalformedOperand, "EndSwitch needs a case count")
	}
	total, err := strconv.Atoi(data[0])
	if err != nil {
		return switchTable{}, asmerr.New(asmerr.MalformedOperand, "EndSwitch count %q not numeric", data[0])
	}
	var tbl switchTable
	i := 1
	for i < len(data) && data[i] == "case" {
		if i+3 >= len(data) {
			return switchTable{}, asmerr.New(asmerr.MalformedOperand, "truncated case clause")
		}
		tbl.cases = append(tbl.cases, switchCase{typ: data[i+1], value: data[i+2], label: data[i+3]})
		i += 4
	}
	if i >= len(data) || data[i] != "default" {
		return switchTable{}, asmerr.New(asmerr.MalformedOperand, "switch table head must be \"case\" or \"default\"")
	}
	if i+1 >= len(data) {
		return switchTable{}, asmerr.New(asmerr.MalformedOperand, "default clause missing label")
	}
	tbl.defaultLbl = data[i+1]
	if len(tbl.cases)+1 != total {
		return switchTable{}, asmerr.New(asmerr.MalformedOperand, "switch declares %d entries, found %d", total, len(tbl.cases)+1)
	}
	return tbl, nil
}
