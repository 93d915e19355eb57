// Package arc implements the two-pass bytecode assembler for the ARC
// family of engine variants: it turns an Assembly IR into a byte-exact
// script image plus a developer source-position side table.
package arc

import (
	"strconv"

	"github.com/Lierrmm/gsc-tool/internal/asmerr"
	"github.com/Lierrmm/gsc-tool/internal/bin"
)

const switchTableAlign = 4

// Assembler turns one Assembly into a script image and dev-map for a
// fixed engine Context. It owns its writers and fixup state and may be
// reused across successive Assemble calls; each call resets all
// per-input state before doing any work. A Context is read-only and may
// be shared by any number of concurrent Assemblers.
type Assembler struct {
	ctx *Context

	script *bin.Writer
	devmap *bin.Writer

	pool      map[string]int
	strings   *stringFixups
	imports   *importFixups
	animtrees *animtreeFixups
	exports   []ExportRef

	asm *Assembly
}

// NewAssembler returns an Assembler bound to ctx.
func NewAssembler(ctx *Context) *Assembler {
	return &Assembler{
		ctx:       ctx,
		script:    bin.New(ctx.Endian().ByteOrder(), 0),
		devmap:    bin.New(ctx.Endian().ByteOrder(), 0),
		pool:      make(map[string]int),
		strings:   newStringFixups(),
		imports:   newImportFixups(),
		animtrees: newAnimtreeFixups(),
	}
}

func (a *Assembler) reset() {
	a.script.Reset()
	a.devmap.Reset()
	for k := range a.pool {
		delete(a.pool, k)
	}
	a.strings.reset()
	a.imports.reset()
	a.animtrees.reset()
	a.exports = a.exports[:0]
}

// Assemble converts asm into a script image and dev-map. name is the
// script name; when it is empty, the first function's name is used
// instead. Errors are terminal:
// the call performs no partial recovery and the caller must discard any
// output on failure.
func (a *Assembler) Assemble(asm *Assembly, name string) (script, devmap []byte, err error) {
	a.reset()
	a.asm = asm

	scriptName := name
	if scriptName == "" && len(asm.Functions) > 0 {
		scriptName = asm.Functions[0].Name
	}

	props := a.ctx.Props()

	// Step 1: reserve the header region, and the dev-map's leading count.
	a.script.Seek(props.HeaderSize())
	a.devmap.Seek(4)

	// Step 2: string pool the script name, function names, and includes.
	a.poolAdd(scriptName)
	for _, fn := range asm.Functions {
		a.poolAdd(fn.Name)
	}
	for _, inc := range asm.Includes {
		a.poolAdd(inc)
	}

	// Step 3: includes table.
	includeOff := a.script.Pos()
	for _, inc := range asm.Includes {
		a.script.WriteU32(uint32(a.pool[inc]))
	}

	// Step 4: code segment — a layout pass over every function (which
	// fixes offsets and sizes, advancing the writer with zero-fill),
	// then an emission pass that writes each instruction's bytes at its
	// computed offset.
	a.script.Align(functionHeaderWidth(props))
	cseg := a.script.Pos()
	funcHeaderOffsets := make([]int, len(asm.Functions))
	relocated := make([]map[int]string, len(asm.Functions))
	for fi := range asm.Functions {
		fn := &asm.Functions[fi]
		if err := a.layoutFunction(fi, fn, funcHeaderOffsets, relocated); err != nil {
			return nil, nil, err
		}
	}
	for fi := range asm.Functions {
		fn := &asm.Functions[fi]
		fn.Labels = relocated[fi]
		if err := a.emitFunction(fi, fn, funcHeaderOffsets[fi]); err != nil {
			return nil, nil, err
		}
		a.exports = append(a.exports, ExportRef{
			Offset: uint32(funcHeaderOffsets[fi]),
			Name:   fn.Name,
			Params: fn.Params,
			Flags:  fn.Flags,
		})
	}
	csegSize := a.script.Pos() - cseg

	// Pool the names the remaining tables refer to before writing them.
	for _, im := range a.imports.order {
		if !props.Has(PropHashIDs) {
			a.poolAdd(im.Name)
			a.poolAdd(im.Space)
		}
	}
	for _, at := range a.animtrees.order {
		a.poolAdd(at.Name)
		for _, an := range at.Anims {
			a.poolAdd(an.Name)
		}
	}
	for _, sr := range a.strings.order {
		a.poolAdd(sr.Name)
	}

	// Step 5: exports table.
	exportsOff := a.script.Pos()
	for _, ex := range a.exports {
		a.script.WriteU32(ex.Checksum)
		a.script.WriteU32(ex.Offset)
		if props.Has(PropHashIDs) {
			a.script.WriteU32(uint32(a.ctx.HashID(ex.Name)))
			a.script.WriteU32(uint32(a.ctx.HashID(ex.Space)))
		} else {
			a.script.WriteU16(uint16(a.poolAdd(ex.Name)))
		}
		a.script.WriteU8(ex.Params)
		a.script.WriteU8(ex.Flags)
		if props.Has(PropHashIDs) {
			// name-hash(4) + space-hash(4) + params(1) + flags(1) + pad(2)
			// padded to 12 bytes.
			a.script.Seek(2)
		}
	}

	// Step 6: imports table.
	importsOff := a.script.Pos()
	for _, im := range a.imports.order {
		if props.Has(PropHashIDs) {
			a.script.WriteU32(uint32(a.ctx.HashID(im.Name)))
			a.script.WriteU32(uint32(a.ctx.HashID(im.Space)))
		} else {
			a.script.WriteU16(uint16(a.poolAdd(im.Name)))
			a.script.WriteU16(uint16(a.poolAdd(im.Space)))
		}
		a.script.WriteU16(uint16(len(im.Refs)))
		a.script.WriteU8(im.Params)
		a.script.WriteU8(im.Flags)
		for _, ref := range im.Refs {
			a.script.WriteU32(uint32(ref))
		}
	}

	// Step 7: animtrees table.
	animOff := a.script.Pos()
	idWidth := 2
	if props.Has(PropSize64) {
		idWidth = 4
	}
	for _, at := range a.animtrees.order {
		a.writeNameID(a.poolAdd(at.Name), idWidth)
		a.script.WriteU16(uint16(len(at.Refs)))
		a.script.WriteU16(uint16(len(at.Anims)))
		if !props.Has(PropSize64) {
			a.script.Seek(2)
		}
		for _, ref := range at.Refs {
			a.script.WriteU32(uint32(ref))
		}
		for _, an := range at.Anims {
			if props.Has(PropSize64) {
				a.script.WriteU64(uint64(a.poolAdd(an.Name)))
				a.script.WriteU64(uint64(an.Ref))
			} else {
				a.script.WriteU32(uint32(a.poolAdd(an.Name)))
				a.script.WriteU32(uint32(an.Ref))
			}
		}
	}

	// Step 8: string-fixup table(s), runs of at most 255 refs.
	fixupOff := a.script.Pos()
	fixupCount := 0
	for _, sr := range a.strings.order {
		refs := sr.Refs
		for len(refs) > 0 {
			run := refs
			if len(run) > 255 {
				run = run[:255]
			}
			a.script.WriteU32(uint32(a.poolAdd(sr.Name)))
			a.script.WriteU8(uint8(len(run)))
			a.script.WriteU8(uint8(sr.Type))
			for _, ref := range run {
				a.script.WriteU32(uint32(ref))
			}
			fixupCount++
			refs = refs[len(run):]
		}
	}
	devFixupOff := fixupOff
	devFixupCount := fixupCount
	if props.Has(PropDevStr) {
		fixupOff = a.script.Pos()
		fixupCount = 0
	}

	profileOff := a.script.Pos()

	// Step 9: header.
	a.script.SetPos(0)
	a.script.WriteU64(a.ctx.Magic())
	a.script.WriteU32(0) // source CRC
	a.script.WriteU32(uint32(includeOff))
	a.script.WriteU32(uint32(animOff))
	a.script.WriteU32(uint32(cseg))
	a.script.WriteU32(uint32(fixupOff))
	if props.Has(PropDevStr) {
		a.script.WriteU32(uint32(devFixupOff))
	}
	a.script.WriteU32(uint32(exportsOff))
	a.script.WriteU32(uint32(importsOff))
	a.script.WriteU32(uint32(profileOff))
	a.script.WriteU32(uint32(csegSize))
	nameWidth := 2
	if props.Has(PropSize64) {
		nameWidth = 4
	}
	a.writeNameID(a.poolAdd(scriptName), nameWidth)
	a.script.WriteU16(uint16(len(a.exports)))
	a.script.WriteU16(uint16(len(a.imports.order)))
	a.script.WriteU16(uint16(len(a.animtrees.order)))
	a.script.WriteU16(uint16(fixupCount))
	a.script.WriteU16(uint16(0)) // reserved
	if props.Has(PropDevStr) {
		a.script.WriteU16(uint16(devFixupCount))
	}
	a.script.WriteU8(uint8(len(asm.Includes)))
	a.script.WriteU8(uint8(len(a.animtrees.order)))
	a.script.WriteU8(0) // flags

	// Step 10: dev-map's leading instruction count.
	a.devmap.SetPos(0)
	a.devmap.WriteU32(uint32(a.devmapEntryCount()))

	if err := a.script.Err(); err != nil {
		return nil, nil, asmerr.New(asmerr.BufferOverflow, "script buffer: %v", err)
	}
	if err := a.devmap.Err(); err != nil {
		return nil, nil, asmerr.New(asmerr.BufferOverflow, "devmap buffer: %v", err)
	}
	return a.script.Data(), a.devmap.Data(), nil
}

func (a *Assembler) devmapEntryCount() int {
	// four header bytes plus eight bytes per entry
	return (a.devmap.Len() - 4) / 8
}

// writeNameID writes a pool-resolved name handle in the width size64
// selects: 2 bytes normally, 4 bytes when size64 is set.
func (a *Assembler) writeNameID(id, width int) {
	if width == 4 {
		a.script.WriteU32(uint32(id))
		return
	}
	a.script.WriteU16(uint16(id))
}

func (a *Assembler) poolAdd(s string) int {
	if off, ok := a.pool[s]; ok {
		return off
	}
	off := a.script.Pos()
	a.script.WriteCString(s)
	a.pool[s] = off
	return off
}

func functionHeaderWidth(p Props) int {
	if p.Has(PropSize64) {
		return 8
	}
	return 4
}

// enterFunction performs the layout pass's alignment and per-function
// header reserve, and returns the header's offset so emitFunction can
// fill it once the function's size is known.
func enterFunction(w *bin.Writer, p Props) int {
	w.Align(functionHeaderWidth(p))
	off := w.Pos()
	w.Seek(functionHeaderWidth(p))
	return off
}

func (a *Assembler) layoutFunction(fi int, fn *Function, headerOffsets []int, relocated []map[int]string) error {
	headerOffsets[fi] = enterFunction(a.script, a.ctx.Props())
	fn.Index = a.script.Pos()
	fn.Size = 0
	newLabels := make(map[int]string, len(fn.Labels))
	for ord := range fn.Instructions {
		inst := &fn.Instructions[ord]
		base, err := a.ctx.OpcodeSize(inst.Op)
		if err != nil {
			return err
		}
		inst.Size = int(base)
		inst.Index = fn.Size
		a.script.Seek(int(base))
		desc, err := a.ctx.Descriptor(inst.Op)
		if err != nil {
			return err
		}
		extra, err := a.layoutOperand(fn, ord, inst, desc.Kind)
		if err != nil {
			return err
		}
		inst.Size += extra
		fn.Size += inst.Size
		if label, ok := labelAtOrdinal(fn.Labels, ord); ok {
			newLabels[inst.Index] = label
		}
	}
	relocated[fi] = newLabels
	return nil
}

// labelAtOrdinal resolves the compiler's pre-layout label keying: labels
// are keyed by the ordinal position of the instruction they precede.
func labelAtOrdinal(labels map[int]string, ord int) (string, bool) {
	name, ok := labels[ord]
	return name, ok
}

func alignPad(pos, align int) int {
	if align <= 1 {
		return 0
	}
	return (align - (pos % align)) % align
}

// layoutOperand advances the script writer past op's operand bytes,
// recording the padding already applied to inst.Size's caller and any
// fixup reference, and returns the number of bytes (padding + operand)
// it consumed.
func (a *Assembler) layoutOperand(fn *Function, ord int, inst *Instruction, kind OperandKind) (int, error) {
	start := a.script.Pos()
	instStart := fn.Index + inst.Index

	switch kind {
	case CatNone:
		return 0, nil
	case CatByte:
		a.script.Seek(1)
		return 1, nil
	case CatUnsignedShort:
		pad := alignPad(start, 2)
		a.script.Seek(pad + 2)
		return pad + 2, nil
	case CatInteger, CatFloat, CatHash:
		pad := alignPad(start, 4)
		a.script.Seek(pad + 4)
		return pad + 4, nil
	case CatIntegerAnimTree:
		pad := alignPad(start, 4)
		a.script.Seek(pad)
		ref := a.script.Pos()
		a.script.Seek(4)
		name, companion := animOperands(inst.Data)
		if companion == "-1" {
			a.animtrees.addRef(name, ref)
		} else {
			a.animtrees.addAnim(name, companion, ref)
		}
		return pad + 4, nil
	case CatVector:
		pad := alignPad(start, 4)
		a.script.Seek(pad + 12)
		return pad + 12, nil
	case CatString:
		pad := alignPad(start, 2)
		a.script.Seek(pad)
		ref := a.script.Pos()
		a.script.Seek(2)
		if len(inst.Data) == 0 {
			return 0, asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s takes a string operand", inst.Op)
		}
		a.strings.add(inst.Data[0], StringLiteral, ref)
		return pad + 2, nil
	case CatAnimation:
		pad := alignPad(start, 4)
		a.script.Seek(pad)
		ref := a.script.Pos()
		a.script.Seek(4)
		name, companion := animOperands(inst.Data)
		if companion == "-1" {
			a.animtrees.addRef(name, ref)
		} else {
			a.animtrees.addAnim(name, companion, ref)
		}
		return pad + 4, nil
	case CatLocalVars:
		n := len(inst.Data)
		pad := alignPad(start+1, 2)
		a.script.Seek(1 + pad)
		for i := 0; i < n; i++ {
			ref := a.script.Pos()
			a.script.Seek(2)
			a.strings.add(inst.Data[i], StringCanonical, ref)
		}
		return 1 + pad + n*2, nil
	case CatFieldVar:
		pad := alignPad(start, 2)
		a.script.Seek(pad)
		ref := a.script.Pos()
		a.script.Seek(2)
		if len(inst.Data) == 0 {
			return 0, asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s takes a field name operand", inst.Op)
		}
		a.strings.add(inst.Data[0], StringCanonical, ref)
		return pad + 2, nil
	case CatFunctionCall:
		a.script.Seek(1)
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad + 4)
		space, name, params, flags, err := importOperands(inst.Data)
		if err != nil {
			return 0, asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%v", err)
		}
		a.imports.add(space, name, params, flags, instStart)
		return 1 + pad + 4, nil
	case CatFunctionRef:
		pad := alignPad(start, 4)
		a.script.Seek(pad)
		a.script.Seek(4)
		space, name, params, flags, err := importOperands(inst.Data)
		if err != nil {
			return 0, asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%v", err)
		}
		a.imports.add(space, name, params, flags, instStart)
		return pad + 4, nil
	case CatJump:
		pad := alignPad(start, 2)
		a.script.Seek(pad + 2)
		return pad + 2, nil
	case CatSwitch:
		pad := alignPad(start, 4)
		a.script.Seek(pad + 4)
		return pad + 4, nil
	case CatEndSwitch:
		tbl, err := parseSwitchTable(inst.Data)
		if err != nil {
			return 0, asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%v", err)
		}
		pad := alignPad(start, 4)
		a.script.Seek(pad + 4)
		for _, c := range tbl.cases {
			valRef := a.script.Pos()
			a.script.Seek(4)
			a.script.Seek(4) // displacement
			if c.typ == "string" {
				a.strings.add(c.value, StringLiteral, valRef)
			}
		}
		a.script.Seek(8) // default entry
		return pad + 4 + len(tbl.cases)*8 + 8, nil
	default:
		return 0, asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "unhandled operand kind for %s", inst.Op)
	}
}

func animOperands(data []string) (name, companion string) {
	if len(data) == 0 {
		return "", "-1"
	}
	if len(data) == 1 {
		return data[0], "-1"
	}
	return data[0], data[1]
}

func importOperands(data []string) (space, name string, params, flags uint8, err error) {
	if len(data) < 4 {
		return "", "", 0, 0, asmerr.New(asmerr.MalformedOperand, "call operand needs space,name,params,flags, got %v", data)
	}
	p, err1 := strconv.ParseUint(data[2], 10, 8)
	f, err2 := strconv.ParseUint(data[3], 10, 8)
	if err1 != nil || err2 != nil {
		return "", "", 0, 0, asmerr.New(asmerr.MalformedOperand, "call params/flags must be numeric, got %v", data)
	}
	return data[0], data[1], uint8(p), uint8(f), nil
}

type switchCase struct {
	typ, value, label string
}

type switchTable struct {
	cases       []switchCase
	defaultLbl  string
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
		return switchTable{}, asmerr.New(asmerr.MalformedOperand, "switch table head must be \"case\" or \"default\", got %v", data[i:])
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

func (a *Assembler) resolveLabel(fn *Function, name string) (int, error) {
	for off, n := range fn.Labels {
		if n == name {
			return off, nil
		}
	}
	return 0, asmerr.New(asmerr.UnresolvedLabel, "label %q", name)
}

func (a *Assembler) emitFunction(fi int, fn *Function, headerOffset int) error {
	a.script.SetPos(fn.Index)
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
	base := functionHeaderWidth(a.ctx.Props())
	a.script.SetPos(headerOffset)
	if base == 8 {
		a.script.WriteU64(uint64(fn.Size))
	} else {
		a.script.WriteU32(uint32(fn.Size))
	}
	a.script.SetPos(fn.Index + fn.Size)
	return nil
}

func (a *Assembler) emitOperand(fn *Function, ord int, inst *Instruction, kind OperandKind, instAbs int) error {
	switch kind {
	case CatNone:
		return nil
	case CatByte:
		v, err := strconv.ParseInt(inst.Data[0], 0, 8)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand %q not a byte", inst.Op, inst.Data[0])
		}
		a.script.WriteI8(int8(v))
		return nil
	case CatUnsignedShort:
		pad := alignPad(a.script.Pos(), 2)
		a.script.Seek(pad)
		v, err := strconv.ParseUint(inst.Data[0], 0, 16)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand %q not an unsigned short", inst.Op, inst.Data[0])
		}
		a.script.WriteU16(uint16(v))
		return nil
	case CatInteger:
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		v, err := strconv.ParseInt(inst.Data[0], 0, 32)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand %q not an integer", inst.Op, inst.Data[0])
		}
		a.script.WriteI32(int32(v))
		return nil
	case CatFloat:
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		v, err := strconv.ParseFloat(inst.Data[0], 32)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand %q not a float", inst.Op, inst.Data[0])
		}
		a.script.WriteF32(float32(v))
		return nil
	case CatHash:
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		v, err := strconv.ParseUint(inst.Data[0], 0, 32)
		if err != nil {
			return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s operand %q not a hash", inst.Op, inst.Data[0])
		}
		a.script.WriteU32(uint32(v))
		return nil
	case CatIntegerAnimTree:
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		a.script.WriteU32(0) // patched later by an external fixup consumer
		return nil
	case CatVector:
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(inst.Data[i], 32)
			if err != nil {
				return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "%s component %d %q not a float", inst.Op, i, inst.Data[i])
			}
			a.script.WriteF32(float32(v))
		}
		return nil
	case CatString, CatFieldVar:
		pad := alignPad(a.script.Pos(), 2)
		a.script.Seek(pad)
		a.script.WriteU16(0) // patched later by an external fixup consumer
		return nil
	case CatAnimation:
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		a.script.WriteU32(0)
		return nil
	case CatLocalVars:
		a.script.WriteU8(uint8(len(inst.Data)))
		pad := alignPad(a.script.Pos(), 2)
		a.script.Seek(pad)
		for range inst.Data {
			a.script.WriteU16(0)
		}
		return nil
	case CatFunctionCall:
		a.script.WriteU8(0)
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		a.script.WriteU32(0)
		return nil
	case CatFunctionRef:
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		a.script.WriteU32(0)
		return nil
	case CatJump:
		pad := alignPad(a.script.Pos(), 2)
		a.script.Seek(pad)
		label := inst.Data[0]
		target, err := a.resolveLabel(fn, label)
		if err != nil {
			return err
		}
		target += fn.Index
		disp := target - (instAbs + inst.Size)
		a.script.WriteI16(int16(disp))
		return nil
	case CatSwitch:
		pad := alignPad(a.script.Pos(), 4)
		a.script.Seek(pad)
		label := inst.Data[0]
		target, err := a.resolveLabel(fn, label)
		if err != nil {
			return err
		}
		target += fn.Index
		base := alignUp(target+4, switchTableAlign)
		disp := base - (instAbs + inst.Size)
		a.script.WriteI32(int32(disp))
		return nil
	case CatEndSwitch:
		return a.emitEndSwitch(fn, ord, inst, instAbs)
	default:
		return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "unhandled operand kind for %s", inst.Op)
	}
}

func (a *Assembler) emitEndSwitch(fn *Function, ord int, inst *Instruction, instAbs int) error {
	tbl, err := parseSwitchTable(inst.Data)
	if err != nil {
		return err
	}
	pad := alignPad(a.script.Pos(), 4)
	a.script.Seek(pad)
	a.script.WriteU32(uint32(len(tbl.cases) + 1))
	for i, c := range tbl.cases {
		var val uint32
		if c.typ == "string" {
			val = uint32(i + 1)
		} else {
			n, err := strconv.ParseInt(c.value, 0, 32)
			if err != nil {
				return asmerr.At(asmerr.MalformedOperand, fn.Name, ord, "case value %q not numeric", c.value)
			}
			val = (uint32(n) & 0x00FFFFFF) | 0x00800000
		}
		a.script.WriteU32(val)
		dispPos := a.script.Pos()
		target, err := a.resolveLabel(fn, c.label)
		if err != nil {
			return err
		}
		target += fn.Index
		a.script.WriteI32(int32(target - (dispPos + 4)))
	}
	a.script.WriteU32(0)
	dispPos := a.script.Pos()
	target, err := a.resolveLabel(fn, tbl.defaultLbl)
	if err != nil {
		return err
	}
	target += fn.Index
	a.script.WriteI32(int32(target - (dispPos + 4)))
	return nil
}

func alignUp(pos, align int) int {
	return pos + alignPad(pos, align)
}

// Export returns the export record for the named function after a
// successful Assemble call, or false if it wasn't found.
func (a *Assembler) Export(name string) (ExportRef, bool) {
	for _, e := range a.exports {
		if e.Name == name {
			return e, true
		}
	}
	return ExportRef{}, false
}
