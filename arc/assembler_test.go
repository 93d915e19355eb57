package arc

import (
	"encoding/binary"
	"testing"
)

func mustAssemble(t *testing.T, ctx *Context, asm *Assembly, name string) ([]byte, []byte) {
	t.Helper()
	a := NewAssembler(ctx)
	script, devmap, err := a.Assemble(asm, name)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return script, devmap
}

// S1 — empty function.
func TestAssemble_emptyFunction(t *testing.T) {
	ctx := NewT6Context()
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpGetUndefined},
				{Op: OpReturn},
			}},
		},
	}

	a := NewAssembler(ctx)
	script, devmap, err := a.Assemble(asm, "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(devmap) != 4 {
		t.Fatalf("devmap length = %d, want 4", len(devmap))
	}
	if binary.LittleEndian.Uint32(devmap) != 0 {
		t.Fatalf("devmap count = %d, want 0", binary.LittleEndian.Uint32(devmap))
	}
	if got := binary.LittleEndian.Uint64(script[:8]); got != ctx.Magic() {
		t.Fatalf("magic = %#x, want %#x", got, ctx.Magic())
	}
	ex, ok := a.Export("main")
	if !ok {
		t.Fatal("export for main not found")
	}
	if int(ex.Offset) != asm.Functions[0].Index-functionHeaderWidth(ctx.Props()) {
		t.Fatalf("export offset = %d, want function header start %d", ex.Offset, asm.Functions[0].Index-functionHeaderWidth(ctx.Props()))
	}
}

// S2 — jump displacement.
func TestAssemble_jump(t *testing.T) {
	ctx := NewT6Context()
	asm := &Assembly{
		Functions: []Function{
			{
				Name:   "main",
				Labels: map[int]string{3: "L1"},
				Instructions: []Instruction{
					{Op: OpGetByte, Data: []string{"1"}},
					{Op: OpJumpOnFalse, Data: []string{"L1"}},
					{Op: OpGetByte, Data: []string{"2"}},
					{Op: OpReturn},
				},
			},
		},
	}

	script, _ := mustAssemble(t, ctx, asm, "")

	fn := &asm.Functions[0]
	jmp := &fn.Instructions[1]
	ret := &fn.Instructions[3]

	instAbs := fn.Index + jmp.Index
	pad := alignPad(instAbs+1, 2)
	dispPos := instAbs + 1 + pad
	got := int16(binary.LittleEndian.Uint16(script[dispPos : dispPos+2]))

	want := (fn.Index + ret.Index) - (instAbs + jmp.Size)
	if int(got) != want {
		t.Fatalf("displacement = %d, want %d", got, want)
	}
}

// S3 — switch table.
func TestAssemble_switch(t *testing.T) {
	ctx := NewT6Context()
	asm := &Assembly{
		Functions: []Function{
			{
				Name:   "main",
				Labels: map[int]string{1: "tbl", 2: "L5", 3: "LD"},
				Instructions: []Instruction{
					{Op: OpSwitch, Data: []string{"tbl"}},
					{Op: OpEndSwitch, Data: []string{"2", "case", "integer", "5", "L5", "default", "LD"}},
					{Op: OpReturn},
					{Op: OpReturn},
				},
			},
		},
	}

	script, _ := mustAssemble(t, ctx, asm, "")

	fn := &asm.Functions[0]
	es := &fn.Instructions[1]
	l5 := &fn.Instructions[2]
	ld := &fn.Instructions[3]

	instAbs := fn.Index + es.Index
	pad := alignPad(instAbs+1, 4)
	tblPos := instAbs + 1 + pad
	if tblPos%4 != 0 {
		t.Fatalf("switch table base %d not 4-aligned", tblPos)
	}

	count := binary.LittleEndian.Uint32(script[tblPos : tblPos+4])
	if count != 2 {
		t.Fatalf("case count = %d, want 2", count)
	}
	caseVal := binary.LittleEndian.Uint32(script[tblPos+4 : tblPos+8])
	if caseVal != 0x00800005 {
		t.Fatalf("case value = %#x, want %#x", caseVal, 0x00800005)
	}
	caseDisp := int32(binary.LittleEndian.Uint32(script[tblPos+8 : tblPos+12]))
	wantCaseDisp := (fn.Index + l5.Index) - (tblPos + 8 + 4)
	if int(caseDisp) != wantCaseDisp {
		t.Fatalf("case displacement = %d, want %d", caseDisp, wantCaseDisp)
	}
	defVal := binary.LittleEndian.Uint32(script[tblPos+12 : tblPos+16])
	if defVal != 0 {
		t.Fatalf("default value = %#x, want 0", defVal)
	}
	defDisp := int32(binary.LittleEndian.Uint32(script[tblPos+16 : tblPos+20]))
	wantDefDisp := (fn.Index + ld.Index) - (tblPos + 16 + 4)
	if int(defDisp) != wantDefDisp {
		t.Fatalf("default displacement = %d, want %d", defDisp, wantDefDisp)
	}
}

// S5 — string dedup.
func TestAssemble_stringDedup(t *testing.T) {
	ctx := NewT6Context()
	asm := &Assembly{
		Functions: []Function{
			{
				Name: "main",
				Instructions: []Instruction{
					{Op: OpGetString, Data: []string{"hello"}},
					{Op: OpGetString, Data: []string{"hello"}},
					{Op: OpGetString, Data: []string{"hello"}},
					{Op: OpReturn},
				},
			},
		},
	}

	a := NewAssembler(ctx)
	if _, _, err := a.Assemble(asm, ""); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(a.strings.order) != 1 {
		t.Fatalf("distinct string-fixup records = %d, want 1", len(a.strings.order))
	}
	rec := a.strings.order[0]
	if rec.Name != "hello" || len(rec.Refs) != 3 {
		t.Fatalf("record = %+v, want hello with 3 refs", rec)
	}
	seen := map[int]bool{}
	for _, r := range rec.Refs {
		if seen[r] {
			t.Fatalf("duplicate ref offset %d", r)
		}
		seen[r] = true
	}
}

// nonSize64T6Context is a 32-bit variant of NewT6Context used to exercise
// the animtree table's !PropSize64 layout, which no built-in context
// selects (both NewT6Context and NewT9Context set PropSize64).
func nonSize64T6Context() *Context {
	return buildContext(variantConfig{
		endian:   LittleEndian,
		magic:    0x4154534354383000,
		props:    PropHeader64,
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

// exports/imports hashids layout under NewT9Context: the padded 20-byte
// export record and the import record's name/space hashes and ref count.
func TestAssemble_exportsImports_hashIDs(t *testing.T) {
	ctx := NewT9Context() // PropHashIDs | PropSize64
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpScriptFunctionCall, Data: []string{"common_scripts/utility", "waittillFrameEnd", "0", "0"}},
				{Op: OpReturn},
			}},
		},
	}

	a := NewAssembler(ctx)
	script, _, err := a.Assemble(asm, "main")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	ex, ok := a.Export("main")
	if !ok {
		t.Fatal("export for main not found")
	}

	exportsOff := binary.LittleEndian.Uint32(script[offsetOf("exports_offset"):])
	rec := script[exportsOff : exportsOff+20]
	checksum := binary.LittleEndian.Uint32(rec[0:4])
	offset := binary.LittleEndian.Uint32(rec[4:8])
	nameHash := binary.LittleEndian.Uint32(rec[8:12])
	spaceHash := binary.LittleEndian.Uint32(rec[12:16])
	params, flags := rec[16], rec[17]
	if checksum != ex.Checksum {
		t.Fatalf("export checksum = %#x, want %#x", checksum, ex.Checksum)
	}
	if offset != ex.Offset {
		t.Fatalf("export offset = %d, want %d", offset, ex.Offset)
	}
	if want := uint32(ctx.HashID("main")); nameHash != want {
		t.Fatalf("export name hash = %#x, want %#x", nameHash, want)
	}
	if want := uint32(ctx.HashID(ex.Space)); spaceHash != want {
		t.Fatalf("export space hash = %#x, want %#x", spaceHash, want)
	}
	if params != ex.Params || flags != ex.Flags {
		t.Fatalf("export params/flags = %d/%d, want %d/%d", params, flags, ex.Params, ex.Flags)
	}
	// rec[18:20] is the pad that brings the name/space/params/flags part
	// of the record to 12 bytes, and the imports table (checked below)
	// starts exactly at exportsOff+20 for this single-export case — if the
	// pad were missing, importsOff would equal exportsOff+18 instead.
	importsOff := binary.LittleEndian.Uint32(script[offsetOf("imports_offset"):])
	if importsOff != exportsOff+20 {
		t.Fatalf("imports offset = %d, want %d (exports record width 20 = checksum+offset+12-byte padded tail)", importsOff, exportsOff+20)
	}

	if len(a.imports.order) != 1 {
		t.Fatalf("imports = %d, want 1", len(a.imports.order))
	}
	im := a.imports.order[0]
	irec := script[importsOff:]
	nameH := binary.LittleEndian.Uint32(irec[0:4])
	spaceH := binary.LittleEndian.Uint32(irec[4:8])
	if want := uint32(ctx.HashID(im.Name)); nameH != want {
		t.Fatalf("import name hash = %#x, want %#x", nameH, want)
	}
	if want := uint32(ctx.HashID(im.Space)); spaceH != want {
		t.Fatalf("import space hash = %#x, want %#x", spaceH, want)
	}
	refCount := binary.LittleEndian.Uint16(irec[8:10])
	if int(refCount) != len(im.Refs) {
		t.Fatalf("import ref count = %d, want %d", refCount, len(im.Refs))
	}
}

// the call-site flag byte is always zero, even when the import operand
// carries a non-zero flags value for the import table entry itself.
func TestAssemble_functionCallFlagByteAlwaysZero(t *testing.T) {
	ctx := NewT6Context()
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpScriptFunctionCall, Data: []string{"common_scripts/utility", "waittillFrameEnd", "0", "5"}},
				{Op: OpReturn},
			}},
		},
	}

	a := NewAssembler(ctx)
	script, _, err := a.Assemble(asm, "main")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	ex, ok := a.Export("main")
	if !ok {
		t.Fatal("export for main not found")
	}
	callAbs := int(ex.Offset) + functionHeaderWidth(ctx.Props())
	id, err := ctx.OpcodeID(OpScriptFunctionCall)
	if err != nil {
		t.Fatalf("OpcodeID: %v", err)
	}
	if script[callAbs] != id {
		t.Fatalf("opcode at call site = %#x, want %#x", script[callAbs], id)
	}
	if flag := script[callAbs+1]; flag != 0 {
		t.Fatalf("call-site flag byte = %d, want 0", flag)
	}

	if len(a.imports.order) != 1 {
		t.Fatalf("imports = %d, want 1", len(a.imports.order))
	}
	if got := a.imports.order[0].Flags; got != 5 {
		t.Fatalf("import table flags = %d, want 5 (import table entry still carries the operand's flags)", got)
	}
}

// offsetOf looks up a fixed header field's byte offset for NewT9Context's
// 72-byte header, matching the field order Assemble writes in step 9.
func offsetOf(field string) int {
	// magic(8) crc(4) includes(4) animtree(4) cseg(4) fixup(4) devfixup(4)
	switch field {
	case "exports_offset":
		return 8 + 4 + 4 + 4 + 4 + 4 + 4
	case "imports_offset":
		return 8 + 4 + 4 + 4 + 4 + 4 + 4 + 4
	}
	panic("unknown field " + field)
}

// animtree table — ref and anim-pair widths for both id-width variants,
// and the !PropSize64 two-byte pad after the ref/anim counts.
func TestAssemble_animtree(t *testing.T) {
	build := func(ctx *Context) (*Assembler, []byte) {
		asm := &Assembly{
			Functions: []Function{
				{Name: "main", Instructions: []Instruction{
					{Op: OpGetAnimation, Data: []string{"tree1", "anim1"}},
					{Op: OpGetAnimation, Data: []string{"tree1"}},
					{Op: OpReturn},
				}},
			},
		}
		a := NewAssembler(ctx)
		script, _, err := a.Assemble(asm, "main")
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		return a, script
	}

	t.Run("size64", func(t *testing.T) {
		ctx := NewT9Context()
		a, script := build(ctx)
		at := a.animtrees.order[0]
		pos := animtreeOffset(t, script)

		nameID := binary.LittleEndian.Uint32(script[pos : pos+4])
		if nameID != uint32(a.pool[at.Name]) {
			t.Fatalf("animtree name id = %d, want %d", nameID, a.pool[at.Name])
		}
		refCount := binary.LittleEndian.Uint16(script[pos+4 : pos+6])
		animCount := binary.LittleEndian.Uint16(script[pos+6 : pos+8])
		if refCount != uint16(len(at.Refs)) || animCount != uint16(len(at.Anims)) {
			t.Fatalf("ref/anim counts = %d/%d, want %d/%d", refCount, animCount, len(at.Refs), len(at.Anims))
		}
		pos += 8 // no pad when size64
		ref := binary.LittleEndian.Uint32(script[pos : pos+4])
		if ref != uint32(at.Refs[0]) {
			t.Fatalf("anim ref = %d, want %d", ref, at.Refs[0])
		}
		pos += 4
		anim := at.Anims[0]
		animNameID := binary.LittleEndian.Uint64(script[pos : pos+8])
		if animNameID != uint64(a.pool[anim.Name]) {
			t.Fatalf("anim name id (size64) = %d, want %d", animNameID, a.pool[anim.Name])
		}
		pos += 8
		animRef := binary.LittleEndian.Uint64(script[pos : pos+8])
		if animRef != uint64(anim.Ref) {
			t.Fatalf("anim ref (size64) = %d, want %d", animRef, anim.Ref)
		}
	})

	t.Run("notSize64", func(t *testing.T) {
		ctx := nonSize64T6Context()
		a, script := build(ctx)
		at := a.animtrees.order[0]
		pos := animtreeOffset(t, script)

		nameID := binary.LittleEndian.Uint16(script[pos : pos+2])
		if nameID != uint16(a.pool[at.Name]) {
			t.Fatalf("animtree name id = %d, want %d", nameID, a.pool[at.Name])
		}
		refCount := binary.LittleEndian.Uint16(script[pos+2 : pos+4])
		animCount := binary.LittleEndian.Uint16(script[pos+4 : pos+6])
		if refCount != uint16(len(at.Refs)) || animCount != uint16(len(at.Anims)) {
			t.Fatalf("ref/anim counts = %d/%d, want %d/%d", refCount, animCount, len(at.Refs), len(at.Anims))
		}
		pos += 6 + 2 // counts, then the !size64 pad
		ref := binary.LittleEndian.Uint32(script[pos : pos+4])
		if ref != uint32(at.Refs[0]) {
			t.Fatalf("anim ref = %d, want %d", ref, at.Refs[0])
		}
		pos += 4
		anim := at.Anims[0]
		animNameID := binary.LittleEndian.Uint32(script[pos : pos+4])
		if animNameID != uint32(a.pool[anim.Name]) {
			t.Fatalf("anim name id = %d, want %d", animNameID, a.pool[anim.Name])
		}
		pos += 4
		animRef := binary.LittleEndian.Uint32(script[pos : pos+4])
		if animRef != uint32(anim.Ref) {
			t.Fatalf("anim ref = %d, want %d", animRef, anim.Ref)
		}
	})
}

func animtreeOffset(t *testing.T, script []byte) int {
	t.Helper()
	// animtree_offset is the third header field, after magic(8)+crc(4)+
	// includeOff(4), at a fixed position regardless of variant.
	off := binary.LittleEndian.Uint32(script[8+4+4:])
	if int(off) <= 0 || int(off) >= len(script) {
		t.Fatalf("animtree offset %d out of range (len %d)", off, len(script))
	}
	return int(off)
}

func TestAssemble_determinism(t *testing.T) {
	ctx := NewT6Context()
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpGetByte, Data: []string{"7"}},
				{Op: OpReturn},
			}},
		},
	}

	s1, d1 := mustAssemble(t, ctx, asm, "")
	// re-run on a fresh Assembly value since layout mutates Index/Size/Labels in place
	asm2 := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpGetByte, Data: []string{"7"}},
				{Op: OpReturn},
			}},
		},
	}
	s2, d2 := mustAssemble(t, ctx, asm2, "")

	if string(s1) != string(s2) || string(d1) != string(d2) {
		t.Fatal("assemble is not deterministic across calls sharing the same Context")
	}
}
