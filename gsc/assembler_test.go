package gsc

import (
	"encoding/binary"
	"testing"
)

// decodeI24 reverses Writer.WriteI24's little-endian packed 3-byte
// signed encoding.
func decodeI24(b []byte) int32 {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	if u&0x800000 != 0 {
		u |= 0xFF000000
	}
	return int32(u)
}

// S6 — encrypted literal.
func TestAssemble_encryptedLiteral(t *testing.T) {
	ctx := NewIW6Context()
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpGetString, Data: []string{"_encstr_68656c6c6f"}},
				{Op: OpReturn},
			}},
		},
	}

	a := NewAssembler(ctx)
	script, stack, _, err := a.Assemble(asm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	fn := &asm.Functions[0]
	get := &fn.Instructions[0]
	placeholder := fn.Index + get.Index + 1
	if script[placeholder] != 0 || script[placeholder+1] != 0 {
		t.Fatalf("script placeholder not zero: %v", script[placeholder:placeholder+2])
	}

	want := "hello\x00"
	if len(stack) < len(want) || string(stack[len(stack)-len(want):]) != want {
		t.Fatalf("stack tail = %q, want %q", stack[max(0, len(stack)-len(want)):], want)
	}
}

// S4 — far call with farcall on.
func TestAssemble_farCall(t *testing.T) {
	ctx := NewIW9Context() // props include PropFarcall
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpScriptFarFunctionCall, Data: []string{"maps/mp/utility", "init", "0", "0"}},
				{Op: OpReturn},
			}},
		},
	}

	a := NewAssembler(ctx)
	script, stack, _, err := a.Assemble(asm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	fn := &asm.Functions[0]
	call := &fn.Instructions[0]
	slot := fn.Index + call.Index + 1
	if got := binary.LittleEndian.Uint32(script[slot : slot+4]); got != 0 {
		t.Fatalf("script far-call slot = %#x, want 0", got)
	}

	// stack layout: u32 size, u64 name-hash (PropHash set), then the
	// call's own u64 path-hash, u64 name-hash.
	pathHash := binary.LittleEndian.Uint64(stack[4+8 : 4+16])
	nameHash := binary.LittleEndian.Uint64(stack[4+16 : 4+24])
	if want := ctx.PathID("maps/mp/utility"); pathHash != want {
		t.Fatalf("path hash = %#x, want %#x", pathHash, want)
	}
	if want := ctx.HashID("init"); nameHash != want {
		t.Fatalf("name hash = %#x, want %#x", nameHash, want)
	}
}

// S8 — local call forward reference; also checks the emitted
// displacement bytes decode to the engine's packed, shifted offset
// rather than a raw unshifted one.
func TestAssemble_localCall(t *testing.T) {
	ctx := NewIW6Context()
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpScriptLocalFunctionCall, Data: []string{"helper"}},
				{Op: OpReturn},
			}},
			{Name: "helper", Instructions: []Instruction{
				{Op: OpReturn},
			}},
		},
	}

	a := NewAssembler(ctx)
	script, _, _, err := a.Assemble(asm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	main := &asm.Functions[0]
	helper := &asm.Functions[1]
	if helper.Index <= main.Index {
		t.Fatalf("helper.Index = %d, expected to follow main at %d", helper.Index, main.Index)
	}

	call := &main.Instructions[0]
	instAbs := main.Index + call.Index
	got := decodeI24(script[instAbs+1 : instAbs+4])
	want := packOffset(int32(helper.Index-instAbs), ctx.Props())
	if got != want {
		t.Fatalf("local call displacement = %d, want %d (raw offset %d)", got, want, helper.Index-instAbs)
	}
}

// S3-equivalent — GSC switch table, covering the case count width, the
// string-case ordinal written directly into the script (not a zero
// placeholder), the masked integer-case encoding, and the default
// entry's displacement.
func TestAssemble_switch(t *testing.T) {
	ctx := NewIW6Context()
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpEndSwitch, Data: []string{
					"3",
					"case", "integer", "7", "caseA",
					"case", "string", "hi", "caseB",
					"default", "caseC",
				}},
				{Op: OpGetUndefined}, // caseA
				{Op: OpGetUndefined}, // caseB
				{Op: OpGetUndefined}, // caseC
				{Op: OpReturn},
			}},
		},
	}
	asm.Functions[0].Labels = map[int]string{1: "caseA", 2: "caseB", 3: "caseC"}

	a := NewAssembler(ctx)
	script, stack, _, err := a.Assemble(asm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	fn := &asm.Functions[0]
	es := &fn.Instructions[0]
	base := fn.Index + es.Index + 1 // past the EndSwitch opcode byte

	count := binary.LittleEndian.Uint16(script[base : base+2])
	if count != 3 {
		t.Fatalf("case count = %d, want 3", count)
	}
	pos := base + 2

	// case 0: integer 7 -> masked (7 & 0xFFFFFF) + 0x800000
	intVal := binary.LittleEndian.Uint32(script[pos : pos+4])
	if want := uint32(7) + 0x800000; intVal != want {
		t.Fatalf("integer case value = %#x, want %#x", intVal, want)
	}
	pos += 4
	caseATarget := fn.Index + resolveLabelOrFatal(t, fn, "caseA")
	if got, want := decodeI24(script[pos:pos+3]), packOffset(int32(caseATarget-pos), ctx.Props()); got != want {
		t.Fatalf("case 0 displacement = %d, want %d", got, want)
	}
	pos += 3

	// case 1: string "hi" -> ordinal i+1 == 2, literal pushed to stack
	strVal := binary.LittleEndian.Uint32(script[pos : pos+4])
	if strVal != 2 {
		t.Fatalf("string case ordinal = %d, want 2", strVal)
	}
	pos += 4
	caseBTarget := fn.Index + resolveLabelOrFatal(t, fn, "caseB")
	if got, want := decodeI24(script[pos:pos+3]), packOffset(int32(caseBTarget-pos), ctx.Props()); got != want {
		t.Fatalf("case 1 displacement = %d, want %d", got, want)
	}
	pos += 3

	want := "hi\x00"
	if len(stack) < len(want) || !containsBytes(stack, []byte(want)) {
		t.Fatalf("stack does not contain pushed string literal %q", want)
	}

	// default entry: u32 zero, then a 1-byte stack marker, then displacement
	defVal := binary.LittleEndian.Uint32(script[pos : pos+4])
	if defVal != 0 {
		t.Fatalf("default entry value = %#x, want 0", defVal)
	}
	pos += 4
	if !containsBytes(stack, []byte("\x01\x00")) {
		t.Fatalf("stack missing default-entry marker")
	}
	caseCTarget := fn.Index + resolveLabelOrFatal(t, fn, "caseC")
	if got, want := decodeI24(script[pos:pos+3]), packOffset(int32(caseCTarget-pos), ctx.Props()); got != want {
		t.Fatalf("default displacement = %d, want %d", got, want)
	}
}

// jumps and the OP_switch dispatch opcode use raw, unpacked
// displacements distinct from the packed/sentinel format local calls
// and switch-table entries use: a forward conditional jump writes a
// raw i16 counted from 3 bytes past the instruction, a backward jump
// writes the same i16 reversed, a plain jump writes a raw i32, and
// OP_switch's dispatch always writes a raw i32 with subtrahend 4.
func TestAssemble_jumpEncodings(t *testing.T) {
	ctx := NewIW6Context()
	asm := &Assembly{
		Functions: []Function{
			{Name: "main", Instructions: []Instruction{
				{Op: OpGetUndefined},                       // 0: label "top"
				{Op: OpJumpBack, Data: []string{"top"}},     // 1
				{Op: OpJumpOnFalse, Data: []string{"end"}},  // 2
				{Op: OpJump, Data: []string{"end"}},         // 3
				{Op: OpSwitch, Data: []string{"end"}},       // 4
				{Op: OpGetUndefined},                       // 5: label "end"
				{Op: OpReturn},                              // 6
			}},
		},
	}
	asm.Functions[0].Labels = map[int]string{0: "top", 5: "end"}

	a := NewAssembler(ctx)
	script, _, _, err := a.Assemble(asm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	fn := &asm.Functions[0]
	topAbs := fn.Index + fn.Instructions[0].Index
	endAbs := fn.Index + fn.Instructions[5].Index

	jumpBackAbs := fn.Index + fn.Instructions[1].Index
	gotBack := int16(binary.LittleEndian.Uint16(script[jumpBackAbs+1 : jumpBackAbs+3]))
	wantBack := int16((jumpBackAbs + 3) - topAbs)
	if gotBack != wantBack {
		t.Fatalf("jumpback displacement = %d, want %d", gotBack, wantBack)
	}

	jofAbs := fn.Index + fn.Instructions[2].Index
	gotJOF := int16(binary.LittleEndian.Uint16(script[jofAbs+1 : jofAbs+3]))
	wantJOF := int16(endAbs - jofAbs - 3)
	if gotJOF != wantJOF {
		t.Fatalf("conditional jump displacement = %d, want %d", gotJOF, wantJOF)
	}

	jumpAbs := fn.Index + fn.Instructions[3].Index
	gotJump := int32(binary.LittleEndian.Uint32(script[jumpAbs+1 : jumpAbs+5]))
	wantJump := int32(endAbs - jumpAbs - 5)
	if gotJump != wantJump {
		t.Fatalf("plain jump displacement = %d, want %d", gotJump, wantJump)
	}

	switchAbs := fn.Index + fn.Instructions[4].Index
	gotSwitch := int32(binary.LittleEndian.Uint32(script[switchAbs+1 : switchAbs+5]))
	wantSwitch := int32(endAbs - switchAbs - 4)
	if gotSwitch != wantSwitch {
		t.Fatalf("switch dispatch displacement = %d, want %d", gotSwitch, wantSwitch)
	}
}

func resolveLabelOrFatal(t *testing.T, fn *Function, name string) int {
	for off, n := range fn.Labels {
		if n == name {
			return off
		}
	}
	t.Fatalf("label %q not found", name)
	return 0
}

func containsBytes(haystack, needle []byte) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return true
		}
	}
	return false
}

func TestAssemble_determinism(t *testing.T) {
	ctx := NewIW6Context()
	build := func() *Assembly {
		return &Assembly{
			Functions: []Function{
				{Name: "main", Instructions: []Instruction{
					{Op: OpGetByte, Data: []string{"7"}},
					{Op: OpReturn},
				}},
			},
		}
	}

	a1 := NewAssembler(ctx)
	s1, st1, d1, err := a1.Assemble(build())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	a2 := NewAssembler(ctx)
	s2, st2, d2, err := a2.Assemble(build())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if string(s1) != string(s2) || string(st1) != string(st2) || string(d1) != string(d2) {
		t.Fatal("assemble is not deterministic across Assembler instances sharing the same Context")
	}
}
