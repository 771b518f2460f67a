package zmachine_test

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/bcorrigan/zmachine/zcore"
	"github.com/bcorrigan/zmachine/zmachine"
	"github.com/bcorrigan/zmachine/zobject"
	"github.com/bcorrigan/zmachine/zscreen"
)

// storyBuilder assembles a synthetic story image: dynamic memory below
// 0x400, a two-word dictionary at 0x300, an object table at 0x200, code from
// 0x500 and a routine slot at 0x600.
type storyBuilder struct {
	mem     []uint8
	codePtr uint32
}

func newStory(version uint8) *storyBuilder {
	mem := make([]uint8, 0x800)
	mem[0x00] = version
	binary.BigEndian.PutUint16(mem[0x04:], 0x0400)
	binary.BigEndian.PutUint16(mem[0x06:], 0x0500)
	binary.BigEndian.PutUint16(mem[0x08:], 0x0300)
	binary.BigEndian.PutUint16(mem[0x0a:], 0x0200)
	binary.BigEndian.PutUint16(mem[0x0c:], 0x0100)
	binary.BigEndian.PutUint16(mem[0x0e:], 0x0400)
	binary.BigEndian.PutUint16(mem[0x18:], 0x0080)

	// Dictionary: separator ',', 7 byte entries, "look" and "north"
	mem[0x300] = 1
	mem[0x301] = ','
	mem[0x302] = 7
	binary.BigEndian.PutUint16(mem[0x303:], 2)
	copy(mem[0x305:], []uint8{0x46, 0x94, 0xc0, 0xa5})
	copy(mem[0x30c:], []uint8{0x4e, 0x97, 0xe5, 0xa5})

	return &storyBuilder{mem: mem, codePtr: 0x500}
}

func (b *storyBuilder) code(bytes ...uint8) *storyBuilder {
	copy(b.mem[b.codePtr:], bytes)
	b.codePtr += uint32(len(bytes))
	return b
}

// routine writes a routine body at 0x600; the packed address of 0x600 is
// 0x300 on v3 and 0x180 on v5.
func (b *storyBuilder) routine(bytes ...uint8) *storyBuilder {
	copy(b.mem[0x600:], bytes)
	return b
}

// objects installs the three object fixture used by the tree tests:
// 1 (child 2), 2 (parent 1), 3 (free standing).
func (b *storyBuilder) objects() *storyBuilder {
	writeObject := func(id uint16, parent, sibling, child uint8, propPtr uint16) {
		base := 0x200 + 31*2 + (uint32(id)-1)*9
		b.mem[base+4] = parent
		b.mem[base+5] = sibling
		b.mem[base+6] = child
		binary.BigEndian.PutUint16(b.mem[base+7:], propPtr)
	}
	writeObject(1, 0, 0, 2, 0x260)
	writeObject(2, 1, 0, 0, 0x280)
	writeObject(3, 0, 0, 0, 0x2a0)

	// Empty names, no properties
	for _, addr := range []uint32{0x260, 0x280, 0x2a0} {
		b.mem[addr] = 0
		b.mem[addr+1] = 0
	}
	return b
}

func (b *storyBuilder) build(t *testing.T, screen zscreen.Screen) *zmachine.ZMachine {
	t.Helper()
	z, err := zmachine.LoadRom(b.mem, screen)
	if err != nil {
		t.Fatal(err)
	}
	return z
}

// testScreen scripts input lines and records output; once the script is
// exhausted further input requests ask the machine to stop.
type testScreen struct {
	output strings.Builder
	inputs []string
	status []string

	savedBlob    []uint8
	restoresLeft int
}

func (s *testScreen) Print(text string)   { s.output.WriteString(text) }
func (s *testScreen) Newline()            { s.output.WriteByte('\n') }
func (s *testScreen) PrintNumber(n int16) {}
func (s *testScreen) PrintChar(c rune)    { s.output.WriteRune(c) }

func (s *testScreen) ReadLine() (string, bool) {
	if len(s.inputs) == 0 {
		return "", true
	}
	line := s.inputs[0]
	s.inputs = s.inputs[1:]
	return line, false
}

func (s *testScreen) ReadChar() (rune, bool) {
	line, exit := s.ReadLine()
	if exit || line == "" {
		return '\n', exit
	}
	return rune(line[0]), false
}

func (s *testScreen) SetStatus(location string, right string) {
	s.status = append(s.status, location+"|"+right)
}

func (s *testScreen) SplitWindow(upperLines uint16)               {}
func (s *testScreen) SetWindow(window uint16)                     {}
func (s *testScreen) EraseWindow(window int16)                    {}
func (s *testScreen) EraseLine()                                  {}
func (s *testScreen) SetCursor(line uint16, column uint16)        {}
func (s *testScreen) GetCursor() (uint16, uint16)                 { return 1, 1 }
func (s *testScreen) SetTextStyle(style zscreen.TextStyle)        {}
func (s *testScreen) SetColor(fg zscreen.Color, bg zscreen.Color) {}
func (s *testScreen) BufferMode(buffered bool)                    {}
func (s *testScreen) Width() uint16                               { return 80 }
func (s *testScreen) Height() uint16                              { return 25 }
func (s *testScreen) Entropy() int64                              { return 1 }

func (s *testScreen) Save(data []uint8) bool {
	s.savedBlob = append([]uint8(nil), data...)
	return true
}

func (s *testScreen) Restore() []uint8 {
	if s.restoresLeft <= 0 {
		return nil
	}
	s.restoresLeft--
	return s.savedBlob
}

func run(t *testing.T, z *zmachine.ZMachine) {
	t.Helper()
	if err := z.Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func expectRuntimeError(t *testing.T, z *zmachine.ZMachine, kind zcore.FaultKind) {
	t.Helper()
	err := z.Run()
	var runtimeError *zmachine.RuntimeError
	if !errors.As(err, &runtimeError) {
		t.Fatalf("expected a runtime error, got %v", err)
	}
	if runtimeError.Kind != kind {
		t.Fatalf("error kind = %v, want %v (%v)", runtimeError.Kind, kind, err)
	}
}

// add 3 4 -> g0; je g0 7 branches over print "N" to print "Y".
func TestArithmeticBranch(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).code(
		0x14, 0x03, 0x04, 0x10, // add #3 #4 -> g0
		0x41, 0x10, 0x07, 0xc6, // je g0 #7 [true +6]
		0xb2, 0x92, 0x65, // print "N"
		0xba,             // quit
		0xb2, 0x93, 0xc5, // print "Y"
		0xba, // quit
	).build(t, screen)

	run(t, z)

	if screen.output.String() != "Y" {
		t.Fatalf("output = %q, want %q", screen.output.String(), "Y")
	}
}

// insert_obj 2 3 re-links the forest: 2 leaves 1 and becomes 3's first child.
func TestInsertObj(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).objects().code(
		0x0e, 0x02, 0x03, // insert_obj #2 #3
		0xba, // quit
	).build(t, screen)

	run(t, z)

	obj1 := zobject.GetObject(1, &z.Core, z.Alphabets)
	obj2 := zobject.GetObject(2, &z.Core, z.Alphabets)
	obj3 := zobject.GetObject(3, &z.Core, z.Alphabets)

	if obj2.Parent != 3 {
		t.Errorf("parent(2) = %d, want 3", obj2.Parent)
	}
	if obj3.Child != 2 {
		t.Errorf("child(3) = %d, want 2", obj3.Child)
	}
	if obj1.Child != 0 {
		t.Errorf("child(1) = %d, want 0", obj1.Child)
	}
	if obj2.Sibling != 0 {
		t.Errorf("sibling(2) = %d, want 0", obj2.Sibling)
	}
}

func TestRemoveObjPreservesSiblingChain(t *testing.T) {
	screen := &testScreen{}
	b := newStory(3).objects()

	// Give object 1 the child chain 2 -> 3 then remove 3, which is not the
	// first child
	base2 := uint32(0x200 + 31*2 + 9)
	base3 := uint32(0x200 + 31*2 + 18)
	b.mem[base2+5] = 3 // sibling(2) = 3
	b.mem[base3+4] = 1 // parent(3) = 1

	z := b.code(
		0x99, 0x03, // remove_obj #3
		0xba, // quit
	).build(t, screen)

	run(t, z)

	obj1 := zobject.GetObject(1, &z.Core, z.Alphabets)
	obj2 := zobject.GetObject(2, &z.Core, z.Alphabets)
	obj3 := zobject.GetObject(3, &z.Core, z.Alphabets)

	if obj3.Parent != 0 || obj3.Sibling != 0 {
		t.Errorf("object 3 not detached: parent %d sibling %d", obj3.Parent, obj3.Sibling)
	}
	if obj1.Child != 2 || obj2.Sibling != 0 {
		t.Errorf("sibling chain broken: child(1)=%d sibling(2)=%d", obj1.Child, obj2.Sibling)
	}
}

// call_vs routine(a, b) returning its first argument; the result lands on
// the stack and is stored to g1.
func TestCallReturnsFirstArgument(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).routine(
		0x02,       // two locals
		0x00, 0x00, // default for local 1
		0x00, 0x00, // default for local 2
		0xab, 0x01, // ret local1
	).code(
		0xe0, 0x17, 0x03, 0x00, 0x0a, 0x14, 0x00, // call_vs 0x300 #10 #20 -> sp
		0x2d, 0x11, 0x00, // store g1 sp
		0xba, // quit
	).build(t, screen)

	run(t, z)

	if got := z.Core.ReadHalfWord(0x102); got != 10 {
		t.Fatalf("g1 = %d, want 10", got)
	}
}

// Calling packed address 0 stores 0 without a call.
func TestCallToAddressZero(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).code(
		0xe0, 0x3f, 0x00, 0x00, 0x10, // call_vs 0 -> g0
		0xba, // quit
	).build(t, screen)

	// Pre-set g0 to prove it gets overwritten
	z.Core.WriteHalfWord(0x100, 0xffff)

	run(t, z)

	if got := z.Core.ReadHalfWord(0x100); got != 0 {
		t.Fatalf("g0 = %d, want 0", got)
	}
}

// sread "look north" tokenises into two dictionary hits with the right
// lengths and buffer offsets.
func TestSread(t *testing.T) {
	screen := &testScreen{inputs: []string{"look north"}}
	b := newStory(3)
	b.mem[0x180] = 20 // text buffer capacity
	b.mem[0x1c0] = 5  // parse buffer capacity

	z := b.code(
		0xe4, 0x0f, 0x01, 0x80, 0x01, 0xc0, // sread text=0x180 parse=0x1c0
		0xba, // quit
	).build(t, screen)

	run(t, z)

	if count := z.Core.ReadByte(0x1c1); count != 2 {
		t.Fatalf("token count = %d, want 2", count)
	}

	if addr := z.Core.ReadHalfWord(0x1c2); addr != 0x305 {
		t.Errorf("token 1 dictionary address = %x, want 0x305", addr)
	}
	if length := z.Core.ReadByte(0x1c4); length != 4 {
		t.Errorf("token 1 length = %d, want 4", length)
	}
	if offset := z.Core.ReadByte(0x1c5); offset != 1 {
		t.Errorf("token 1 offset = %d, want 1", offset)
	}

	if addr := z.Core.ReadHalfWord(0x1c6); addr != 0x30c {
		t.Errorf("token 2 dictionary address = %x, want 0x30c", addr)
	}
	if length := z.Core.ReadByte(0x1c8); length != 5 {
		t.Errorf("token 2 length = %d, want 5", length)
	}
	if offset := z.Core.ReadByte(0x1c9); offset != 6 {
		t.Errorf("token 2 offset = %d, want 6", offset)
	}

	// v3 updates the status bar before reading
	if len(screen.status) == 0 {
		t.Error("sread should have updated the status bar")
	}
}

// Direct tokenise call: separators are tokens in their own right and
// unknown words get dictionary address 0.
func TestTokeniseSeparators(t *testing.T) {
	screen := &testScreen{}
	b := newStory(3)
	b.mem[0x180] = 20
	copy(b.mem[0x181:], []uint8("look,grue\x00"))
	b.mem[0x1c0] = 5

	z := b.code(0xba).build(t, screen)
	run(t, z)

	z.Tokenise(0x180, 0x1c0, 0, false)

	if count := z.Core.ReadByte(0x1c1); count != 3 {
		t.Fatalf("token count = %d, want 3", count)
	}
	if addr := z.Core.ReadHalfWord(0x1c2); addr != 0x305 {
		t.Errorf("token 1 = %x, want the look entry", addr)
	}
	if addr := z.Core.ReadHalfWord(0x1c6); addr != 0 {
		t.Errorf("comma token = %x, want 0", addr)
	}
	if length := z.Core.ReadByte(0x1c8); length != 1 {
		t.Errorf("comma length = %d, want 1", length)
	}
	if addr := z.Core.ReadHalfWord(0x1ca); addr != 0 {
		t.Errorf("grue = %x, want 0 (unknown word)", addr)
	}
}

// random(-k) then random(k) is deterministic across machines.
func TestRandomDeterministicSeeding(t *testing.T) {
	runOnce := func() (uint16, uint16) {
		screen := &testScreen{}
		z := newStory(3).code(
			0xe7, 0x3f, 0xff, 0xfb, 0x10, // random #-5 -> g0
			0xe7, 0x7f, 0x05, 0x11, // random #5 -> g1
			0xe7, 0x7f, 0x05, 0x12, // random #5 -> g2
			0xba, // quit
		).build(t, screen)
		run(t, z)
		return z.Core.ReadHalfWord(0x102), z.Core.ReadHalfWord(0x104)
	}

	first1, first2 := runOnce()
	second1, second2 := runOnce()

	if first1 != second1 || first2 != second2 {
		t.Fatalf("seeded sequences differ: (%d,%d) vs (%d,%d)", first1, first2, second1, second2)
	}
	if first1 < 1 || first1 > 5 || first2 < 1 || first2 > 5 {
		t.Fatalf("results %d,%d outside [1,5]", first1, first2)
	}
}

// dec_chk on a global: 0-1 = -1 < 0 so the branch is taken (signed compare).
func TestDecChkSignedComparison(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).code(
		0x0d, 0x12, 0x00, // store g2 #0
		0x04, 0x12, 0x00, 0xc6, // dec_chk g2 #0 [true +6]
		0xb2, 0x91, 0x85, // print "G"
		0xba,             // quit
		0xb2, 0x92, 0x25, // print "L"
		0xba, // quit
	).build(t, screen)

	run(t, z)

	if screen.output.String() != "L" {
		t.Fatalf("output = %q, want %q", screen.output.String(), "L")
	}
}

// Stack depth is balanced across call/ret: the routine pushes twice but its
// stack dies with the frame, and the caller's stack gains only the result.
func TestStackBalancedAcrossCall(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).routine(
		0x00,             // no locals
		0xe8, 0x7f, 0x07, // push #7
		0xe8, 0x7f, 0x08, // push #8
		0xb8, // ret_popped (returns 8)
	).code(
		0xe8, 0x7f, 0x63, // push #99 (caller stack depth 1)
		0xe0, 0x3f, 0x03, 0x00, 0x00, // call_vs 0x300 -> sp (depth 2)
		0x2d, 0x11, 0x00, // store g1 sp (depth 1)
		0x2d, 0x12, 0x00, // store g2 sp (depth 0)
		0xba, // quit
	).build(t, screen)

	run(t, z)

	if got := z.Core.ReadHalfWord(0x102); got != 8 {
		t.Errorf("g1 = %d, want the routine result 8", got)
	}
	if got := z.Core.ReadHalfWord(0x104); got != 99 {
		t.Errorf("g2 = %d, want the caller's own 99", got)
	}
}

// Writes above the static memory base are fatal.
func TestStoreToStaticMemoryFails(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).code(
		0xe1, 0x17, 0x04, 0x00, 0x00, 0x05, // storew 0x400 #0 #5
	).build(t, screen)

	expectRuntimeError(t, z, zcore.MemoryViolation)
}

// Returning from the bottom frame is a BadReturn, not a crash.
func TestReturnFromInitialFrame(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).code(
		0xb0, // rtrue at the top level
	).build(t, screen)

	expectRuntimeError(t, z, zcore.BadReturn)
}

func TestUnknownOpcode(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).code(
		0x00, 0x00, 0x00, // 2OP:0 is unassigned
	).build(t, screen)

	expectRuntimeError(t, z, zcore.UnknownOpcode)
}

// save branches on success; restore rewinds to the save's branch point and
// reports success through it. The screen only hands the blob back once, so
// the second restore falls through to print "D".
func TestSaveRestoreRoundTrip(t *testing.T) {
	screen := &testScreen{restoresLeft: 1}
	z := newStory(3).code(
		0xb5, 0xc6, // save [true +6]
		0xb2, 0x91, 0x65, // print "F" (save failed)
		0xba,       // quit
		0xb6, 0xc6, // restore [true +6]
		0xb2, 0x91, 0x25, // print "D" (restore failed / second pass)
		0xba,             // quit
		0xb2, 0x92, 0xe5, // print "R" (never reached)
		0xba, // quit
	).build(t, screen)

	run(t, z)

	if screen.output.String() != "D" {
		t.Fatalf("output = %q, want %q", screen.output.String(), "D")
	}
	if len(screen.savedBlob) == 0 {
		t.Fatal("no blob handed to the screen")
	}
}

// print and newline flow through to the screen; print_ret returns true.
func TestPrintRet(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).routine(
		0x00,             // no locals
		0xb3, 0x93, 0xc5, // print_ret "Y"
	).code(
		0xe0, 0x3f, 0x03, 0x00, 0x10, // call_vs 0x300 -> g0
		0xba, // quit
	).build(t, screen)

	run(t, z)

	if screen.output.String() != "Y\n" {
		t.Fatalf("output = %q, want %q", screen.output.String(), "Y\n")
	}
	if got := z.Core.ReadHalfWord(0x100); got != 1 {
		t.Fatalf("g0 = %d, want print_ret's true", got)
	}
}

// A backwards long-form branch loops over an inc until inc_chk passes.
func TestBackwardsBranchLoop(t *testing.T) {
	screen := &testScreen{}
	z := newStory(3).code(
		// loop: inc g0; inc_chk g1 #2 [false -> loop]
		0x95, 0x10, // inc g0
		0x05, 0x11, 0x02, 0x3f, 0xfb, // inc_chk g1 #2 [false, offset -5]
		0xba, // quit
	).build(t, screen)

	run(t, z)

	// g1 counts 1,2,3: the loop body runs three times
	if got := z.Core.ReadHalfWord(0x100); got != 3 {
		t.Fatalf("g0 = %d, want 3", got)
	}
	if got := z.Core.ReadHalfWord(0x102); got != 3 {
		t.Fatalf("g1 = %d, want 3", got)
	}
}

// Restart rewinds dynamic memory and the program counter.
func TestRestartStateRewind(t *testing.T) {
	screen := &testScreen{inputs: []string{"look"}}
	b := newStory(3)
	b.mem[0x180] = 20
	b.mem[0x1c0] = 5

	// store g0 #1; sread (pauses); restart; quit on second read exhaustion
	z := b.code(
		0x0d, 0x10, 0x01, // store g0 #1
		0xe4, 0x0f, 0x01, 0x80, 0x01, 0xc0, // sread
		0xb7, // restart
	).build(t, screen)

	run(t, z)

	// After restart the machine re-executed store g0 #1 then hit sread with
	// an exhausted input script, halting. Dynamic memory was rewound before
	// the re-run so the text buffer capacity byte survived.
	if got := z.Core.ReadHalfWord(0x100); got != 1 {
		t.Fatalf("g0 = %d, want 1 (store re-executed after restart)", got)
	}
	if got := z.Core.ReadByte(0x180); got != 20 {
		t.Fatalf("text buffer capacity = %d, want 20", got)
	}
}
