package zmachine

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/bcorrigan/zmachine/dictionary"
	"github.com/bcorrigan/zmachine/zcore"
	"github.com/bcorrigan/zmachine/zobject"
	"github.com/bcorrigan/zmachine/zscreen"
	"github.com/bcorrigan/zmachine/zstring"
)

// Output stream 3 redirections can nest to this depth per the standard.
const maxMemoryStreams = 16

// memoryStream buffers ZSCII output for one active output_stream 3
// redirection until the story closes it.
type memoryStream struct {
	tableAddr uint32
	chars     []uint8
}

type ZMachine struct {
	Core       zcore.Core
	Alphabets  *zstring.Alphabets
	callStack  CallStack
	dictionary *dictionary.Dictionary
	screen     zscreen.Screen
	rng        *rand.Rand

	undoStates InMemorySaveStateCache

	memoryStreams        []memoryStream
	screenOutputEnabled  bool
	currentInstructionPC uint32
	halted               bool
	warned               map[string]bool
}

// LoadRom builds a machine over a story image and a host screen. The image
// slice is owned by the machine from here on.
func LoadRom(rom []uint8, screen zscreen.Screen) (*ZMachine, error) {
	core, err := zcore.LoadCore(rom)
	if err != nil {
		return nil, err
	}

	machine := ZMachine{
		Core:                core,
		screen:              screen,
		screenOutputEnabled: true,
		warned:              make(map[string]bool),
	}

	machine.Alphabets = zstring.LoadAlphabets(&machine.Core)
	machine.dictionary = dictionary.ParseDictionary(uint32(core.DictionaryBase), &machine.Core)
	machine.rng = rand.New(rand.NewSource(screen.Entropy()))

	machine.resetCallStack()

	return &machine, nil
}

// resetCallStack builds the initial execution context, also used on restart.
func (z *ZMachine) resetCallStack() {
	z.callStack = CallStack{}
	z.callStack.push(CallStackFrame{
		pc:     uint32(z.Core.FirstInstruction),
		locals: make([]uint16, 0),
	})
}

// Run drives fetch/decode/dispatch until the story quits or a fatal fault
// occurs. Faults are recovered into a RuntimeError carrying the PC of the
// faulting instruction.
func (z *ZMachine) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fault, ok := r.(zcore.Fault); ok {
				err = &RuntimeError{Kind: fault.Kind, PC: z.currentInstructionPC, Detail: fault.Detail}
				return
			}
			panic(r)
		}
	}()

	for !z.halted {
		z.StepMachine()
	}

	return nil
}

// Halted reports whether the run has ended (quit opcode or host exit).
func (z *ZMachine) Halted() bool { return z.halted }

func (z *ZMachine) readIncPC(frame *CallStackFrame) uint8 {
	v := z.Core.ReadByte(frame.pc)
	frame.pc++
	return v
}

func (z *ZMachine) readHalfWordIncPC(frame *CallStackFrame) uint16 {
	v := z.Core.ReadHalfWord(frame.pc)
	frame.pc += 2
	return v
}

// warnOnce reports a recoverable oddity to the host exactly once per key.
func (z *ZMachine) warnOnce(key string, format string, args ...any) {
	if z.warned[key] {
		return
	}
	z.warned[key] = true
	z.screen.Print(fmt.Sprintf("\n[warning: "+format+"]\n", args...))
}

func (z *ZMachine) readVariable(variable uint8) uint16 {
	currentCallFrame := z.callStack.peek()

	switch {
	case variable == 0: // Magic stack variable
		return currentCallFrame.pop()
	case variable < 16: // Routine local variables
		if variable > uint8(len(currentCallFrame.locals)) {
			panic(zcore.Faultf(zcore.StackUnderflow, "read of local %d but routine has %d locals", variable, len(currentCallFrame.locals)))
		}

		return currentCallFrame.locals[variable-1]
	default: // Global variables
		return z.Core.ReadHalfWord(uint32(z.Core.GlobalVariableBase) + 2*(uint32(variable)-16))
	}
}

func (z *ZMachine) writeVariable(variable uint8, value uint16) {
	currentCallFrame := z.callStack.peek()

	switch {
	case variable == 0: // Magic stack variable
		currentCallFrame.push(value)
	case variable < 16: // Routine local variables
		if variable > uint8(len(currentCallFrame.locals)) {
			panic(zcore.Faultf(zcore.StackUnderflow, "write of local %d but routine has %d locals", variable, len(currentCallFrame.locals)))
		}

		currentCallFrame.locals[variable-1] = value
	default: // Global variables
		z.Core.WriteHalfWord(uint32(z.Core.GlobalVariableBase)+2*(uint32(variable)-16), value)
	}
}

// Indirect variable references (load, store, pull, inc, dec and friends)
// access the top of stack in place when they name variable 0, rather than
// pushing and popping.
func (z *ZMachine) readVariableInPlace(variable uint8) uint16 {
	if variable == 0 {
		return z.callStack.peek().peek()
	}
	return z.readVariable(variable)
}

func (z *ZMachine) writeVariableInPlace(variable uint8, value uint16) {
	if variable == 0 {
		z.callStack.peek().replaceTop(value)
		return
	}
	z.writeVariable(variable, value)
}

// call pushes a frame for the routine at the packed address in operand 0,
// binding remaining operands to its leading locals. Calling packed address
// 0 stores 0 (for functions) and does nothing else.
func (z *ZMachine) call(opcode *Opcode, routineType RoutineType) {
	routineAddress := z.Core.PackedRoutineAddress(uint32(opcode.operands[0].Value(z)))

	if routineAddress == 0 {
		if routineType == function {
			z.writeVariable(z.readIncPC(z.callStack.peek()), 0)
		}

		return
	}

	localVariableCount := z.Core.ReadByte(routineAddress)
	if localVariableCount > 15 {
		panic(zcore.Faultf(zcore.MalformedImage, "routine at 0x%x claims %d locals", routineAddress, localVariableCount))
	}
	routineAddress++

	locals := make([]uint16, localVariableCount)

	for i := 0; i < int(localVariableCount); i++ {
		if z.Core.Version < 5 {
			// v1-4 routines carry default local values after the count byte
			locals[i] = z.Core.ReadHalfWord(routineAddress)
			routineAddress += 2
		}

		if i+1 < len(opcode.operands) {
			// Value passed to routine, override default
			locals[i] = opcode.operands[i+1].Value(z)
		}
	}

	z.callStack.push(CallStackFrame{
		pc:              routineAddress,
		locals:          locals,
		routineStack:    make([]uint16, 0),
		routineType:     routineType,
		numValuesPassed: len(opcode.operands) - 1,
	})
}

// retValue pops the current frame and performs the pending store of the
// caller, unless the call was a procedure variant that discards its result.
func (z *ZMachine) retValue(val uint16) {
	oldFrame := z.callStack.pop()
	newFrame := z.callStack.peek()

	if oldFrame.routineType == function {
		destination := z.readIncPC(newFrame)
		z.writeVariable(destination, val)
	}
}

// throwValue unwinds to the frame captured by catch then returns from it.
func (z *ZMachine) throwValue(val uint16, framePointer uint16) {
	z.callStack.unwindTo(int(framePointer))
	z.retValue(val)
}

// handleBranch consumes the 1-2 byte branch suffix and transfers control if
// result matches the branch polarity. Offsets 0 and 1 mean "return
// false/true" rather than a jump.
func (z *ZMachine) handleBranch(frame *CallStackFrame, result bool) {
	branchArg1 := z.readIncPC(frame)

	branchReversed := (branchArg1>>7)&1 == 0
	singleByte := (branchArg1>>6)&1 == 1
	offset := int32(branchArg1 & 0b11_1111)

	if !singleByte {
		// 14 bit signed offset from the low bits of both bytes
		offset = int32(int16((uint16(branchArg1&0b11_1111)<<8|uint16(z.readIncPC(frame)))<<2) >> 2)
	}

	if result != branchReversed {
		switch offset {
		case 0:
			z.retValue(0)
		case 1:
			z.retValue(1)
		default:
			frame.pc = uint32(int32(frame.pc) + offset - 2)
		}
	}
}

// appendText routes decoded output: to the innermost memory stream while
// output_stream 3 is active, otherwise to the screen.
func (z *ZMachine) appendText(s string) {
	if len(z.memoryStreams) > 0 {
		stream := &z.memoryStreams[len(z.memoryStreams)-1]
		for _, r := range s {
			if zscii, ok := zstring.RuneToZscii(r); ok {
				stream.chars = append(stream.chars, uint8(zscii))
			} else {
				stream.chars = append(stream.chars, '?')
			}
		}
		return
	}

	if z.screenOutputEnabled {
		z.screen.Print(s)
	}
}

func (z *ZMachine) selectOutputStream(stream int16, tableAddr uint16) {
	switch stream {
	case 1:
		z.screenOutputEnabled = true
	case -1:
		z.screenOutputEnabled = false
	case 3:
		if len(z.memoryStreams) >= maxMemoryStreams {
			panic(zcore.Faultf(zcore.StackOverflow, "output_stream 3 nested deeper than %d", maxMemoryStreams))
		}
		z.memoryStreams = append(z.memoryStreams, memoryStream{tableAddr: uint32(tableAddr)})
	case -3:
		if len(z.memoryStreams) == 0 {
			z.warnOnce("stream3_underflow", "output_stream -3 with no open memory stream")
			return
		}
		stream := z.memoryStreams[len(z.memoryStreams)-1]
		z.memoryStreams = z.memoryStreams[:len(z.memoryStreams)-1]

		z.Core.WriteHalfWord(stream.tableAddr, uint16(len(stream.chars)))
		for i, chr := range stream.chars {
			z.Core.WriteByte(stream.tableAddr+2+uint32(i), chr)
		}
	case 2, -2, 4, -4:
		z.warnOnce("transcript_stream", "output stream %d (transcription) is not wired up", stream)
	default:
		panic(zcore.Faultf(zcore.UnknownOpcode, "output_stream %d does not exist", stream))
	}
}

// printStringAt prints the z-string at a byte address, returning bytes read.
func (z *ZMachine) printStringAt(addr uint32) uint32 {
	text, bytesRead := zstring.Decode(&z.Core, addr, 0, z.Alphabets, true)
	z.appendText(text)
	return bytesRead
}

// updateStatusBar pushes the v3 status line: current location object name on
// the left, score/moves or time on the right.
func (z *ZMachine) updateStatusBar() {
	if z.Core.Version > 3 {
		return
	}

	location := ""
	if locationId := z.readVariable(16); locationId != 0 {
		location = zobject.GetObject(locationId, &z.Core, z.Alphabets).Name
	}

	var right string
	if z.Core.StatusBarTimeBased {
		right = fmt.Sprintf("Time: %d:%02d", z.readVariable(17), z.readVariable(18))
	} else {
		right = fmt.Sprintf("Score: %d  Moves: %d", int16(z.readVariable(17)), int16(z.readVariable(18)))
	}

	z.screen.SetStatus(location, right)
}

// random implements the random opcode's three modes: positive draws
// uniformly from [1, n], zero reseeds from host entropy, negative seeds a
// deterministic sequence.
func (z *ZMachine) random(n int16) uint16 {
	switch {
	case n < 0:
		z.rng = rand.New(rand.NewSource(int64(n)))
		return 0
	case n == 0:
		z.rng = rand.New(rand.NewSource(z.screen.Entropy()))
		return 0
	default:
		return uint16(z.rng.Intn(int(n))) + 1
	}
}

// MoveObject detaches an object from its current parent and prepends it to
// the destination's child chain, preserving the forest shape.
func (z *ZMachine) MoveObject(objId uint16, newParent uint16) {
	object := zobject.GetObject(objId, &z.Core, z.Alphabets)

	z.RemoveObject(objId)

	if newParent == 0 {
		return
	}

	destinationObject := zobject.GetObject(newParent, &z.Core, z.Alphabets)
	object.SetSibling(destinationObject.Child, &z.Core)
	object.SetParent(destinationObject.Id, &z.Core)
	destinationObject.SetChild(object.Id, &z.Core)
}

// RemoveObject unlinks an object from its parent's child chain, leaving it
// a root with no sibling. Its own children come along with it.
func (z *ZMachine) RemoveObject(objId uint16) {
	object := zobject.GetObject(objId, &z.Core, z.Alphabets)

	if object.Parent != 0 {
		oldParent := zobject.GetObject(object.Parent, &z.Core, z.Alphabets)

		if oldParent.Child == object.Id {
			// First child case
			oldParent.SetChild(object.Sibling, &z.Core)
		} else {
			// Walk the sibling chain to unlink from the middle
			currObjId := oldParent.Child
			for currObjId != 0 {
				currObj := zobject.GetObject(currObjId, &z.Core, z.Alphabets)
				if currObj.Sibling == object.Id {
					currObj.SetSibling(object.Sibling, &z.Core)
					break
				}
				currObjId = currObj.Sibling
			}
		}
	}

	object.SetParent(0, &z.Core)
	object.SetSibling(0, &z.Core)
}

type token struct {
	bytes            []uint8
	startingLocation uint32
}

// Tokenise splits the text buffer at textBufferAddr into words using the
// dictionary's separators and writes the parse buffer at parseBufferAddr:
// for each word the dictionary entry address (0 when unknown), its length
// and its offset within the text buffer. A non-zero dictAddr substitutes a
// user dictionary; skipUnknown leaves parse entries of unknown words
// untouched (the tokenise opcode's flag).
func (z *ZMachine) Tokenise(textBufferAddr uint32, parseBufferAddr uint32, dictAddr uint32, skipUnknown bool) {
	dict := z.dictionary
	if dictAddr != 0 {
		dict = dictionary.ParseDictionary(dictAddr, &z.Core)
	}

	textStart := textBufferAddr + 1
	var textEnd uint32
	if z.Core.Version >= 5 {
		chrCount := uint32(z.Core.ReadByte(textStart))
		textStart++
		textEnd = textStart + chrCount
	} else {
		// v1-4 buffers are zero terminated
		textEnd = textStart
		for z.Core.ReadByte(textEnd) != 0 {
			textEnd++
		}
	}

	var tokens []token
	wordStart := textStart
	flush := func(end uint32) {
		if end > wordStart {
			tokens = append(tokens, token{bytes: z.Core.ReadSlice(wordStart, end), startingLocation: wordStart})
		}
	}

	for ptr := textStart; ptr < textEnd; ptr++ {
		chr := z.Core.ReadByte(ptr)

		if chr == ' ' { // space splits words but is never a token itself
			flush(ptr)
			wordStart = ptr + 1
		} else if dict.IsSeparator(chr) {
			// Other separators split words and are tokens in their own right
			flush(ptr)
			tokens = append(tokens, token{bytes: z.Core.ReadSlice(ptr, ptr+1), startingLocation: ptr})
			wordStart = ptr + 1
		}
	}
	flush(textEnd)

	maxTokens := z.Core.ReadByte(parseBufferAddr)
	if len(tokens) > int(maxTokens) {
		tokens = tokens[:maxTokens]
	}

	z.Core.WriteByte(parseBufferAddr+1, uint8(len(tokens)))
	entryPtr := parseBufferAddr + 2
	for _, tok := range tokens {
		dictionaryAddress := dict.FindWord(tok.bytes, z.Alphabets)

		if dictionaryAddress != 0 || !skipUnknown {
			z.Core.WriteHalfWord(entryPtr, dictionaryAddress)
			z.Core.WriteByte(entryPtr+2, uint8(len(tok.bytes)))
			z.Core.WriteByte(entryPtr+3, uint8(tok.startingLocation-textBufferAddr))
		}

		entryPtr += 4
	}
}

// read implements sread/aread: show the status bar (v3), block on the
// screen for a line, copy it into the text buffer and tokenise it.
func (z *ZMachine) read(opcode *Opcode) {
	z.updateStatusBar()

	textBufferPtr := uint32(opcode.operands[0].Value(z))
	parseBufferPtr := uint32(0)
	if len(opcode.operands) > 1 {
		parseBufferPtr = uint32(opcode.operands[1].Value(z))
	}

	rawText, exit := z.screen.ReadLine()
	if exit {
		z.halted = true
		return
	}

	rawTextBytes := []byte(strings.ToLower(rawText))
	bufferSize := uint32(z.Core.ReadByte(textBufferPtr))

	textPtr := textBufferPtr + 1
	if z.Core.Version >= 5 {
		// Skip bytes already in the buffer on v5+
		existingBytes := z.Core.ReadByte(textPtr)
		textPtr += 1 + uint32(existingBytes)
	}

	written := uint32(0)
	for _, chr := range rawTextBytes {
		if written >= bufferSize {
			break // Too many characters provided
		}

		if zstring.IsInputZscii(chr) {
			z.Core.WriteByte(textPtr+written, chr)
		} else {
			z.Core.WriteByte(textPtr+written, ' ')
		}
		written++
	}

	if z.Core.Version >= 5 {
		// v5+ stores the byte count rather than a terminator
		z.Core.WriteByte(textBufferPtr+1, uint8(written))
	} else {
		z.Core.WriteByte(textPtr+written, 0)
	}

	if parseBufferPtr != 0 {
		z.Tokenise(textBufferPtr, parseBufferPtr, 0, false)
	}

	if z.Core.Version >= 5 {
		// The terminating character, always newline for this interpreter
		z.writeVariable(z.readIncPC(z.callStack.peek()), 13)
	}
}

// readChar implements read_char: block for one character of input.
func (z *ZMachine) readChar() uint16 {
	chr, exit := z.screen.ReadChar()
	if exit {
		z.halted = true
		return 0
	}

	if chr == '\n' || chr == '\r' {
		return 13
	}
	if zscii, ok := zstring.RuneToZscii(chr); ok {
		return zscii
	}
	return '?'
}

// restart re-initializes dynamic memory and the call stack, keeping the
// machine and its screen alive.
func (z *ZMachine) restart() {
	z.Core.Restart()
	z.memoryStreams = nil
	z.screenOutputEnabled = true
	z.resetCallStack()
}
