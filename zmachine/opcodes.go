package zmachine

import (
	"strconv"

	"github.com/bcorrigan/zmachine/zcore"
	"github.com/bcorrigan/zmachine/zobject"
	"github.com/bcorrigan/zmachine/zscreen"
	"github.com/bcorrigan/zmachine/zstring"
	"github.com/bcorrigan/zmachine/ztable"
)

func unknownOpcode(opcode *Opcode, version uint8) zcore.Fault {
	return zcore.Faultf(zcore.UnknownOpcode, "no handler for opcode 0x%x (form %d, number %d) on version %d", opcode.opcodeByte, opcode.opcodeForm, opcode.opcodeNumber, version)
}

func (z *ZMachine) requireVersion(minimum uint8, opcode *Opcode) {
	if z.Core.Version < minimum {
		panic(unknownOpcode(opcode, z.Core.Version))
	}
}

// StepMachine fetches, decodes and executes a single instruction. Fatal
// faults propagate as panics for Run to recover.
func (z *ZMachine) StepMachine() {
	z.currentInstructionPC = z.callStack.peek().pc

	opcode := ParseOpcode(z)
	frame := z.callStack.peek()

	switch opcode.operandCount {
	case OP0:
		z.step0OP(&opcode, frame)
	case OP1:
		z.step1OP(&opcode, frame)
	case OP2:
		z.step2OP(&opcode, frame)
	case VAR:
		z.stepVAR(&opcode, frame)
	case EXT:
		z.stepEXT(&opcode, frame)
	}
}

func (z *ZMachine) step0OP(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 0: // RTRUE
		z.retValue(1)

	case 1: // RFALSE
		z.retValue(0)

	case 2: // PRINT - the z-string follows the opcode inline
		frame.pc += z.printStringAt(frame.pc)

	case 3: // PRINT_RET
		frame.pc += z.printStringAt(frame.pc)
		z.appendText("\n")
		z.retValue(1)

	case 4: // NOP

	case 5: // SAVE
		if z.Core.Version >= 5 {
			panic(unknownOpcode(opcode, z.Core.Version))
		}
		z.save()

	case 6: // RESTORE
		if z.Core.Version >= 5 {
			panic(unknownOpcode(opcode, z.Core.Version))
		}
		z.restore()

	case 7: // RESTART
		z.restart()

	case 8: // RET_POPPED
		z.retValue(frame.pop())

	case 9: // POP on v1-4, CATCH on v5+
		if z.Core.Version >= 5 {
			z.writeVariable(z.readIncPC(frame), uint16(z.callStack.depth()))
		} else {
			frame.pop()
		}

	case 10: // QUIT
		z.halted = true

	case 11: // NEWLINE
		z.appendText("\n")

	case 12: // SHOW_STATUS - a no-op beyond v3
		z.updateStatusBar()

	case 13: // VERIFY
		z.handleBranch(frame, z.Core.Checksum() == z.Core.FileChecksum)

	case 15: // PIRACY - interpreters are gullible and always branch
		z.requireVersion(5, opcode)
		z.handleBranch(frame, true)

	default:
		panic(unknownOpcode(opcode, z.Core.Version))
	}
}

func (z *ZMachine) step1OP(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 0: // JZ
		z.handleBranch(frame, opcode.operands[0].Value(z) == 0)

	case 1: // GET_SIBLING
		sibling := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets).Sibling
		z.writeVariable(z.readIncPC(frame), sibling)
		z.handleBranch(frame, sibling != 0)

	case 2: // GET_CHILD
		child := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets).Child
		z.writeVariable(z.readIncPC(frame), child)
		z.handleBranch(frame, child != 0)

	case 3: // GET_PARENT
		parent := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets).Parent
		z.writeVariable(z.readIncPC(frame), parent)

	case 4: // GET_PROP_LEN
		addr := opcode.operands[0].Value(z)
		z.writeVariable(z.readIncPC(frame), zobject.GetPropertyLength(&z.Core, uint32(addr)))

	case 5: // INC
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariableInPlace(variable, uint16(int16(z.readVariableInPlace(variable))+1))

	case 6: // DEC
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariableInPlace(variable, uint16(int16(z.readVariableInPlace(variable))-1))

	case 7: // PRINT_ADDR
		z.printStringAt(uint32(opcode.operands[0].Value(z)))

	case 8: // CALL_1S
		z.requireVersion(4, opcode)
		z.call(opcode, function)

	case 9: // REMOVE_OBJ
		z.RemoveObject(opcode.operands[0].Value(z))

	case 10: // PRINT_OBJ
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		z.appendText(obj.Name)

	case 11: // RET
		z.retValue(opcode.operands[0].Value(z))

	case 12: // JUMP
		offset := int16(opcode.operands[0].Value(z))
		frame.pc = uint32(int32(frame.pc) + int32(offset) - 2)

	case 13: // PRINT_PADDR
		z.printStringAt(z.Core.PackedStringAddress(uint32(opcode.operands[0].Value(z))))

	case 14: // LOAD
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariable(z.readIncPC(frame), z.readVariableInPlace(variable))

	case 15: // NOT on v1-4, CALL_1N on v5+
		if z.Core.Version < 5 {
			z.writeVariable(z.readIncPC(frame), ^opcode.operands[0].Value(z))
		} else {
			z.call(opcode, procedure)
		}

	default:
		panic(unknownOpcode(opcode, z.Core.Version))
	}
}

func (z *ZMachine) step2OP(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 1: // JE - variadic, branch if the first operand equals any other
		if len(opcode.operands) < 2 {
			z.warnOnce("je_one_operand", "je with a single operand can never branch")
			z.handleBranch(frame, false)
			return
		}

		a := opcode.operands[0].Value(z)
		branch := false
		for i := 1; i < len(opcode.operands); i++ {
			if a == opcode.operands[i].Value(z) {
				branch = true
			}
		}

		z.handleBranch(frame, branch)

	case 2: // JL
		a := int16(opcode.operands[0].Value(z))
		b := int16(opcode.operands[1].Value(z))
		z.handleBranch(frame, a < b)

	case 3: // JG
		a := int16(opcode.operands[0].Value(z))
		b := int16(opcode.operands[1].Value(z))
		z.handleBranch(frame, a > b)

	case 4: // DEC_CHK
		variable := uint8(opcode.operands[0].Value(z))
		value := int16(z.readVariableInPlace(variable)) - 1
		z.writeVariableInPlace(variable, uint16(value))
		z.handleBranch(frame, value < int16(opcode.operands[1].Value(z)))

	case 5: // INC_CHK
		variable := uint8(opcode.operands[0].Value(z))
		value := int16(z.readVariableInPlace(variable)) + 1
		z.writeVariableInPlace(variable, uint16(value))
		z.handleBranch(frame, value > int16(opcode.operands[1].Value(z)))

	case 6: // JIN
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		z.handleBranch(frame, obj.Parent == opcode.operands[1].Value(z))

	case 7: // TEST
		bitmap := opcode.operands[0].Value(z)
		flags := opcode.operands[1].Value(z)
		z.handleBranch(frame, bitmap&flags == flags)

	case 8: // OR
		result := opcode.operands[0].Value(z) | opcode.operands[1].Value(z)
		z.writeVariable(z.readIncPC(frame), result)

	case 9: // AND
		result := opcode.operands[0].Value(z) & opcode.operands[1].Value(z)
		z.writeVariable(z.readIncPC(frame), result)

	case 10: // TEST_ATTR
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		z.handleBranch(frame, obj.TestAttribute(opcode.operands[1].Value(z), &z.Core))

	case 11: // SET_ATTR
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		obj.SetAttribute(opcode.operands[1].Value(z), &z.Core)

	case 12: // CLEAR_ATTR
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		obj.ClearAttribute(opcode.operands[1].Value(z), &z.Core)

	case 13: // STORE - to variable 0 this replaces the top of stack
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariableInPlace(variable, opcode.operands[1].Value(z))

	case 14: // INSERT_OBJ
		z.MoveObject(opcode.operands[0].Value(z), opcode.operands[1].Value(z))

	case 15: // LOADW
		address := uint32(opcode.operands[0].Value(z) + 2*opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), z.Core.ReadHalfWord(address))

	case 16: // LOADB
		address := uint32(opcode.operands[0].Value(z) + opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), uint16(z.Core.ReadByte(address)))

	case 17: // GET_PROP
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		prop := obj.GetProperty(uint8(opcode.operands[1].Value(z)), &z.Core)

		var value uint16
		switch len(prop.Data) {
		case 1:
			value = uint16(prop.Data[0])
		case 2:
			value = uint16(prop.Data[0])<<8 | uint16(prop.Data[1])
		default:
			panic(zcore.Faultf(zcore.InvalidProperty, "get_prop of property %d on object %d which is %d bytes wide", prop.Id, obj.Id, len(prop.Data)))
		}

		z.writeVariable(z.readIncPC(frame), value)

	case 18: // GET_PROP_ADDR
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		prop := obj.GetProperty(uint8(opcode.operands[1].Value(z)), &z.Core)
		z.writeVariable(z.readIncPC(frame), uint16(prop.DataAddress))

	case 19: // GET_NEXT_PROP
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		next := obj.GetNextProperty(uint8(opcode.operands[1].Value(z)), &z.Core)
		z.writeVariable(z.readIncPC(frame), uint16(next))

	case 20: // ADD
		result := int16(opcode.operands[0].Value(z)) + int16(opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), uint16(result))

	case 21: // SUB
		result := int16(opcode.operands[0].Value(z)) - int16(opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), uint16(result))

	case 22: // MUL
		result := int16(opcode.operands[0].Value(z)) * int16(opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), uint16(result))

	case 23: // DIV - signed, truncating toward zero
		numerator := int16(opcode.operands[0].Value(z))
		denominator := int16(opcode.operands[1].Value(z))
		if denominator == 0 {
			panic(zcore.Faultf(zcore.UnknownOpcode, "division by zero"))
		}
		z.writeVariable(z.readIncPC(frame), uint16(numerator/denominator))

	case 24: // MOD
		numerator := int16(opcode.operands[0].Value(z))
		denominator := int16(opcode.operands[1].Value(z))
		if denominator == 0 {
			panic(zcore.Faultf(zcore.UnknownOpcode, "modulo by zero"))
		}
		z.writeVariable(z.readIncPC(frame), uint16(numerator%denominator))

	case 25: // CALL_2S
		z.requireVersion(4, opcode)
		z.call(opcode, function)

	case 26: // CALL_2N
		z.requireVersion(5, opcode)
		z.call(opcode, procedure)

	case 27: // SET_COLOUR
		z.requireVersion(5, opcode)
		foreground := zscreen.Color(opcode.operands[0].Value(z))
		background := zscreen.Color(opcode.operands[1].Value(z))
		z.screen.SetColor(foreground, background)

	case 28: // THROW
		z.requireVersion(5, opcode)
		value := opcode.operands[0].Value(z)
		framePointer := opcode.operands[1].Value(z)
		z.throwValue(value, framePointer)

	default:
		panic(unknownOpcode(opcode, z.Core.Version))
	}
}

func (z *ZMachine) stepVAR(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 0: // CALL / CALL_VS
		z.call(opcode, function)

	case 1: // STOREW
		address := uint32(opcode.operands[0].Value(z) + 2*opcode.operands[1].Value(z))
		z.Core.WriteHalfWord(address, opcode.operands[2].Value(z))

	case 2: // STOREB
		address := uint32(opcode.operands[0].Value(z) + opcode.operands[1].Value(z))
		z.Core.WriteByte(address, uint8(opcode.operands[2].Value(z)))

	case 3: // PUT_PROP
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		obj.SetProperty(uint8(opcode.operands[1].Value(z)), opcode.operands[2].Value(z), &z.Core)

	case 4: // SREAD / AREAD
		z.read(opcode)

	case 5: // PRINT_CHAR
		z.appendText(string(zstring.ZsciiToRune(opcode.operands[0].Value(z))))

	case 6: // PRINT_NUM
		z.appendText(strconv.Itoa(int(int16(opcode.operands[0].Value(z)))))

	case 7: // RANDOM
		result := z.random(int16(opcode.operands[0].Value(z)))
		z.writeVariable(z.readIncPC(frame), result)

	case 8: // PUSH
		frame.push(opcode.operands[0].Value(z))

	case 9: // PULL
		variable := uint8(opcode.operands[0].Value(z))
		z.writeVariableInPlace(variable, frame.pop())

	case 10: // SPLIT_WINDOW
		z.requireVersion(3, opcode)
		z.screen.SplitWindow(opcode.operands[0].Value(z))

	case 11: // SET_WINDOW
		z.requireVersion(3, opcode)
		z.screen.SetWindow(opcode.operands[0].Value(z))

	case 12: // CALL_VS2
		z.requireVersion(4, opcode)
		z.call(opcode, function)

	case 13: // ERASE_WINDOW
		z.requireVersion(4, opcode)
		z.screen.EraseWindow(int16(opcode.operands[0].Value(z)))

	case 14: // ERASE_LINE
		z.requireVersion(4, opcode)
		if opcode.operands[0].Value(z) == 1 {
			z.screen.EraseLine()
		}

	case 15: // SET_CURSOR
		z.requireVersion(4, opcode)
		line := opcode.operands[0].Value(z)
		column := opcode.operands[1].Value(z)
		z.screen.SetCursor(line, column)

	case 16: // GET_CURSOR
		z.requireVersion(4, opcode)
		tableAddr := uint32(opcode.operands[0].Value(z))
		line, column := z.screen.GetCursor()
		z.Core.WriteHalfWord(tableAddr, line)
		z.Core.WriteHalfWord(tableAddr+2, column)

	case 17: // SET_TEXT_STYLE
		z.requireVersion(4, opcode)
		z.screen.SetTextStyle(zscreen.TextStyle(opcode.operands[0].Value(z)))

	case 18: // BUFFER_MODE
		z.requireVersion(4, opcode)
		z.screen.BufferMode(opcode.operands[0].Value(z) == 1)

	case 19: // OUTPUT_STREAM
		stream := int16(opcode.operands[0].Value(z))
		tableAddr := uint16(0)
		if len(opcode.operands) > 1 {
			tableAddr = opcode.operands[1].Value(z)
		}
		z.selectOutputStream(stream, tableAddr)

	case 20: // INPUT_STREAM
		z.warnOnce("input_stream", "input_stream (command files) is not wired up")
		opcode.operands[0].Value(z)

	case 21: // SOUND_EFFECT - bleeps are out of scope, swallow the operands
		for i := range opcode.operands {
			opcode.operands[i].Value(z)
		}

	case 22: // READ_CHAR
		z.requireVersion(4, opcode)
		for i := range opcode.operands {
			opcode.operands[i].Value(z) // keyboard selector and timed input args
		}
		result := z.readChar()
		if z.halted {
			return
		}
		z.writeVariable(z.readIncPC(frame), result)

	case 23: // SCAN_TABLE
		z.requireVersion(4, opcode)
		test := opcode.operands[0].Value(z)
		tableAddr := uint32(opcode.operands[1].Value(z))
		length := opcode.operands[2].Value(z)
		form := uint16(0x82) // default: words, 2 byte fields
		if len(opcode.operands) > 3 {
			form = opcode.operands[3].Value(z)
		}

		addr := ztable.ScanTable(&z.Core, test, tableAddr, length, form)
		z.writeVariable(z.readIncPC(frame), uint16(addr))
		z.handleBranch(frame, addr != 0)

	case 24: // NOT
		z.requireVersion(5, opcode)
		z.writeVariable(z.readIncPC(frame), ^opcode.operands[0].Value(z))

	case 25: // CALL_VN
		z.requireVersion(5, opcode)
		z.call(opcode, procedure)

	case 26: // CALL_VN2
		z.requireVersion(5, opcode)
		z.call(opcode, procedure)

	case 27: // TOKENISE
		z.requireVersion(5, opcode)
		textBuffer := uint32(opcode.operands[0].Value(z))
		parseBuffer := uint32(opcode.operands[1].Value(z))
		dictAddr := uint32(0)
		skipUnknown := false
		if len(opcode.operands) > 2 {
			dictAddr = uint32(opcode.operands[2].Value(z))
		}
		if len(opcode.operands) > 3 {
			skipUnknown = opcode.operands[3].Value(z) != 0
		}
		z.Tokenise(textBuffer, parseBuffer, dictAddr, skipUnknown)

	case 28: // ENCODE_TEXT
		z.requireVersion(5, opcode)
		textAddr := uint32(opcode.operands[0].Value(z))
		length := uint32(opcode.operands[1].Value(z))
		from := uint32(opcode.operands[2].Value(z))
		destAddr := uint32(opcode.operands[3].Value(z))

		raw := z.Core.ReadSlice(textAddr+from, textAddr+from+length)
		encoded := zstring.Encode([]rune(string(raw)), z.Core.Version, z.Alphabets)
		for i, b := range encoded {
			z.Core.WriteByte(destAddr+uint32(i), b)
		}

	case 29: // COPY_TABLE
		z.requireVersion(5, opcode)
		first := opcode.operands[0].Value(z)
		second := opcode.operands[1].Value(z)
		size := int16(opcode.operands[2].Value(z))
		ztable.CopyTable(&z.Core, first, second, size)

	case 30: // PRINT_TABLE
		z.requireVersion(5, opcode)
		tableAddr := uint32(opcode.operands[0].Value(z))
		width := opcode.operands[1].Value(z)
		height := uint16(1)
		skip := uint16(0)
		if len(opcode.operands) > 2 {
			height = opcode.operands[2].Value(z)
		}
		if len(opcode.operands) > 3 {
			skip = opcode.operands[3].Value(z)
		}
		z.appendText(ztable.PrintTable(&z.Core, tableAddr, width, height, skip))

	case 31: // CHECK_ARG_COUNT
		z.requireVersion(5, opcode)
		arg := opcode.operands[0].Value(z)
		z.handleBranch(frame, arg <= uint16(frame.numValuesPassed))

	default:
		panic(unknownOpcode(opcode, z.Core.Version))
	}
}

func (z *ZMachine) stepEXT(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 0: // SAVE - optional table operands (partial saves) are not supported
		if len(opcode.operands) > 0 {
			z.warnOnce("partial_save", "save with a table region is not supported, saving the full state")
		}
		z.save()

	case 1: // RESTORE
		z.restore()

	case 2: // LOG_SHIFT
		number := opcode.operands[0].Value(z)
		places := int16(opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), logicalShift(number, places))

	case 3: // ART_SHIFT
		number := int16(opcode.operands[0].Value(z))
		places := int16(opcode.operands[1].Value(z))
		z.writeVariable(z.readIncPC(frame), arithmeticShift(number, places))

	case 4: // SET_FONT - only the normal font exists, report it as previous
		font := opcode.operands[0].Value(z)
		previous := uint16(1)
		if font != 0 && font != 1 && font != 4 {
			previous = 0 // requested font unavailable
		}
		z.writeVariable(z.readIncPC(frame), previous)

	case 9: // SAVE_UNDO
		z.saveUndo()
		z.writeVariable(z.readIncPC(frame), 1)

	case 10: // RESTORE_UNDO
		if !z.restoreUndo() {
			z.writeVariable(z.readIncPC(frame), 0)
			return
		}
		// Restored state resumes at the save_undo's store byte, which
		// reports 2 for "back here again"
		z.writeVariable(z.readIncPC(z.callStack.peek()), 2)

	case 11: // PRINT_UNICODE
		z.appendText(string(rune(opcode.operands[0].Value(z))))

	case 12: // CHECK_UNICODE - claim print and input for everything
		opcode.operands[0].Value(z)
		z.writeVariable(z.readIncPC(frame), 3)

	default:
		panic(unknownOpcode(opcode, z.Core.Version))
	}
}

func logicalShift(number uint16, places int16) uint16 {
	switch {
	case places >= 16 || places <= -16:
		return 0
	case places >= 0:
		return number << places
	default:
		return number >> -places
	}
}

func arithmeticShift(number int16, places int16) uint16 {
	switch {
	case places >= 16:
		return 0
	case places >= 0:
		return uint16(number << places)
	case places <= -16:
		return uint16(number >> 15)
	default:
		return uint16(number >> -places)
	}
}
