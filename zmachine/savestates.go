package zmachine

import (
	"bytes"
	"encoding/binary"
)

// SaveState is a full snapshot of everything a story can mutate: dynamic
// memory and the call stack.
type SaveState struct {
	dynamicMemory []uint8
	callStack     CallStack
}

type InMemorySaveStateCache struct {
	saveStates []SaveState
}

func (z *ZMachine) captureState() SaveState {
	return SaveState{
		dynamicMemory: z.Core.DynamicMemory(),
		callStack:     z.callStack.copy(),
	}
}

func (z *ZMachine) restoreState(state SaveState) {
	z.Core.RestoreDynamicMemory(state.dynamicMemory)
	z.callStack = state.callStack.copy()
}

func (z *ZMachine) saveUndo() {
	z.undoStates.saveStates = append(z.undoStates.saveStates, z.captureState())
}

// restoreUndo rewinds to the most recent undo state. Returns false when
// there is nothing to rewind to.
func (z *ZMachine) restoreUndo() bool {
	if len(z.undoStates.saveStates) == 0 {
		return false
	}

	state := z.undoStates.saveStates[len(z.undoStates.saveStates)-1]
	z.undoStates.saveStates = z.undoStates.saveStates[:len(z.undoStates.saveStates)-1]
	z.restoreState(state)

	return true
}

// The save blob format is private to this interpreter: the host treats it
// as opaque bytes. A release/serial/checksum prefix stops a blob from one
// story being restored into another.
var saveMagic = [4]uint8{'b', 'z', 'S', 'V'}

func (z *ZMachine) serializeState(state SaveState) []uint8 {
	buf := &bytes.Buffer{}

	buf.Write(saveMagic[:])
	binary.Write(buf, binary.BigEndian, z.Core.ReleaseNumber) // nolint:errcheck
	buf.Write(z.Core.ReadSlice(0x12, 0x18))                   // serial code
	binary.Write(buf, binary.BigEndian, z.Core.FileChecksum)  // nolint:errcheck

	binary.Write(buf, binary.BigEndian, uint32(len(state.dynamicMemory))) // nolint:errcheck
	buf.Write(state.dynamicMemory)

	binary.Write(buf, binary.BigEndian, uint16(len(state.callStack.frames))) // nolint:errcheck
	for _, frame := range state.callStack.frames {
		binary.Write(buf, binary.BigEndian, frame.pc)                      // nolint:errcheck
		binary.Write(buf, binary.BigEndian, uint8(frame.routineType))      // nolint:errcheck
		binary.Write(buf, binary.BigEndian, uint8(frame.numValuesPassed))  // nolint:errcheck
		binary.Write(buf, binary.BigEndian, uint8(len(frame.locals)))      // nolint:errcheck
		binary.Write(buf, binary.BigEndian, frame.locals)                  // nolint:errcheck
		binary.Write(buf, binary.BigEndian, uint16(len(frame.routineStack))) // nolint:errcheck
		binary.Write(buf, binary.BigEndian, frame.routineStack)            // nolint:errcheck
	}

	return buf.Bytes()
}

// deserializeState rebuilds a SaveState from a blob, rejecting blobs from a
// different story or with a mangled layout.
func (z *ZMachine) deserializeState(blob []uint8) (SaveState, bool) {
	buf := bytes.NewReader(blob)

	var magic [4]uint8
	if _, err := buf.Read(magic[:]); err != nil || magic != saveMagic {
		return SaveState{}, false
	}

	var release uint16
	var serial [6]uint8
	var checksum uint16
	if err := binary.Read(buf, binary.BigEndian, &release); err != nil {
		return SaveState{}, false
	}
	if _, err := buf.Read(serial[:]); err != nil {
		return SaveState{}, false
	}
	if err := binary.Read(buf, binary.BigEndian, &checksum); err != nil {
		return SaveState{}, false
	}
	if release != z.Core.ReleaseNumber || checksum != z.Core.FileChecksum || !bytes.Equal(serial[:], z.Core.ReadSlice(0x12, 0x18)) {
		return SaveState{}, false
	}

	var dynLen uint32
	if err := binary.Read(buf, binary.BigEndian, &dynLen); err != nil || dynLen != uint32(z.Core.StaticMemoryBase) {
		return SaveState{}, false
	}
	dynamicMemory := make([]uint8, dynLen)
	if _, err := buf.Read(dynamicMemory); err != nil {
		return SaveState{}, false
	}

	var frameCount uint16
	if err := binary.Read(buf, binary.BigEndian, &frameCount); err != nil || frameCount == 0 {
		return SaveState{}, false
	}

	callStack := CallStack{frames: make([]CallStackFrame, frameCount)}
	for fx := range callStack.frames {
		var routineType, numValuesPassed, localCount uint8
		var stackLen uint16
		frame := &callStack.frames[fx]

		if err := binary.Read(buf, binary.BigEndian, &frame.pc); err != nil {
			return SaveState{}, false
		}
		if err := binary.Read(buf, binary.BigEndian, &routineType); err != nil {
			return SaveState{}, false
		}
		if err := binary.Read(buf, binary.BigEndian, &numValuesPassed); err != nil {
			return SaveState{}, false
		}
		if err := binary.Read(buf, binary.BigEndian, &localCount); err != nil || localCount > 15 {
			return SaveState{}, false
		}
		frame.locals = make([]uint16, localCount)
		if err := binary.Read(buf, binary.BigEndian, frame.locals); err != nil {
			return SaveState{}, false
		}
		if err := binary.Read(buf, binary.BigEndian, &stackLen); err != nil || stackLen > maxRoutineStackDepth {
			return SaveState{}, false
		}
		frame.routineStack = make([]uint16, stackLen)
		if err := binary.Read(buf, binary.BigEndian, frame.routineStack); err != nil {
			return SaveState{}, false
		}

		frame.routineType = RoutineType(routineType)
		frame.numValuesPassed = int(numValuesPassed)
	}

	return SaveState{dynamicMemory: dynamicMemory, callStack: callStack}, true
}

// save implements the save opcode in both its branch (v3) and store (v4+)
// forms. The state is captured with the PC at the save's own branch/store
// suffix, so a later restore resumes there and reports success through the
// original save instruction.
func (z *ZMachine) save() {
	frame := z.callStack.peek()
	blob := z.serializeState(z.captureState())
	ok := z.screen.Save(blob)

	if z.Core.Version <= 3 {
		z.handleBranch(frame, ok)
	} else {
		destination := z.readIncPC(frame)
		if ok {
			z.writeVariable(destination, 1)
		} else {
			z.writeVariable(destination, 0)
		}
	}
}

// restore implements the restore opcode. On success control resumes at the
// original save's branch/store suffix which reports 2 ("restored"); on
// failure the restore's own suffix reports 0.
func (z *ZMachine) restore() {
	frame := z.callStack.peek()

	state, ok := SaveState{}, false
	if blob := z.screen.Restore(); len(blob) > 0 {
		state, ok = z.deserializeState(blob)
	}

	if !ok {
		if z.Core.Version <= 3 {
			z.handleBranch(frame, false)
		} else {
			z.writeVariable(z.readIncPC(frame), 0)
		}
		return
	}

	z.restoreState(state)
	frame = z.callStack.peek()
	if z.Core.Version <= 3 {
		z.handleBranch(frame, true)
	} else {
		z.writeVariable(z.readIncPC(frame), 2)
	}
}
