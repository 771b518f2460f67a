package zmachine

import "github.com/bcorrigan/zmachine/zcore"

// Each frame's routine stack is capped to keep a looping story from eating
// the host's memory.
const maxRoutineStackDepth = 1024
const maxCallDepth = 1024

type RoutineType int

const (
	function  RoutineType = iota // result is stored on return
	procedure                    // result is discarded
	interrupt                    // called outside the normal instruction flow
)

type CallStackFrame struct {
	pc              uint32
	routineStack    []uint16 // the evaluation stack, variable 0
	locals          []uint16
	routineType     RoutineType
	numValuesPassed int // for check_arg_count, v5+
}

func (f *CallStackFrame) push(i uint16) {
	if len(f.routineStack) >= maxRoutineStackDepth {
		panic(zcore.Faultf(zcore.StackOverflow, "routine stack exceeded %d words", maxRoutineStackDepth))
	}
	f.routineStack = append(f.routineStack, i)
}

func (f *CallStackFrame) pop() uint16 {
	if len(f.routineStack) == 0 {
		panic(zcore.Faultf(zcore.StackUnderflow, "attempt to pop from empty routine stack"))
	}
	i := f.routineStack[len(f.routineStack)-1]
	f.routineStack = f.routineStack[:len(f.routineStack)-1]
	return i
}

func (f *CallStackFrame) peek() uint16 {
	if len(f.routineStack) == 0 {
		panic(zcore.Faultf(zcore.StackUnderflow, "attempt to peek at empty routine stack"))
	}
	return f.routineStack[len(f.routineStack)-1]
}

// replaceTop is used by indirect references to variable 0, which write the
// top of stack in place rather than pushing.
func (f *CallStackFrame) replaceTop(i uint16) {
	if len(f.routineStack) == 0 {
		panic(zcore.Faultf(zcore.StackUnderflow, "attempt to replace top of empty routine stack"))
	}
	f.routineStack[len(f.routineStack)-1] = i
}

type CallStack struct {
	frames []CallStackFrame
}

func (s *CallStack) push(frame CallStackFrame) {
	if len(s.frames) >= maxCallDepth {
		panic(zcore.Faultf(zcore.StackOverflow, "call stack exceeded %d frames", maxCallDepth))
	}
	s.frames = append(s.frames, frame)
}

// pop - the bottom frame is the initial execution context and is not
// returnable; popping it is the caller's bug.
func (s *CallStack) pop() CallStackFrame {
	if len(s.frames) <= 1 {
		panic(zcore.Faultf(zcore.BadReturn, "return from the initial execution context"))
	}
	stackSize := len(s.frames)
	frame := s.frames[stackSize-1]
	s.frames = s.frames[:stackSize-1]

	return frame
}

func (s *CallStack) peek() *CallStackFrame {
	return &s.frames[len(s.frames)-1]
}

func (s *CallStack) depth() int {
	return len(s.frames)
}

// unwindTo drops frames until depth frames remain, for throw.
func (s *CallStack) unwindTo(depth int) {
	if depth < 1 || depth > len(s.frames) {
		panic(zcore.Faultf(zcore.BadReturn, "throw to invalid frame %d of %d", depth, len(s.frames)))
	}
	s.frames = s.frames[:depth]
}

// copy - Deep copy of a call stack and all frames
func (s *CallStack) copy() CallStack {
	callStack := CallStack{
		frames: make([]CallStackFrame, len(s.frames)),
	}

	for fx, frame := range s.frames {
		copiedFrame := CallStackFrame{
			pc:              frame.pc,
			routineType:     frame.routineType,
			numValuesPassed: frame.numValuesPassed,
			routineStack:    make([]uint16, len(frame.routineStack)),
			locals:          make([]uint16, len(frame.locals)),
		}

		copy(copiedFrame.routineStack, frame.routineStack)
		copy(copiedFrame.locals, frame.locals)

		callStack.frames[fx] = copiedFrame
	}

	return callStack
}
