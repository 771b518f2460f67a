package zmachine

import (
	"fmt"

	"github.com/bcorrigan/zmachine/zcore"
)

// RuntimeError is a fatal fault surfaced from the run loop, carrying the PC
// of the instruction that tripped it. The machine makes no attempt to
// continue past one.
type RuntimeError struct {
	Kind   zcore.FaultKind
	PC     uint32
	Detail string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s at pc 0x%x: %s", e.Kind, e.PC, e.Detail)
}
