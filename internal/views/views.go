// Package views declares the default set of auto-refreshing debugger views.
package views

import "github.com/gdbdeck/gdx/internal/annotate"

const (
	// Breakpoints lists the debugger's breakpoints and watchpoints.
	Breakpoints annotate.ViewID = "breakpoints"
	// Stack shows the call stack of the selected thread.
	Stack annotate.ViewID = "stack"
	// Registers shows the machine register file.
	Registers annotate.ViewID = "registers"
	// Locals shows the local variables of the selected frame.
	Locals annotate.ViewID = "locals"
	// Disassembly shows the instructions around the current PC.
	Disassembly annotate.ViewID = "disassembly"
)

// DefaultPrefix is prepended to engine-issued commands so the debugger
// keeps them out of the user's command history.
const DefaultPrefix = "server "

// Defaults returns the standard view descriptors. The breakpoint list is
// invalidated explicitly by the debugger; the frame-dependent views are
// invalidated whenever the frame stack changes. Each command carries the
// given prefix.
func Defaults(prefix string) []annotate.ViewDescriptor {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return []annotate.ViewDescriptor{
		{
			ID:          Breakpoints,
			Command:     prefix + "info breakpoints",
			Annotations: []string{"breakpoints-invalid"},
		},
		{
			ID:          Stack,
			Command:     prefix + "backtrace",
			Annotations: []string{"frames-invalid"},
		},
		{
			ID:          Registers,
			Command:     prefix + "info registers",
			Annotations: []string{"frames-invalid"},
		},
		{
			ID:          Locals,
			Command:     prefix + "info locals",
			Annotations: []string{"frames-invalid"},
		},
		{
			ID:          Disassembly,
			Command:     prefix + "disassemble",
			Annotations: []string{"frames-invalid"},
		},
	}
}

// Register adds every default view to the session.
func Register(session *annotate.Session, prefix string) error {
	for _, desc := range Defaults(prefix) {
		if err := session.RegisterView(desc); err != nil {
			return err
		}
	}
	return nil
}
