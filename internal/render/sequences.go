package render

import "github.com/charmbracelet/x/ansi"

// SetupSequences returns the bytes a client terminal needs before the first
// frame: alternate screen, click/drag/motion mouse reporting in SGR format,
// focus events and bracketed paste, with the cursor hidden.
func SetupSequences() []byte {
	var b []byte
	b = append(b, ansi.SetModeAltScreenSaveCursor...)
	b = append(b, ansi.SetModeMouseNormal...)
	b = append(b, ansi.SetModeMouseButtonEvent...)
	b = append(b, ansi.SetModeMouseAnyEvent...)
	b = append(b, ansi.SetModeMouseExtSgr...)
	b = append(b, ansi.SetModeFocusEvent...)
	b = append(b, ansi.SetModeBracketedPaste...)
	b = append(b, ansi.HideCursor...)
	return b
}

// TeardownSequences undoes SetupSequences in reverse order, resets SGR and
// leaves the alternate screen last so the user's shell is restored intact.
func TeardownSequences() []byte {
	var b []byte
	b = append(b, ansi.ShowCursor...)
	b = append(b, ansi.ResetModeBracketedPaste...)
	b = append(b, ansi.ResetModeFocusEvent...)
	b = append(b, ansi.ResetModeMouseExtSgr...)
	b = append(b, ansi.ResetModeMouseAnyEvent...)
	b = append(b, ansi.ResetModeMouseButtonEvent...)
	b = append(b, ansi.ResetModeMouseNormal...)
	b = append(b, ansi.NewStyle().Reset().String()...)
	b = append(b, ansi.ResetModeAltScreenSaveCursor...)
	return b
}
