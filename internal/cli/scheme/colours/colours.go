package colours

import "github.com/fatih/color"

// Colour scheme for the terminal player
var (
	Title   = color.New(color.FgCyan, color.Bold)
	Media   = color.New(color.FgMagenta)
	Option  = color.New(color.FgGreen, color.Bold)
	Prompt  = color.New(color.FgYellow, color.Bold)
	Error   = color.New(color.FgRed, color.Bold)
	Success = color.New(color.FgGreen)
	Info    = color.New(color.FgBlue)
	Warning = color.New(color.FgYellow)
	Muted   = color.New(color.FgHiBlack)
)
