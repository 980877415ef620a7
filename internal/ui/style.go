package ui

import "github.com/gdamore/tcell/v2"

var (
	styleNormal   = tcell.StyleDefault
	styleDim      = tcell.StyleDefault.Dim(true)
	styleHeader   = tcell.StyleDefault.Reverse(true).Bold(true)
	styleStatus   = tcell.StyleDefault.Reverse(true)
	styleSelected = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorTeal)
	styleSplash   = tcell.StyleDefault.Bold(true)
	styleMenu     = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
	styleMenuSel  = tcell.StyleDefault.Foreground(tcell.ColorNavy).Background(tcell.ColorWhite)
)
