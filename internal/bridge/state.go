package bridge

// MenuState is the context-menu lifecycle state.
type MenuState int

const (
	NoMenu MenuState = iota
	MenuRequested
	MenuShown
	Dismissed
	ActionSelected
)

func (s MenuState) String() string {
	switch s {
	case NoMenu:
		return "no-menu"
	case MenuRequested:
		return "requested"
	case MenuShown:
		return "shown"
	case Dismissed:
		return "dismissed"
	case ActionSelected:
		return "action-selected"
	default:
		return "unknown"
	}
}
