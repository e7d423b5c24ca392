package monitor

// EventKind identifies a window-system event.
type EventKind int

const (
	EventClose EventKind = iota
	EventKey
	EventResize
	EventIconify
	EventMenu
)

// MenuItem is a menu selection.
type MenuItem int

const (
	MenuAbout MenuItem = iota
	MenuQuit
)

// Event is delivered by the window system to the loop.
type Event struct {
	Kind EventKind
	// Key is set for EventKey.
	Key rune
	// Width and Height are the new surface size in pixels for EventResize.
	Width  int
	Height int
	// Iconified is set for EventIconify.
	Iconified bool
	// Menu is set for EventMenu.
	Menu MenuItem
}

func Close() Event             { return Event{Kind: EventClose} }
func Key(r rune) Event         { return Event{Kind: EventKey, Key: r} }
func Resize(w, h int) Event    { return Event{Kind: EventResize, Width: w, Height: h} }
func Iconify(on bool) Event    { return Event{Kind: EventIconify, Iconified: on} }
func Menu(item MenuItem) Event { return Event{Kind: EventMenu, Menu: item} }
