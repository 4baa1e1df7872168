// Package nav tracks the folder the user is currently browsing and the
// history that makes "up" navigation work.
package nav

// RootPath is the display path of the root state.
const RootPath = "/"

// State is an immutable snapshot of a navigation position. FolderID nil
// means the root of the namespace.
type State struct {
	FolderID *int64
	Path     string
}

// Root returns the canonical root state.
func Root() State {
	return State{FolderID: nil, Path: RootPath}
}

// Navigator is a LIFO history of navigation states plus the current
// position. The zero value is not usable; call New.
type Navigator struct {
	current State
	history []State
}

// New returns a Navigator positioned at the root with empty history.
func New() *Navigator {
	return &Navigator{current: Root()}
}

// Current returns the current navigation state.
func (n *Navigator) Current() State {
	return n.current
}

// Depth returns the number of states on the history stack.
func (n *Navigator) Depth() int {
	return len(n.history)
}

// NavigateToFolder pushes the current state onto history and moves into
// the target folder.
func (n *Navigator) NavigateToFolder(folderID *int64, path string) {
	n.history = append(n.history, n.current)
	n.current = State{FolderID: folderID, Path: path}
}

// NavigateToParent pops the most recent state off history. With no
// history it falls back to the canonical root state; root is the only
// exit from an empty stack.
func (n *Navigator) NavigateToParent() State {
	if len(n.history) == 0 {
		n.current = Root()
		return n.current
	}
	n.current = n.history[len(n.history)-1]
	n.history = n.history[:len(n.history)-1]
	return n.current
}

// Reset drops all history and returns to the root state.
func (n *Navigator) Reset() {
	n.history = n.history[:0]
	n.current = Root()
}
