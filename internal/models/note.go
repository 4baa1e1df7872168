package models

import (
	"strings"
	"time"
)

// noteTitleLimit caps titles derived from note content.
const noteTitleLimit = 50

// Note is a free-form text note. Notes live only in the owner's private
// namespace; RemoteID empty means the note has not reached the cloud.
type Note struct {
	LocalID int64 `json:"local_id"`

	Title   string `json:"title"`
	Content string `json:"content"`

	// Color selects the display card color; zero is the default.
	Color int `json:"color"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`

	OwnerUserID string `json:"owner_user_id"`
	RemoteID    string `json:"remote_id"`
}

// NewNote creates a note with creation timestamps stamped. An empty
// title is derived from the content's first line.
func NewNote(title, content string) *Note {
	now := time.Now()
	return &Note{
		Title:      DeriveNoteTitle(title, content),
		Content:    content,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// SetTitle changes the title and advances ModifiedAt.
func (n *Note) SetTitle(title string) {
	n.Title = title
	n.Touch()
}

// SetContent changes the content and advances ModifiedAt.
func (n *Note) SetContent(content string) {
	n.Content = content
	n.Touch()
}

// Touch advances ModifiedAt.
func (n *Note) Touch() {
	n.ModifiedAt = time.Now()
}

// IsPendingSync reports whether the note has not yet been confirmed
// against the remote metadata store.
func (n *Note) IsPendingSync() bool {
	return n.RemoteID == ""
}

// DeriveNoteTitle returns title unchanged when set; otherwise the first
// line of content, truncated with an ellipsis past the display limit.
func DeriveNoteTitle(title, content string) string {
	if title != "" {
		return title
	}
	line := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		line = content[:idx]
	}
	if len(line) > noteTitleLimit {
		return line[:noteTitleLimit] + "..."
	}
	return line
}
