package mirror

import "fmt"

// EventKind is the kind of change reported for a path
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventModified
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ChangeEvent is a normalized filesystem change under the source tree
type ChangeEvent struct {
	Kind  EventKind
	Path  string
	IsDir bool
}

// Subject returns "directory" or "file" as used in audit lines
func (e ChangeEvent) Subject() string {
	if e.IsDir {
		return "directory"
	}
	return "file"
}

func (e ChangeEvent) String() string {
	return fmt.Sprintf("%s %s %s", e.Kind, e.Subject(), e.Path)
}
