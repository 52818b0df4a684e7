// Package store implements the persistence gateway for the bulletin board.
// It loads the group directory and message boards at startup and writes them
// back at shutdown. Two backends are provided: flat JSON files and BadgerDB.
package store

// BoardMessage is the serialized form of a posted message. Field names match
// the on-disk format, which keeps snapshots readable and interchangeable
// between backends.
type BoardMessage struct {
	Sender        string   `json:"sender"`
	Date          string   `json:"date"`
	Subject       string   `json:"subject"`
	Body          string   `json:"message"`
	MembersAtPost []string `json:"users_at_time_of_posting"`
}

// Snapshot is a point-in-time copy of the server's shared state. Boards are
// keyed by group name and then by message id serialized as a decimal string.
type Snapshot struct {
	Groups map[string][]string
	Boards map[string]map[string]BoardMessage
}

// EmptySnapshot returns a snapshot with initialized, empty maps.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Groups: make(map[string][]string),
		Boards: make(map[string]map[string]BoardMessage),
	}
}

// Store is the persistence gateway contract. Load returns the most recently
// saved snapshot, or an empty one if nothing has been saved yet. Both Load
// and Save errors are fatal to the caller's startup/shutdown phase; the
// server must not proceed with partial state.
type Store interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
	Close() error
}
