// Package server implements the shared bulletin-board state: the group
// directory, per-group message boards, and the join-point bookkeeping that
// drives message visibility.
package server

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/goboard/internal/store"
)

// DefaultGroup is the group every client can reach with the short-form
// commands (join, post, users, leave, message). It always exists.
const DefaultGroup = "default"

// catchUpWindow is how many messages posted immediately before a member's
// join remain readable to them.
const catchUpWindow = 2

// Message is an immutable board entry. MembersAtPost is a snapshot of the
// group's member set at the instant of posting, never a live reference.
type Message struct {
	ID            int
	Sender        string
	Date          string
	Subject       string
	Body          string
	MembersAtPost []string
}

// State owns the group directory, the board store, and the join points.
// Each exported method takes the state lock, performs one atomic change,
// and returns copies; callers never see live internal slices or maps.
type State struct {
	mu         sync.Mutex
	groups     map[string][]string
	boards     map[string][]Message
	joinPoints map[string]map[string]int
	order      []string
}

// NewState creates an empty state holding only the default group.
func NewState() *State {
	s := &State{
		groups:     make(map[string][]string),
		boards:     make(map[string][]Message),
		joinPoints: make(map[string]map[string]int),
	}
	s.ensureGroup(DefaultGroup)
	return s
}

// NewStateFromSnapshot restores state saved by a previous run. Message ids
// are re-derived from the numeric snapshot keys in ascending order, so a
// restored board keeps the gapless 0..n-1 numbering. Join points are not
// part of the persisted format; restored members start with join point 0
// and may read their groups' full history.
func NewStateFromSnapshot(snap store.Snapshot) (*State, error) {
	s := NewState()

	for _, name := range sortedKeys(snap.Groups) {
		s.ensureGroup(name)
		s.groups[name] = append([]string(nil), snap.Groups[name]...)
	}

	for _, name := range sortedKeys(snap.Boards) {
		s.ensureGroup(name)
		entries := snap.Boards[name]

		ids := make([]int, 0, len(entries))
		for key := range entries {
			id, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("board %q: bad message id %q: %w", name, key, err)
			}
			ids = append(ids, id)
		}
		sort.Ints(ids)

		board := make([]Message, 0, len(ids))
		for i, id := range ids {
			m := entries[strconv.Itoa(id)]
			board = append(board, Message{
				ID:            i,
				Sender:        m.Sender,
				Date:          m.Date,
				Subject:       m.Subject,
				Body:          m.Body,
				MembersAtPost: append([]string(nil), m.MembersAtPost...),
			})
		}
		s.boards[name] = board
	}

	return s, nil
}

// Snapshot copies the group directory and boards into the persisted shape.
func (s *State) Snapshot() store.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := store.EmptySnapshot()
	for name, members := range s.groups {
		snap.Groups[name] = append([]string(nil), members...)
	}
	for name, board := range s.boards {
		entries := make(map[string]store.BoardMessage, len(board))
		for _, m := range board {
			entries[strconv.Itoa(m.ID)] = store.BoardMessage{
				Sender:        m.Sender,
				Date:          m.Date,
				Subject:       m.Subject,
				Body:          m.Body,
				MembersAtPost: append([]string(nil), m.MembersAtPost...),
			}
		}
		snap.Boards[name] = entries
	}
	return snap
}

// ConnectJoin enrolls a connecting client into its handshake group, creating
// the group if needed, and makes sure every known group has a board.
func (s *State) ConnectJoin(username, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureGroup(group)
	if !lo.Contains(s.groups[group], username) {
		s.setJoinPoint(group, username, len(s.boards[group]))
		s.groups[group] = append(s.groups[group], username)
	}
}

// GroupSample returns up to max group names in creation order and whether
// more groups exist beyond the sample. Used for the handshake reply.
func (s *State) GroupSample(max int) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) <= max {
		return append([]string(nil), s.order...), false
	}
	return append([]string(nil), s.order[:max]...), true
}

// JoinOutcome classifies the result of a join request.
type JoinOutcome int

const (
	// JoinedNewGroup means the group did not exist and was created with the
	// caller as its sole member.
	JoinedNewGroup JoinOutcome = iota
	// AlreadyMember means the caller was a member already; nothing changed.
	AlreadyMember
	// JoinedExisting means the caller was added to an existing group.
	JoinedExisting
)

// JoinResult describes a completed join. Members holds the group's member
// list including the caller, Notify the members who should receive the
// join notice, and RecentIDs up to the two newest message ids on the board.
type JoinResult struct {
	Outcome   JoinOutcome
	Members   []string
	Notify    []string
	RecentIDs []int
}

// Join adds username to group, creating the group (and an empty board) on
// first reference. The caller's join point is set to the board size at this
// instant, which anchors the catch-up window.
func (s *State) Join(username, group string) JoinResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group]; !ok {
		s.ensureGroup(group)
		s.groups[group] = []string{username}
		s.setJoinPoint(group, username, 0)
		return JoinResult{Outcome: JoinedNewGroup}
	}

	if lo.Contains(s.groups[group], username) {
		return JoinResult{Outcome: AlreadyMember}
	}

	notify := append([]string(nil), s.groups[group]...)
	s.setJoinPoint(group, username, len(s.boards[group]))
	s.groups[group] = append(s.groups[group], username)

	board := s.boards[group]
	var recent []int
	for i := maxInt(0, len(board)-catchUpWindow); i < len(board); i++ {
		recent = append(recent, board[i].ID)
	}

	return JoinResult{
		Outcome:   JoinedExisting,
		Members:   append([]string(nil), s.groups[group]...),
		Notify:    notify,
		RecentIDs: recent,
	}
}

// Post appends a message to the group's board. The id equals the board size
// at the moment of posting; assignment and append happen under the lock, so
// ids stay gapless under concurrent posters. It returns the new id and the
// member set to notify (the full set; the hub excludes the acting session).
func (s *State) Post(username, group, subject, body string) (int, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[group]
	if !ok {
		return 0, nil, ErrUnknownGroup
	}
	if !lo.Contains(members, username) {
		return 0, nil, ErrNotMember
	}

	id := len(s.boards[group])
	s.boards[group] = append(s.boards[group], Message{
		ID:            id,
		Sender:        username,
		Date:          time.Now().Format(time.DateOnly),
		Subject:       subject,
		Body:          body,
		MembersAtPost: append([]string(nil), members...),
	})

	return id, append([]string(nil), members...), nil
}

// Leave removes username from the group's member set and returns the
// remaining members to notify. The group and its board survive even when
// the last member leaves; posted messages are never altered.
func (s *State) Leave(username, group string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[group]
	if !ok {
		return nil, ErrUnknownGroup
	}
	if !lo.Contains(members, username) {
		return nil, ErrNotMember
	}

	s.groups[group] = lo.Without(members, username)
	return append([]string(nil), s.groups[group]...), nil
}

// Read looks up a message and applies the visibility rule: the caller may
// read it if they were a member when it was posted, or if the id falls
// within the catch-up window relative to their most recent join.
func (s *State) Read(username, group string, id int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[group]
	if !ok {
		return Message{}, ErrUnknownGroup
	}
	if !lo.Contains(members, username) {
		return Message{}, ErrNotMember
	}

	board := s.boards[group]
	if id < 0 || id >= len(board) {
		return Message{}, ErrMessageNotFound
	}

	msg := board[id]
	if !lo.Contains(msg.MembersAtPost, username) && id < s.joinPoint(group, username)-catchUpWindow {
		return Message{}, ErrMessageTooOld
	}

	msg.MembersAtPost = append([]string(nil), msg.MembersAtPost...)
	return msg, nil
}

// Members returns a copy of the group's member list.
func (s *State) Members(group string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[group]
	if !ok {
		return nil, ErrUnknownGroup
	}
	return append([]string(nil), members...), nil
}

// MembersForMember is Members restricted to callers who belong to the group.
func (s *State) MembersForMember(username, group string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[group]
	if !ok {
		return nil, ErrUnknownGroup
	}
	if !lo.Contains(members, username) {
		return nil, ErrNotMember
	}
	return append([]string(nil), members...), nil
}

// Groups lists every group name in creation order.
func (s *State) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// ensureGroup registers a group name and its board. Callers must hold s.mu.
func (s *State) ensureGroup(name string) {
	if _, ok := s.groups[name]; !ok {
		s.groups[name] = nil
		s.order = append(s.order, name)
	}
	if _, ok := s.boards[name]; !ok {
		s.boards[name] = nil
	}
}

func (s *State) setJoinPoint(group, username string, at int) {
	if s.joinPoints[group] == nil {
		s.joinPoints[group] = make(map[string]int)
	}
	s.joinPoints[group][username] = at
}

// joinPoint defaults to 0 for members with no recorded join, such as members
// restored from a snapshot; they may read the entire board.
func (s *State) joinPoint(group, username string) int {
	return s.joinPoints[group][username]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
