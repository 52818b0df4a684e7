// Package server translates framed client requests into board-state
// operations and notification fan-out.
package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const helpText = "A %connect command followed by the address and port number of a running bulletin board server to connect to.\n" +
	"A %join command to join the single message board.\n" +
	"A %post command followed by the message subject and the message content or main body to post a message to the board.\n" +
	"A %users command to retrieve a list of users in the same group.\n" +
	"A %leave command to leave the group.\n" +
	"A %message command followed by message ID to retrieve the content of the message.\n" +
	"An %exit command to disconnect from the server and exit the client program.\n" +
	"A %groups command to retrieve a list of all groups that can be joined.\n" +
	"A %groupjoin command followed by the group name to join a specific group.\n" +
	"A %grouppost command followed by the group name, the message subject, and the message content or main body to post a message to a message board owned by a specific group.\n" +
	"A %groupusers command followed by the group name to retrieve a list of users in the given group.\n" +
	"A %groupleave command followed by the group name to leave a specific group.\n" +
	"A %groupmessage command followed by the group name and message ID to retrieve the content of the message posted earlier on a message board owned by a specific group."

const farewellText = "You have been disconnected from the server."

// dispatch classifies one framed request and executes it, returning the
// single response frame and whether the session should terminate. Parameter
// validation failures produce an error response and never terminate the
// session; only the exit command does.
func (s *Session) dispatch(raw string) (string, bool) {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return "Invalid command.", false
	}

	verb, params := tokens[0], tokens[1:]
	switch verb {
	case "help":
		return helpText, false

	case "join":
		return s.handleJoin(DefaultGroup), false

	case "groupjoin":
		if len(params) != 1 {
			return "Invalid groupjoin command. Please supply a group name to join.", false
		}
		return s.handleJoin(params[0]), false

	case "post":
		if len(params) < 2 {
			return "Error: Missing subject or message.", false
		}
		return s.handlePost(DefaultGroup, params[0], strings.Join(params[1:], " ")), false

	case "grouppost":
		if len(params) < 3 {
			return "Error: Missing group, subject, or message.", false
		}
		return s.handlePost(params[0], params[1], strings.Join(params[2:], " ")), false

	case "users":
		return s.handleUsers(DefaultGroup, false), false

	case "groupusers":
		if len(params) != 1 {
			return "Error: Invalid group name.", false
		}
		return s.handleUsers(params[0], true), false

	case "leave":
		return s.handleLeave(DefaultGroup), false

	case "groupleave":
		if len(params) != 1 {
			return "Error: Invalid group name.", false
		}
		return s.handleLeave(params[0]), false

	case "message":
		if len(params) != 1 {
			return "Error: Missing message ID.", false
		}
		return s.handleRead(DefaultGroup, params[0]), false

	case "groupmessage":
		if len(params) != 2 {
			return "Error: Missing group ID or message ID.", false
		}
		return s.handleRead(params[0], params[1]), false

	case "groups":
		return "Available groups: " + strings.Join(s.hub.state.Groups(), ", "), false

	case "exit":
		return farewellText, true

	default:
		return "Invalid command.", false
	}
}

func (s *Session) handleJoin(group string) string {
	res := s.hub.state.Join(s.username, group)

	switch res.Outcome {
	case JoinedNewGroup:
		return fmt.Sprintf("Added to new group '%s'.", group)

	case AlreadyMember:
		return fmt.Sprintf("Already part of group '%s'.", group)

	default:
		s.hub.NotifyUsers(res.Notify, s, fmt.Sprintf("New member %s has joined group '%s'.", s.username, group))

		var history strings.Builder
		if len(res.RecentIDs) > 0 {
			history.WriteString("\nPrevious messages:")
			for _, id := range res.RecentIDs {
				fmt.Fprintf(&history, "\nMessage ID: %d", id)
			}
		} else {
			history.WriteString("\nNo previous messages.")
		}

		return fmt.Sprintf("Added to group '%s'.\nCurrent Members: %s%s", group, strings.Join(res.Members, ", "), history.String())
	}
}

func (s *Session) handlePost(group, subject, body string) string {
	id, members, err := s.hub.state.Post(s.username, group, subject, body)
	if err != nil {
		return s.errorResponse(err, group)
	}

	notice := fmt.Sprintf("New message posted in %s by %s with ID#%d.", group, s.username, id)
	s.hub.NotifyUsers(members, s, notice)
	return notice
}

func (s *Session) handleUsers(group string, membersOnly bool) string {
	var members []string
	var err error
	if membersOnly {
		members, err = s.hub.state.MembersForMember(s.username, group)
	} else {
		members, err = s.hub.state.Members(group)
	}
	if err != nil {
		return s.errorResponse(err, group)
	}
	return fmt.Sprintf("Users in '%s': %s", group, strings.Join(members, ", "))
}

func (s *Session) handleLeave(group string) string {
	remaining, err := s.hub.state.Leave(s.username, group)
	if err != nil {
		return s.errorResponse(err, group)
	}

	s.hub.NotifyUsers(remaining, s, fmt.Sprintf("User %s has left group '%s'.", s.username, group))
	return fmt.Sprintf("You have left group '%s'.", group)
}

func (s *Session) handleRead(group, rawID string) string {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return "Error: Invalid message ID."
	}

	msg, err := s.hub.state.Read(s.username, group, id)
	if err != nil {
		return s.errorResponse(err, group)
	}
	return fmt.Sprintf("%s on %s (%s): %s", msg.Sender, msg.Date, msg.Subject, msg.Body)
}

// errorResponse maps an operation error to its response frame. NotFound and
// the catch-up (visibility) failure deliberately read differently so a
// client can tell them apart.
func (s *Session) errorResponse(err error, group string) string {
	switch {
	case errors.Is(err, ErrUnknownGroup):
		return "Error: Invalid group name."
	case errors.Is(err, ErrNotMember):
		return fmt.Sprintf("Error: Client not member of group '%s'.", group)
	case errors.Is(err, ErrMessageNotFound):
		return "Error: Message ID does not exist."
	case errors.Is(err, ErrMessageTooOld):
		return "Error: You are trying to access a message from too far in the past from when you joined the current group. (Limit: 2)"
	default:
		s.log.Error().Err(err).Msg("unexpected command error")
		return "Error: Internal server error."
	}
}
