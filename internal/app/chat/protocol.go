/*
Package chat contains the core of the server: the per-connection protocol
state machine, the live-handler registry, and the broadcast fan-out.

This file defines the wire protocol vocabulary. The protocol is
newline-delimited UTF-8 text: clients send single-line commands, the
server answers with an enumerated response token followed by payload
lines, and multi-line payloads are terminated by the literal line END.
Parsing never fails; unrecognized input maps to the Unknown/Error
variants.
*/
package chat

import "strings"

// EndMarker terminates every multi-line server response.
const EndMarker = "END"

// Command is the closed set of client commands. Anything unrecognized
// parses to CmdUnknown.
type Command int

const (
	CmdUnknown Command = iota
	CmdToken
	CmdLogin
	CmdRegister
	CmdExit
	CmdJoin
	CmdJoinAI
	CmdRefresh
	CmdLogout
)

var commandNames = map[string]Command{
	"TOKEN":    CmdToken,
	"LOGIN":    CmdLogin,
	"REGISTER": CmdRegister,
	"EXIT":     CmdExit,
	"JOIN":     CmdJoin,
	"JOIN_AI":  CmdJoinAI,
	"REFRESH":  CmdRefresh,
	"LOGOUT":   CmdLogout,
}

// ParseCommand maps the first word of a client line to a Command,
// case-insensitively. It never fails.
func ParseCommand(word string) Command {
	if cmd, found := commandNames[strings.ToUpper(word)]; found {
		return cmd
	}
	return CmdUnknown
}

// Response is the enumerated set of server response tokens.
type Response string

const (
	RespOK           Response = "OK"
	RespError        Response = "ERROR"
	RespLogoutUser   Response = "LOGOUT_USER"
	RespExitUser     Response = "EXIT_USER"
	RespListingRooms Response = "LISTING_ROOMS"
	RespCreatedRoom  Response = "CREATED_ROOM"
	RespJoinedRoom   Response = "JOINED_ROOM"
	RespLeavingRoom  Response = "LEAVING_ROOM"
	RespChatCommand  Response = "CHAT_COMMAND"
	RespChatMessage  Response = "CHAT_MESSAGE"
	RespNewToken     Response = "NEW_TOKEN"
	RespValidToken   Response = "VALID_TOKEN"
	RespInvalidToken Response = "INVALID_TOKEN"
)

var responseNames = map[string]Response{
	string(RespOK):           RespOK,
	string(RespError):        RespError,
	string(RespLogoutUser):   RespLogoutUser,
	string(RespExitUser):     RespExitUser,
	string(RespListingRooms): RespListingRooms,
	string(RespCreatedRoom):  RespCreatedRoom,
	string(RespJoinedRoom):   RespJoinedRoom,
	string(RespLeavingRoom):  RespLeavingRoom,
	string(RespChatCommand):  RespChatCommand,
	string(RespChatMessage):  RespChatMessage,
	string(RespNewToken):     RespNewToken,
	string(RespValidToken):   RespValidToken,
	string(RespInvalidToken): RespInvalidToken,
}

// ParseResponse maps a response token to a Response, case-insensitively.
// An unrecognized token is treated as an error on the receiving side.
func ParseResponse(word string) Response {
	if resp, found := responseNames[strings.ToUpper(word)]; found {
		return resp
	}
	return RespError
}

// Slash commands available inside a chat room.
const (
	SlashLeave = "/leave"
	SlashHelp  = "/help"
	SlashList  = "/list"
	SlashAI    = "/ai"
)

// Resume type hints sent after VALID_TOKEN.
const (
	ResumeHintRoom  = "Room"
	ResumeHintLobby = "Lobby"
)
