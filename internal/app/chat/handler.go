/*
Package chat contains the core of the server: the per-connection protocol
state machine, the live-handler registry, and the broadcast fan-out.

This file defines the Handler: one per accepted connection, owning the
read loop, the protocol state machine, and a dedicated writer goroutine
draining a buffered outbound queue. All outgoing traffic, the handler's
own responses and broadcast deliveries alike, goes through that queue, so
lines of one message are never interleaved with another.
*/
package chat

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PedroMMarinho/FEUP-CPD/internal/app/ai"
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/auth"
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/room"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/errs"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/randx"
)

// State is the connection's position in the protocol state machine.
type State int

const (
	StateAuthenticating State = iota
	StateInLobby
	StateInChatRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateInLobby:
		return "lobby"
	case StateInChatRoom:
		return "chat_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	// outboundQueueSize bounds the per-connection write queue. A
	// recipient that falls this far behind is dropped rather than
	// allowed to stall the room.
	outboundQueueSize = 256

	writeTimeout = 10 * time.Second

	defaultAIPrompt = "You are a helpful assistant in a chat room."
)

// Deps carries the shared services a Handler operates against.
type Deps struct {
	Auth        *auth.Manager
	Rooms       *room.Registry
	Broadcaster *Broadcaster
}

// Handler drives one client connection through the protocol.
type Handler struct {
	deps   *Deps
	conn   net.Conn
	reader *bufio.Reader

	// out is drained by the writer goroutine. sendMu serializes
	// enqueueing against closeOutbound, so a late broadcast can never
	// hit a closed channel.
	out       chan string
	sendMu    sync.Mutex
	outClosed bool

	closeOnce sync.Once

	// mu guards state, username, roomName, and session. It is held only
	// for field access, never across a send or a registry call.
	mu       sync.Mutex
	state    State
	username string
	roomName string
	session  auth.Session

	logger zerolog.Logger
}

// NewHandler wraps an accepted connection. The caller runs it with Run.
func NewHandler(conn net.Conn, deps *Deps) *Handler {
	return &Handler{
		deps:   deps,
		conn:   conn,
		reader: bufio.NewReader(conn),
		out:    make(chan string, outboundQueueSize),
		logger: logx.Logger().With().
			Str("component", "Handler").
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// Run owns the connection until it terminates: it registers with the
// broadcaster, starts the writer goroutine, and loops reading one command
// line at a time. It returns only once the connection is fully detached.
func (h *Handler) Run(ctx context.Context) {
	h.deps.Broadcaster.Register(h)
	go h.writeLoop()
	defer h.cleanup()

	h.logger.Info().Msg("Connection accepted.")

	for {
		line, err := h.reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch h.currentState() {
		case StateAuthenticating:
			h.handleAuthenticating(ctx, line)
		case StateInLobby:
			h.handleLobby(line)
		case StateInChatRoom:
			h.handleChatRoom(ctx, line)
		}

		if h.currentState() == StateDisconnected {
			return
		}
	}
}

// writeLoop drains the outbound queue onto the wire. When the queue is
// closed it flushes what remains and closes the connection; a write
// failure stops writing but keeps draining so enqueuers never block.
func (h *Handler) writeLoop() {
	failed := false

	for line := range h.out {
		if failed {
			continue
		}

		h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := h.conn.Write([]byte(line + "\n")); err != nil {
			failed = true
			h.forceClose()
		}
	}

	h.forceClose()
}

// cleanup detaches the handler from everything it touched: room
// membership, the login presence set, and the broadcaster. An abrupt drop
// keeps the session active and bound to its room so a TOKEN command can
// resume it; only an explicit LOGOUT closes the session.
func (h *Handler) cleanup() {
	h.mu.Lock()
	state := h.state
	username := h.username
	roomName := h.roomName
	h.state = StateDisconnected
	h.mu.Unlock()

	if state == StateInChatRoom && roomName != "" {
		h.detachFromRoom(username, roomName)
	}

	if username != "" {
		h.deps.Auth.MarkLoggedOut(username)
	}

	h.deps.Broadcaster.Unregister(h)
	h.closeOutbound()

	h.logger.Info().Str("username", username).Msg("Connection closed.")
}

// trySend enqueues lines without blocking. It reports false when the
// queue is full or already closed; the caller decides whether that drops
// the connection.
func (h *Handler) trySend(lines ...string) bool {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if h.outClosed {
		return false
	}

	for _, line := range lines {
		select {
		case h.out <- line:
		default:
			return false
		}
	}

	return true
}

// send enqueues the handler's own response lines. A full queue here means
// the client stopped reading; the connection is dropped and the read
// loop's error path runs the full cleanup.
func (h *Handler) send(lines ...string) {
	if !h.trySend(lines...) {
		h.forceClose()
	}
}

// sendResponse sends a response token followed by one message line.
func (h *Handler) sendResponse(token Response, message string) {
	h.send(string(token), message)
}

// sendBlock sends a token, the payload lines, and the END terminator.
func (h *Handler) sendBlock(token Response, lines ...string) {
	block := make([]string, 0, len(lines)+2)
	block = append(block, string(token))
	block = append(block, lines...)
	block = append(block, EndMarker)
	h.send(block...)
}

// sendError sends the ERROR envelope with the error's message line.
func (h *Handler) sendError(cerr *errs.CustomError) {
	h.sendResponse(RespError, cerr.Message)
}

// closeOutbound closes the queue exactly once; the writer goroutine
// flushes and closes the connection.
func (h *Handler) closeOutbound() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if !h.outClosed {
		h.outClosed = true
		close(h.out)
	}
}

// forceClose tears the connection down immediately. The read loop errors
// out and cleanup runs on the handler's own goroutine.
func (h *Handler) forceClose() {
	h.closeOnce.Do(func() {
		h.conn.Close()
	})
}

func (h *Handler) currentState() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

func (h *Handler) setState(state State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = state
}

// BoundUsername returns the username bound to this connection, or empty
// while authenticating.
func (h *Handler) BoundUsername() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.username
}

// occupies reports whether the handler is currently inside roomName. The
// broadcaster uses it to pick fan-out targets.
func (h *Handler) occupies(roomName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state == StateInChatRoom && h.roomName == roomName
}

// --- Authenticating -------------------------------------------------

func (h *Handler) handleAuthenticating(ctx context.Context, line string) {
	parts := strings.SplitN(line, " ", 3)

	switch ParseCommand(parts[0]) {
	case CmdToken:
		token := ""
		if len(parts) > 1 {
			token = parts[1]
		}
		h.resumeSession(token)

	case CmdLogin:
		if len(parts) != 3 {
			h.sendError(errs.NewError(errs.ErrMalformedCommand, "LOGIN <username> <password>"))
			return
		}
		h.login(ctx, parts[1], parts[2], false)

	case CmdRegister:
		if len(parts) != 3 {
			h.sendError(errs.NewError(errs.ErrMalformedCommand, "REGISTER <username> <password>"))
			return
		}
		h.login(ctx, parts[1], parts[2], true)

	case CmdExit:
		h.sendResponse(RespExitUser, "Goodbye!")
		h.setState(StateDisconnected)

	default:
		h.sendError(errs.NewError(errs.ErrUnknownCommand))
	}
}

// login authenticates (or registers) the user, claims the single-login
// slot, and moves the connection to the lobby. The slot claim comes after
// credential verification, so a refused duplicate login never learns
// whether the password was right.
func (h *Handler) login(ctx context.Context, username, password string, register bool) {
	if h.deps.Auth.IsLoggedIn(username) {
		h.sendError(errs.NewError(errs.ErrAlreadyLoggedIn))
		return
	}

	var (
		session auth.Session
		cerr    *errs.CustomError
	)
	if register {
		session, cerr = h.deps.Auth.Register(ctx, username, password)
	} else {
		session, cerr = h.deps.Auth.Authenticate(ctx, username, password)
	}
	if cerr != nil {
		h.sendError(cerr)
		return
	}

	if !h.deps.Auth.MarkLoggedIn(username) {
		// Lost the race to a concurrent login with the same name.
		h.deps.Auth.Sessions().Close(session.Token)
		h.sendError(errs.NewError(errs.ErrAlreadyLoggedIn))
		return
	}

	h.mu.Lock()
	h.username = username
	h.session = session
	h.state = StateInLobby
	h.mu.Unlock()

	greeting := "Login successful! Welcome " + username
	if register {
		greeting = "Registration successful! Welcome " + username
	}

	h.send(string(RespNewToken), session.Token, string(RespOK), greeting)
	h.sendRoomList()

	h.logger.Info().Str("username", username).Bool("registered", register).Msg("User authenticated.")
}

// resumeSession handles the TOKEN command: an invalid, expired, or closed
// token (or one whose user already holds a live connection) answers
// INVALID_TOKEN and leaves the client to log in manually. A valid token
// rebinds the username and lands the client back in its room when that
// room still exists, otherwise in the lobby.
func (h *Handler) resumeSession(token string) {
	// Shape check first; garbage never reaches the store.
	if !randx.IsValidToken(token) {
		h.send(string(RespInvalidToken))
		return
	}

	session, found := h.deps.Auth.SessionByToken(token)
	if !found || !session.Resumable() {
		h.send(string(RespInvalidToken))
		return
	}

	if !h.deps.Auth.MarkLoggedIn(session.Username) {
		h.send(string(RespInvalidToken))
		return
	}

	if session.CurrentRoom != "" {
		if target, found := h.deps.Rooms.Resume(session.CurrentRoom, session.Username); found {
			h.mu.Lock()
			h.username = session.Username
			h.session = session
			h.roomName = session.CurrentRoom
			h.state = StateInChatRoom
			h.mu.Unlock()

			h.send(string(RespValidToken), session.Username, ResumeHintRoom, session.CurrentRoom, EndMarker)
			h.replayHistory(target)
			h.announceEnter(session.Username, session.CurrentRoom, target)

			h.logger.Info().Str("username", session.Username).Str("room", session.CurrentRoom).Msg("Session resumed into room.")
			return
		}

		// The room expired during the disconnect.
		h.deps.Auth.Sessions().SetRoom(token, "")
		session.CurrentRoom = ""
	}

	h.mu.Lock()
	h.username = session.Username
	h.session = session
	h.state = StateInLobby
	h.mu.Unlock()

	h.send(string(RespValidToken), session.Username, ResumeHintLobby, EndMarker)
	h.sendRoomList()

	h.logger.Info().Str("username", session.Username).Msg("Session resumed into lobby.")
}

// --- Lobby ----------------------------------------------------------

func (h *Handler) handleLobby(line string) {
	parts := strings.SplitN(line, " ", 3)

	switch ParseCommand(parts[0]) {
	case CmdJoin:
		if len(parts) < 2 || parts[1] == "" {
			h.sendError(errs.NewError(errs.ErrRoomNameRequired))
			return
		}
		if len(parts) > 2 {
			h.sendError(errs.NewError(errs.ErrMalformedCommand, "JOIN <room>"))
			return
		}
		h.joinRoom(parts[1], false, "")

	case CmdJoinAI:
		if len(parts) < 2 || parts[1] == "" {
			h.sendError(errs.NewError(errs.ErrRoomNameRequired))
			return
		}
		prompt := defaultAIPrompt
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			prompt = strings.TrimSpace(parts[2])
		}
		h.joinRoom(parts[1], true, prompt)

	case CmdRefresh:
		h.sendRoomList()

	case CmdLogout:
		h.logout()

	case CmdExit:
		// Client quit without logging out: the session stays resumable,
		// same as an abrupt disconnect.
		h.sendResponse(RespExitUser, "Goodbye!")
		h.setState(StateDisconnected)

	default:
		h.sendError(errs.NewError(errs.ErrUnknownCommand))
	}
}

// joinRoom enters (creating if absent) a plain or AI room, replays its
// history, and announces the arrival to the members already there.
func (h *Handler) joinRoom(name string, aiRoom bool, prompt string) {
	username := h.BoundUsername()

	var (
		target  *room.Room
		created bool
		cerr    *errs.CustomError
	)
	if aiRoom {
		target, created, cerr = h.deps.Rooms.JoinAI(name, username, prompt)
	} else {
		target, created, cerr = h.deps.Rooms.Join(name, username)
	}
	if cerr != nil {
		h.sendError(cerr)
		return
	}

	h.mu.Lock()
	h.roomName = name
	h.state = StateInChatRoom
	token := h.session.Token
	h.mu.Unlock()

	h.deps.Auth.Sessions().SetRoom(token, name)

	if created {
		h.sendResponse(RespCreatedRoom, "Created and joined Room: "+name)
	} else {
		h.sendResponse(RespJoinedRoom, "Joined Room: "+name)
	}

	h.replayHistory(target)
	h.announceEnter(username, name, target)

	h.logger.Info().Str("username", username).Str("room", name).Bool("created", created).Msg("Joined room.")
}

// logout closes the session for good and ends the connection. The record
// stays in the store, inactive, so a later TOKEN attempt gets a
// definitive refusal instead of a lookup miss.
func (h *Handler) logout() {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()

	session.Active = false
	session.CurrentRoom = ""
	h.deps.Auth.UpdateSession(session.Token, session)

	h.sendResponse(RespLogoutUser, "You have been logged out.")
	h.setState(StateDisconnected)
}

// --- Chat room ------------------------------------------------------

func (h *Handler) handleChatRoom(ctx context.Context, line string) {
	h.mu.Lock()
	username := h.username
	roomName := h.roomName
	h.mu.Unlock()

	if strings.HasPrefix(line, "/") {
		h.handleSlashCommand(ctx, username, roomName, line)
		return
	}

	formatted := FormatChat(username, line)
	if target := h.deps.Rooms.GetByName(roomName); target != nil {
		target.Post(formatted, func() {
			h.deps.Broadcaster.Broadcast(roomName, username, string(RespChatMessage), formatted)
		})
	}
	h.deps.Rooms.NoteChatMessage(roomName, username, line)
}

func (h *Handler) handleSlashCommand(ctx context.Context, username, roomName, line string) {
	parts := strings.SplitN(line, " ", 2)

	switch strings.ToLower(parts[0]) {
	case SlashLeave:
		h.leaveRoom(username, roomName)

	case SlashHelp:
		h.sendHelp(roomName)

	case SlashList:
		h.sendMemberList(username, roomName)

	case SlashAI:
		if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
			h.sendError(errs.NewError(errs.ErrMalformedCommand, "/ai <message>"))
			return
		}
		h.askAI(ctx, username, roomName, strings.TrimSpace(parts[1]))

	default:
		h.sendError(errs.NewError(errs.ErrUnknownCommand))
	}
}

// leaveRoom handles /leave: detach, confirm, and drop back to the lobby.
func (h *Handler) leaveRoom(username, roomName string) {
	h.detachFromRoom(username, roomName)

	h.mu.Lock()
	h.roomName = ""
	h.state = StateInLobby
	token := h.session.Token
	h.mu.Unlock()

	h.deps.Auth.Sessions().SetRoom(token, "")

	h.sendBlock(RespLeavingRoom, "You have left the chat room and returned to the lobby.")
	h.sendRoomList()
}

// detachFromRoom removes the member and tells the room about it: the
// departure notice goes to the history and the remaining members first,
// then the AI transcript, then the registry arms the grace timer if the
// room emptied. Shared by /leave and the disconnect cleanup.
func (h *Handler) detachFromRoom(username, roomName string) {
	leave := FormatLeave(username)

	if target := h.deps.Rooms.GetByName(roomName); target != nil {
		target.Post(leave, func() {
			h.deps.Broadcaster.Broadcast(roomName, username, string(RespChatMessage), leave)
		})
	}

	h.deps.Rooms.NoteMemberLeft(roomName, username)
	h.deps.Rooms.Leave(roomName, username)
}

// askAI broadcasts the question to the other members, then requests a
// completion and broadcasts the reply to everyone, asker included. The
// backend round trip happens on this handler's goroutine, outside every
// lock, so the rest of the room keeps flowing while the model thinks.
func (h *Handler) askAI(ctx context.Context, username, roomName, text string) {
	if !h.deps.Rooms.IsAIRoom(roomName) {
		h.sendError(errs.NewError(errs.ErrRoomNotAI, roomName))
		return
	}

	formatted := FormatChat(username, text)
	if target := h.deps.Rooms.GetByName(roomName); target != nil {
		target.Post(formatted, func() {
			h.deps.Broadcaster.Broadcast(roomName, username, string(RespChatMessage), formatted)
		})
	}

	reply, cerr := h.deps.Rooms.GetAIResponse(ctx, roomName, username, text)
	if cerr != nil {
		h.sendError(cerr)
		return
	}

	if target := h.deps.Rooms.GetByName(roomName); target != nil {
		target.Post(reply, func() {
			h.deps.Broadcaster.Broadcast(roomName, "", string(RespChatMessage), reply)
		})
	}
}

// --- Shared render helpers ------------------------------------------

// sendRoomList sends the lobby listing of available rooms.
func (h *Handler) sendRoomList() {
	names := h.deps.Rooms.AvailableRoomNames()

	lines := []string{"======= Available Rooms ======="}
	if len(names) == 0 {
		lines = append(lines, "No rooms yet. JOIN <name> to create one.")
	}
	for _, name := range names {
		label := "- " + name
		if h.deps.Rooms.IsAIRoom(name) {
			label += " [AI]"
		}
		lines = append(lines, label)
	}
	lines = append(lines, "===============================")

	h.sendBlock(RespListingRooms, lines...)
}

// replayHistory sends the room's message history to a fresh arrival.
func (h *Handler) replayHistory(target *room.Room) {
	history := target.History()
	if len(history) == 0 {
		return
	}

	lines := make([]string, 0, len(history)+2)
	lines = append(lines, "======= Recent Messages =======")
	lines = append(lines, history...)
	lines = append(lines, "===============================")

	h.sendBlock(RespChatCommand, lines...)
}

// announceEnter records and broadcasts the arrival notice to the members
// already in the room.
func (h *Handler) announceEnter(username, roomName string, target *room.Room) {
	enter := FormatEnter(username)
	target.Post(enter, func() {
		h.deps.Broadcaster.Broadcast(roomName, username, string(RespChatMessage), enter)
	})
}

// sendHelp sends the in-room command reference.
func (h *Handler) sendHelp(roomName string) {
	lines := []string{
		"======= Commands =======",
		"/help   Show this help",
		"/list   List people in the room",
		"/leave  Return to the lobby",
	}
	if h.deps.Rooms.IsAIRoom(roomName) {
		lines = append(lines, "/ai <message>   Ask "+ai.BotName+" directly")
	}
	lines = append(lines, "========================")

	h.sendBlock(RespChatCommand, lines...)
}

// sendMemberList sends the room roster, labeling the requester "You" and
// appending the bot entry in AI rooms.
func (h *Handler) sendMemberList(username, roomName string) {
	target := h.deps.Rooms.GetByName(roomName)
	if target == nil {
		return
	}

	lines := []string{"======= People In Room ======="}
	for _, member := range target.Members() {
		if member == username {
			lines = append(lines, "- You")
		} else {
			lines = append(lines, "- "+member)
		}
	}
	if target.IsAIRoom() {
		lines = append(lines, "- "+ai.BotName+" (AI)")
	}
	lines = append(lines, "==============================")

	h.sendBlock(RespChatCommand, lines...)
}
