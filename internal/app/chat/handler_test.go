package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PedroMMarinho/FEUP-CPD/internal/app/ai"
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/auth"
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/room"
)

// newTestDeps wires real stores against a dead AI backend. Tests that
// exercise /ai build their own deps with newTestDepsAI.
func newTestDeps(t *testing.T, grace time.Duration) *Deps {
	t.Helper()

	aiManager := ai.NewManager(ai.NewClient("http://127.0.0.1:1", "test-model"))
	return depsWith(t, aiManager, grace)
}

// newTestDepsAI wires a fake completion backend answering every request
// with reply.
func newTestDepsAI(t *testing.T, reply string) *Deps {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": reply})
	}))
	t.Cleanup(srv.Close)

	aiManager := ai.NewManager(ai.NewClient(srv.URL, "test-model"))
	return depsWith(t, aiManager, time.Minute)
}

func depsWith(t *testing.T, aiManager *ai.Manager, grace time.Duration) *Deps {
	t.Helper()

	store, err := auth.NewFileStore(filepath.Join(t.TempDir(), "users.txt"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &Deps{
		Auth:        auth.NewManager(store, time.Hour),
		Rooms:       room.NewRegistry(aiManager, grace),
		Broadcaster: NewBroadcaster(),
	}
}

// testClient drives one handler over an in-memory pipe.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, deps *Deps) *testClient {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	go NewHandler(serverSide, deps).Run(context.Background())

	t.Cleanup(func() { clientSide.Close() })

	return &testClient{t: t, conn: clientSide, r: bufio.NewReader(clientSide)}
}

func (c *testClient) send(line string) {
	c.t.Helper()

	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

func (c *testClient) readLine() string {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("readLine: %v", err)
	}
	return strings.TrimSpace(line)
}

func (c *testClient) expectLine(want string) {
	c.t.Helper()

	if got := c.readLine(); got != want {
		c.t.Fatalf("read %q, want %q", got, want)
	}
}

// expectBlock reads a token-led multi-line response up to END and returns
// the payload lines.
func (c *testClient) expectBlock(token Response) []string {
	c.t.Helper()

	c.expectLine(string(token))

	var lines []string
	for {
		line := c.readLine()
		if line == EndMarker {
			return lines
		}
		lines = append(lines, line)
	}
}

func (c *testClient) expectClosed() {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if line, err := c.r.ReadString('\n'); err == nil {
		c.t.Fatalf("connection still open, read %q", line)
	}
}

// register runs the REGISTER exchange and returns the issued token.
func (c *testClient) register(username string) string {
	c.t.Helper()

	c.send("REGISTER " + username + " s3cret")

	c.expectLine(string(RespNewToken))
	token := c.readLine()
	c.expectLine(string(RespOK))
	c.expectLine("Registration successful! Welcome " + username)
	c.expectBlock(RespListingRooms)

	return token
}

func containsLine(lines []string, want string) bool {
	for _, line := range lines {
		if line == want {
			return true
		}
	}
	return false
}

func TestRegisterThenLogin(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	c1 := dial(t, deps)
	c1.register("alice")

	c1.send("LOGOUT")
	c1.expectLine(string(RespLogoutUser))
	c1.expectLine("You have been logged out.")
	c1.expectClosed()

	c2 := dial(t, deps)
	c2.send("LOGIN alice wrong-password")
	c2.expectLine(string(RespError))
	c2.readLine()

	c2.send("LOGIN alice s3cret")
	c2.expectLine(string(RespNewToken))
	c2.readLine()
	c2.expectLine(string(RespOK))
	c2.expectLine("Login successful! Welcome alice")
	c2.expectBlock(RespListingRooms)
}

func TestSecondLoginRefusedWhileConnected(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	c1 := dial(t, deps)
	c1.register("alice")

	c2 := dial(t, deps)
	c2.send("LOGIN alice s3cret")
	c2.expectLine(string(RespError))
	c2.readLine()
}

func TestUnknownAndMalformedCommands(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	c := dial(t, deps)

	c.send("FROB")
	c.expectLine(string(RespError))
	c.readLine()

	c.send("LOGIN alice")
	c.expectLine(string(RespError))
	if msg := c.readLine(); !strings.Contains(msg, "LOGIN <username> <password>") {
		t.Fatalf("malformed LOGIN message = %q, want usage hint", msg)
	}

	// Still authenticating; a well-formed command proceeds.
	c.register("alice")
}

func TestJoinBroadcastAndRoster(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	c1 := dial(t, deps)
	c1.register("alice")
	c2 := dial(t, deps)
	c2.register("bob")

	c1.send("JOIN general")
	c1.expectLine(string(RespCreatedRoom))
	c1.expectLine("Created and joined Room: general")

	c2.send("JOIN general")
	c2.expectLine(string(RespJoinedRoom))
	c2.expectLine("Joined Room: general")
	replay := c2.expectBlock(RespChatCommand)
	if !containsLine(replay, "[alice enters the room]") {
		t.Fatalf("history replay missing alice's arrival: %v", replay)
	}

	// alice sees bob arrive.
	c1.expectLine(string(RespChatMessage))
	c1.expectLine("[bob enters the room]")

	// A chat line reaches the other member but never echoes back.
	c2.send("hello there")
	c1.expectLine(string(RespChatMessage))
	c1.expectLine("bob: hello there")

	roster := func(c *testClient) []string {
		c.send("/list")
		return c.expectBlock(RespChatCommand)
	}

	got := roster(c2)
	if !containsLine(got, "- You") || !containsLine(got, "- alice") {
		t.Fatalf("bob's roster = %v, want himself as You and alice by name", got)
	}
	if containsLine(got, "- bob") {
		t.Fatalf("bob listed by name in his own roster: %v", got)
	}

	got = roster(c1)
	if !containsLine(got, "- You") || !containsLine(got, "- bob") {
		t.Fatalf("alice's roster = %v, want herself as You and bob by name", got)
	}
}

func TestLeaveReturnsToLobby(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	c1 := dial(t, deps)
	c1.register("alice")
	c2 := dial(t, deps)
	c2.register("bob")

	c1.send("JOIN general")
	c1.expectLine(string(RespCreatedRoom))
	c1.readLine()

	c2.send("JOIN general")
	c2.expectLine(string(RespJoinedRoom))
	c2.readLine()
	c2.expectBlock(RespChatCommand)
	c1.expectLine(string(RespChatMessage))
	c1.readLine()

	c2.send("/leave")
	c2.expectBlock(RespLeavingRoom)
	c2.expectBlock(RespListingRooms)

	c1.expectLine(string(RespChatMessage))
	c1.expectLine("[bob left the room]")

	// bob is in the lobby again and may join a different room.
	c2.send("JOIN other")
	c2.expectLine(string(RespCreatedRoom))
	c2.expectLine("Created and joined Room: other")

	// His departure no longer receives general's traffic.
	c1.send("still here?")
	c2.send("/list")
	got := c2.expectBlock(RespChatCommand)
	if !containsLine(got, "- You") || len(got) != 3 {
		t.Fatalf("roster after switching rooms = %v, want only You", got)
	}
}

func TestRefreshListsRoomsWithAIMarker(t *testing.T) {
	deps := newTestDepsAI(t, "ignored")

	c1 := dial(t, deps)
	c1.register("alice")
	c1.send("JOIN_AI oracle be brief")
	c1.expectLine(string(RespCreatedRoom))
	c1.readLine()

	c2 := dial(t, deps)
	c2.register("bob")
	c2.send("JOIN general")
	c2.expectLine(string(RespCreatedRoom))
	c2.readLine()
	c2.send("/leave")
	c2.expectBlock(RespLeavingRoom)
	c2.expectBlock(RespListingRooms)

	c2.send("REFRESH")
	got := c2.expectBlock(RespListingRooms)
	if !containsLine(got, "- general") || !containsLine(got, "- oracle [AI]") {
		t.Fatalf("room listing = %v, want general plain and oracle marked [AI]", got)
	}
}

func TestTokenResumeIntoRoom(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	c1 := dial(t, deps)
	token := c1.register("alice")
	c1.send("JOIN general")
	c1.expectLine(string(RespCreatedRoom))
	c1.readLine()

	// Abrupt drop: no LOGOUT.
	c1.conn.Close()
	waitLoggedOut(t, deps, "alice")

	c2 := dial(t, deps)
	c2.send("TOKEN " + token)
	c2.expectLine(string(RespValidToken))
	c2.expectLine("alice")
	c2.expectLine(ResumeHintRoom)
	c2.expectLine("general")
	c2.expectLine(EndMarker)
	replay := c2.expectBlock(RespChatCommand)
	if !containsLine(replay, "[alice left the room]") {
		t.Fatalf("history replay missing departure notice: %v", replay)
	}

	c2.send("/list")
	got := c2.expectBlock(RespChatCommand)
	if !containsLine(got, "- You") {
		t.Fatalf("roster after resume = %v, want You present", got)
	}
}

func TestTokenResumeIntoLobbyWhenRoomExpired(t *testing.T) {
	deps := newTestDeps(t, 20*time.Millisecond)

	c1 := dial(t, deps)
	token := c1.register("alice")
	c1.send("JOIN general")
	c1.expectLine(string(RespCreatedRoom))
	c1.readLine()

	c1.conn.Close()
	waitLoggedOut(t, deps, "alice")

	deadline := time.Now().Add(2 * time.Second)
	for deps.Rooms.RoomExists("general") {
		if time.Now().After(deadline) {
			t.Fatal("room still registered after the grace period")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c2 := dial(t, deps)
	c2.send("TOKEN " + token)
	c2.expectLine(string(RespValidToken))
	c2.expectLine("alice")
	c2.expectLine(ResumeHintLobby)
	c2.expectLine(EndMarker)
	c2.expectBlock(RespListingRooms)
}

func TestTokenRefusals(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	// Garbage token.
	c1 := dial(t, deps)
	c1.send("TOKEN not-a-real-token")
	c1.expectLine(string(RespInvalidToken))
	token := c1.register("alice")

	// Token of a user who still holds a live connection.
	c2 := dial(t, deps)
	c2.send("TOKEN " + token)
	c2.expectLine(string(RespInvalidToken))

	// Token closed by an explicit logout.
	c1.send("LOGOUT")
	c1.expectLine(string(RespLogoutUser))
	c1.readLine()
	c1.expectClosed()

	c2.send("TOKEN " + token)
	c2.expectLine(string(RespInvalidToken))
}

func TestAIRoomConversation(t *testing.T) {
	deps := newTestDepsAI(t, "sup")

	c1 := dial(t, deps)
	c1.register("dana")
	c1.send("JOIN_AI oracle be nice")
	c1.expectLine(string(RespCreatedRoom))
	c1.expectLine("Created and joined Room: oracle")

	c2 := dial(t, deps)
	c2.register("frank")
	c2.send("JOIN_AI oracle")
	c2.expectLine(string(RespJoinedRoom))
	c2.readLine()
	c2.expectBlock(RespChatCommand)
	c1.expectLine(string(RespChatMessage))
	c1.expectLine("[frank enters the room]")

	// /help advertises /ai inside an AI room.
	help := func(c *testClient) bool {
		c.send("/help")
		for _, line := range c.expectBlock(RespChatCommand) {
			if strings.Contains(line, "/ai") {
				return true
			}
		}
		return false
	}
	if !help(c1) {
		t.Fatal("/help in an AI room does not mention /ai")
	}

	c1.send("/ai what's up")

	// frank sees the question and the reply; dana only the reply.
	c2.expectLine(string(RespChatMessage))
	c2.expectLine("dana: what's up")
	c2.expectLine(string(RespChatMessage))
	c2.expectLine(ai.BotName + ": sup")

	c1.expectLine(string(RespChatMessage))
	c1.expectLine(ai.BotName + ": sup")

	// The roster includes the bot entry.
	c1.send("/list")
	got := c1.expectBlock(RespChatCommand)
	if !containsLine(got, "- "+ai.BotName+" (AI)") {
		t.Fatalf("AI room roster = %v, want bot entry", got)
	}

	// A plain JOIN cannot enter the AI room.
	c3 := dial(t, deps)
	c3.register("gina")
	c3.send("JOIN oracle")
	c3.expectLine(string(RespError))
	c3.readLine()
}

func TestAIBackendFailureKeepsRoomUsable(t *testing.T) {
	// Dead backend: every /ai request fails.
	deps := newTestDeps(t, time.Minute)

	c := dial(t, deps)
	c.register("alice")
	c.send("JOIN_AI oracle be nice")
	c.expectLine(string(RespCreatedRoom))
	c.readLine()

	c.send("/ai anyone home?")
	c.expectLine(string(RespError))
	if msg := c.readLine(); !strings.Contains(msg, "AI error") {
		t.Fatalf("backend failure message = %q, want AI error text", msg)
	}

	// The handler survived; the room still works.
	c.send("/list")
	got := c.expectBlock(RespChatCommand)
	if !containsLine(got, "- You") {
		t.Fatalf("roster after backend failure = %v, want You present", got)
	}
}

func TestAIErrorsOutsideAIRoom(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	c := dial(t, deps)
	c.register("alice")
	c.send("JOIN general")
	c.expectLine(string(RespCreatedRoom))
	c.readLine()

	c.send("/ai hello?")
	c.expectLine(string(RespError))
	c.readLine()
}

func TestExitBeforeLogin(t *testing.T) {
	deps := newTestDeps(t, time.Minute)

	c := dial(t, deps)
	c.send("EXIT")
	c.expectLine(string(RespExitUser))
	c.expectLine("Goodbye!")
	c.expectClosed()
}

// waitLoggedOut waits for the handler's cleanup to release the login
// slot after a dropped connection.
func waitLoggedOut(t *testing.T, deps *Deps, username string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for deps.Auth.IsLoggedIn(username) {
		if time.Now().After(deadline) {
			t.Fatalf("login slot for %s never released", username)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

