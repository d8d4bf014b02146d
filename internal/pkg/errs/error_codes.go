/*
Package errs provides the application error type and error code constants.

The ranges below mirror the failure taxonomy of the chat protocol:
1xxx protocol errors, 2xxx room errors, 3xxx authentication and session
errors, 4xxx AI backend errors, 5xxx internal errors.
*/
package errs

// 1xxx: Protocol Errors
const (
	// ErrUnknownCommand indicates the client sent a command the current
	// state does not recognize.
	ErrUnknownCommand = 1001

	// ErrMalformedCommand indicates a recognized command with the wrong
	// shape (missing or extra arguments).
	ErrMalformedCommand = 1002

	// ErrRateLimitExceeded indicates the connection rate from one IP
	// exceeded the configured limit.
	ErrRateLimitExceeded = 1003
)

// 2xxx: Room Errors
const (
	// ErrRoomNameRequired indicates a join command without a room name.
	ErrRoomNameRequired = 2001

	// ErrRoomIsAI indicates a plain JOIN was attempted on an AI-backed room.
	ErrRoomIsAI = 2002

	// ErrRoomNotAI indicates JOIN_AI or /ai was attempted on a room that is
	// not AI-backed.
	ErrRoomNotAI = 2003
)

// 3xxx: Authentication and Session Errors
const (
	// ErrInvalidCredentials indicates an unknown username or wrong password.
	// The two cases are deliberately not distinguished.
	ErrInvalidCredentials = 3001

	// ErrUserAlreadyExists indicates a registration attempt for a taken or
	// reserved username.
	ErrUserAlreadyExists = 3002

	// ErrInvalidUsername indicates a username that is empty or contains the
	// reserved credential-file delimiter.
	ErrInvalidUsername = 3003

	// ErrAlreadyLoggedIn indicates the username holds an active session on
	// another live connection.
	ErrAlreadyLoggedIn = 3004

	// ErrInvalidToken indicates a session token that is unknown, expired,
	// or no longer active.
	ErrInvalidToken = 3005
)

// 4xxx: AI Backend Errors
const (
	// ErrAIBackend indicates the completion backend returned a non-success
	// response or could not be reached.
	ErrAIBackend = 4001

	// ErrAIRoomNotFound indicates an AI request for a room with no
	// registered conversation state.
	ErrAIRoomNotFound = 4002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal server error.
	ErrUnknown = 5000
)
