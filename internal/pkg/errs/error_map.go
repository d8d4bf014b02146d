package errs

// errorMap stores the CustomError template for every application error
// code. Messages are the short human-readable strings delivered on the
// line after the ERROR response token.
var errorMap = map[int]CustomError{
	// 1xxx: Protocol Errors
	ErrUnknownCommand:    {Code: ErrUnknownCommand, Message: "Unknown command."},
	ErrMalformedCommand:  {Code: ErrMalformedCommand, Message: "Malformed command. Usage: %s"},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many connection attempts. Please try again later."},

	// 2xxx: Room Errors
	ErrRoomNameRequired: {Code: ErrRoomNameRequired, Message: "Room name required."},
	ErrRoomIsAI:         {Code: ErrRoomIsAI, Message: "Room '%s' is an AI room. Use JOIN_AI to enter it."},
	ErrRoomNotAI:        {Code: ErrRoomNotAI, Message: "Room '%s' is not an AI room."},

	// 3xxx: Authentication and Session Errors
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect username or password."},
	ErrUserAlreadyExists:  {Code: ErrUserAlreadyExists, Message: "Username is already taken."},
	ErrInvalidUsername:    {Code: ErrInvalidUsername, Message: "Invalid username."},
	ErrAlreadyLoggedIn:    {Code: ErrAlreadyLoggedIn, Message: "User is already logged in on another connection."},
	ErrInvalidToken:       {Code: ErrInvalidToken, Message: "Session token is invalid or expired."},

	// 4xxx: AI Backend Errors
	ErrAIBackend:      {Code: ErrAIBackend, Message: "AI error: %s"},
	ErrAIRoomNotFound: {Code: ErrAIRoomNotFound, Message: "AI error: no conversation registered for this room."},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again."},
}
