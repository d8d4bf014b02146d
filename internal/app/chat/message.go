package chat

import "fmt"

// Room traffic is broadcast as pre-formatted single lines. These helpers
// are the single source of those formats, shared by the live fan-out and
// the room history replay.

// FormatChat renders an ordinary chat line.
func FormatChat(username, text string) string {
	return fmt.Sprintf("%s: %s", username, text)
}

// FormatEnter renders the member-entered notice.
func FormatEnter(username string) string {
	return fmt.Sprintf("[%s enters the room]", username)
}

// FormatLeave renders the member-left notice.
func FormatLeave(username string) string {
	return fmt.Sprintf("[%s left the room]", username)
}
