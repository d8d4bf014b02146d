package chat

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		input string
		want  Command
	}{
		{"LOGIN", CmdLogin},
		{"login", CmdLogin},
		{"Register", CmdRegister},
		{"TOKEN", CmdToken},
		{"JOIN", CmdJoin},
		{"join_ai", CmdJoinAI},
		{"REFRESH", CmdRefresh},
		{"LOGOUT", CmdLogout},
		{"EXIT", CmdExit},
		{"FROB", CmdUnknown},
		{"", CmdUnknown},
		{"LOGIN2", CmdUnknown},
	}

	for _, tc := range cases {
		if got := ParseCommand(tc.input); got != tc.want {
			t.Errorf("ParseCommand(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		input string
		want  Response
	}{
		{"OK", RespOK},
		{"ok", RespOK},
		{"chat_message", RespChatMessage},
		{"VALID_TOKEN", RespValidToken},
		{"INVALID_TOKEN", RespInvalidToken},
		{"BOGUS", RespError},
		{"", RespError},
	}

	for _, tc := range cases {
		if got := ParseResponse(tc.input); got != tc.want {
			t.Errorf("ParseResponse(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
