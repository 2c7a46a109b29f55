package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"empty", "", 10, []string{""}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"newline preferred", "aaaa\nbbbbbb", 8, []string{"aaaa", "bbbbbb"}},
		{"newline too early", "a\nbbbbbbbbbb", 6, []string{"a\nbbbb", "bbbbbb"}},
		{"runes", "ééééé", 2, []string{"éé", "éé", "é"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SplitText(tt.in, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Fatalf("SplitText(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}

func TestSplitTextChunksFitLimit(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("line of text\n", 800)
	for i, c := range SplitText(long, TextLimit) {
		if n := len([]rune(c)); n > TextLimit {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:       7,
		Text:     "/rem_list",
		ThreadID: 3,
		Chat:     &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 42, Username: "owner"},
	}
	got := toMessage(m)
	if got.ID != 7 || got.ChatID != -100 || got.ThreadID != 3 || got.FromID != 42 || got.FromUsername != "owner" || !got.IsGroup {
		t.Fatalf("toMessage = %+v", got)
	}

	m.Chat.Type = tele.ChatPrivate
	m.Sender = nil
	if got := toMessage(m); got.IsGroup || got.FromID != 0 {
		t.Fatalf("private toMessage = %+v", got)
	}
}
