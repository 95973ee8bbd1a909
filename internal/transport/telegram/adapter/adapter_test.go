package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "schedbot/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextAvoidsOpenTag(t *testing.T) {
	t.Parallel()
	s := "12345678<b>bold</b>"
	got := splitText(s, 10, "HTML")
	if got[0] != "12345678" {
		t.Fatalf("first chunk %q", got[0])
	}
	if strings.Join(got, "") != s {
		t.Fatalf("chunks lost content: %q", got)
	}
}

func TestMenuCommandsNormalizes(t *testing.T) {
	t.Parallel()
	got := menuCommands([]kit.BotCommand{
		{Command: "/start", Description: "Open the menu"},
		{Command: "  "},
		{Command: "list"},
	})
	want := []tele.Command{{Text: "start", Description: "Open the menu"}, {Text: "list", Description: "list"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%+v want %+v", i, got[i], want[i])
		}
	}
	if hashCommands(got) == hashCommands(want[:1]) {
		t.Fatal("hash should depend on content")
	}
}

func TestMessageUpdateDropsSenderless(t *testing.T) {
	t.Parallel()
	if _, ok := messageUpdate(&tele.Message{Chat: &tele.Chat{ID: 1}}); ok {
		t.Fatal("expected drop without sender")
	}
	up, ok := messageUpdate(&tele.Message{
		ID:     5,
		Chat:   &tele.Chat{ID: 9, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: 42, FirstName: "Ada", LastName: "L"},
		Text:   "/list",
	})
	if !ok || up.Message.FromID != 42 || up.Message.FromName != "Ada L" || !up.Message.IsPrivate {
		t.Fatalf("update=%+v", up.Message)
	}
}
