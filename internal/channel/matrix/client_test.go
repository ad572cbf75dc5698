package matrix

import (
	"strings"
	"testing"
	"unicode/utf8"

	"maunium.net/go/mautrix/id"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"empty", "", 10, nil},
		{"newline boundary", "aaaa\nbbbb\ncc", 10, []string{"aaaa\nbbbb", "cc"}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.in, tt.maxLen)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("splitMessage(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSplitMessageKeepsRunes(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes each
	for _, chunk := range splitMessage(s, 5) {
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk %q is not valid UTF-8", chunk)
		}
		if len(chunk) > 5 {
			t.Fatalf("chunk %q exceeds limit", chunk)
		}
	}
}

func TestIsAllowed(t *testing.T) {
	open := New(Config{})
	if !open.isAllowed("@anyone:example.com") {
		t.Error("empty allow list should admit everyone")
	}

	blank := New(Config{AllowedUsers: []string{""}})
	if !blank.isAllowed("@anyone:example.com") {
		t.Error("blank allow list entry should admit everyone")
	}

	c := New(Config{AllowedUsers: []string{"@dev:example.com"}})
	if !c.isAllowed(id.UserID("@dev:example.com")) {
		t.Error("listed user rejected")
	}
	if c.isAllowed(id.UserID("@stranger:example.com")) {
		t.Error("unlisted user admitted")
	}
}

func TestFullUserID(t *testing.T) {
	if got := New(Config{UserID: "bot", ServerName: "example.com"}).FullUserID(); got != "@bot:example.com" {
		t.Errorf("FullUserID = %q", got)
	}
	if got := New(Config{UserID: "@bot:other.org"}).FullUserID(); got != "@bot:other.org" {
		t.Errorf("FullUserID = %q", got)
	}
}

func TestRetryableLogin(t *testing.T) {
	if retryableLogin(errString("M_FORBIDDEN (HTTP 403): Invalid password")) {
		t.Error("forbidden should not be retried")
	}
	if !retryableLogin(errString("dial tcp: connection refused")) {
		t.Error("network errors should be retried")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
