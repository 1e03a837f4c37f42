package handler

import (
	"strings"
	"testing"
)

func TestValidSender(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"alice", true},
		{"бот-наблюдатель", true},
		{"agent/claude-3", true},
		{strings.Repeat("a", 100), true},
		{strings.Repeat("a", 101), false},
		{"", false},
		{"line\nbreak", false},
		{"nul\x00byte", false},
	}
	for _, c := range cases {
		if got := validSender(c.name); got != c.want {
			t.Errorf("validSender(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestValidRoomName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"general", true},
		{"dev-фронтенд", true},
		{strings.Repeat("я", 100), true},
		{strings.Repeat("я", 101), false},
		{"", false},
		{"has/slash", false},
		{"has\ttab", false},
	}
	for _, c := range cases {
		if got := validRoomName(c.name); got != c.want {
			t.Errorf("validRoomName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestValidContent(t *testing.T) {
	if validContent("") {
		t.Errorf("empty content must be invalid")
	}
	if !validContent(strings.Repeat("ж", 10000)) {
		t.Errorf("10000 runes must be valid")
	}
	if validContent(strings.Repeat("ж", 10001)) {
		t.Errorf("10001 runes must be invalid")
	}
	if !validContent("привет\nс переносом") {
		t.Errorf("multi-line content must be valid")
	}
}

func TestValidFilename(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"фото 2025.jpg", true},
		{strings.Repeat("a", 255), true},
		{strings.Repeat("a", 256), false},
		{"", false},
		{"../etc/passwd", false},
		{"dir\\file", false},
	}
	for _, c := range cases {
		if got := validFilename(c.name); got != c.want {
			t.Errorf("validFilename(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNormalizeSenderType(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "unknown", true},
		{"agent", "agent", true},
		{"human", "human", true},
		{"unknown", "unknown", true},
		{"robot", "", false},
		{"Agent", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeSenderType(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("normalizeSenderType(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestValidEmoji(t *testing.T) {
	cases := []struct {
		emoji string
		want  bool
	}{
		{"👍", true},
		{"👨‍👩‍👧‍👦", true},
		{":thumbsup:", true},
		{"", false},
		{"with space", false},
		{strings.Repeat("👍", 33), false},
	}
	for _, c := range cases {
		if got := validEmoji(c.emoji); got != c.want {
			t.Errorf("validEmoji(%q) = %v, want %v", c.emoji, got, c.want)
		}
	}
}
