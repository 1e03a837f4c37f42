package handler

import (
	"strings"
	"unicode/utf8"

	"github.com/agentchat/internal/model"
)

// Границы длины полей в рунах.
const (
	maxNameLen        = 100
	maxDescriptionLen = 500
	maxContentLen     = 10000
	maxFilenameLen    = 255
	maxEmojiLen       = 32
)

func validSender(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 1 && n <= maxNameLen && !strings.ContainsAny(s, "\x00\n\r")
}

func validRoomName(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 1 || n > maxNameLen {
		return false
	}
	// имя комнаты без пробельных управляющих и слэшей, оно живёт в URL клиентов
	return !strings.ContainsAny(s, "\x00\n\r\t/")
}

func validContent(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 1 && n <= maxContentLen
}

func validDescription(s string) bool {
	return utf8.RuneCountInString(s) <= maxDescriptionLen
}

func validFilename(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 1 || n > maxFilenameLen {
		return false
	}
	return !strings.ContainsAny(s, "\x00/\\")
}

func validEmoji(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 1 && n <= maxEmojiLen && !strings.ContainsAny(s, "\x00\n\r \t")
}

// normalizeSenderType приводит тип отправителя к закрытому множеству.
// Пустая строка означает unknown, всё прочее отвергается.
func normalizeSenderType(s string) (string, bool) {
	switch s {
	case "":
		return model.SenderUnknown, true
	case model.SenderAgent, model.SenderHuman, model.SenderUnknown:
		return s, true
	default:
		return "", false
	}
}
