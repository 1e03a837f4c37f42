package repository

import "errors"

var ErrNotFound = errors.New("not found")

// ErrConflict — нарушение уникальности или конфликт состояния (дубликат имени, повторный pin).
var ErrConflict = errors.New("conflict")

// ErrForbidden — запись существует, но операция запрещена вызывающему (чужое сообщение).
var ErrForbidden = errors.New("forbidden")

// ErrTransient возвращается, когда операция не прошла из-за гонки и её стоит повторить.
var ErrTransient = errors.New("transient failure, retry")
