package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotConfigured — DSN не задан.
	ErrNotConfigured = errors.New("database not configured")

	// ErrInvalidFilter — некорректные параметры выборки.
	ErrInvalidFilter = errors.New("invalid filter")
)
