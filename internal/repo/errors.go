package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState — задача ещё не завершена и не может быть заархивирована.
	ErrInvalidState = errors.New("invalid state")
)
