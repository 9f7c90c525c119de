package usecase

import "errors"

// ErrValidation оборачивает ошибки входных данных (HTTP 400)
var ErrValidation = errors.New("validation failed")

