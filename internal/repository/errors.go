package repository

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrDuplicate            = errors.New("duplicate record")
)
