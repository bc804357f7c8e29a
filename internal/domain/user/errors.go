package user

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrTokenInvalid      = errors.New("token is invalid")
	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrAchievementAbsent = errors.New("achievement not defined")
)
