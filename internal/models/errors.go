package models

import "errors"

var (
	ErrDuplicateUserName = errors.New("username taken")
	ErrIdentityExists    = errors.New("streamer identity already registered")
	ErrNotFound          = errors.New("streamer not found")
	ErrNotOnline         = errors.New("streamer not online")
	ErrStoreConflict     = errors.New("stale profile revision")
	ErrInvalidRequestID  = errors.New("invalid request id")
)
