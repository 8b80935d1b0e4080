package model

import "errors"

// Sentinel errors returned by every Store implementation.
var (
	ErrFileNotFound    = errors.New("file not found")
	ErrProductNotFound = errors.New("product not found")
	ErrImageNotFound   = errors.New("image not found")
)
