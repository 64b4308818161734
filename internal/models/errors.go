package models

import "errors"

// Storage outcomes shared by every store implementation.
var (
	ErrRentalNotFound      = errors.New("rental not found")
	ErrRentalAlreadyClosed = errors.New("rental already closed")
	ErrMovieNotFound       = errors.New("movie not found")
)
