package domain

import "github.com/totegamma/humayat"

type NotFoundError = humayat.NotFoundError
type ValidationError = humayat.ValidationError
type UpstreamServiceError = humayat.UpstreamServiceError

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = humayat.ErrNotFound
