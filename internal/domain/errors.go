package domain

import "errors"

var (
	ErrValidation       = errors.New("invalid payload")
	ErrLockConflict     = errors.New("object locked by another participant")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("object not found")

	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrNotInWorkspace    = errors.New("connection is not in a workspace")
	ErrImmutableObject   = errors.New("object is immutable once committed")
	ErrNoPendingStroke   = errors.New("no stroke in progress for this connection")
)
