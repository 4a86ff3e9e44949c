package nanodc

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the share index. Callers match them with errors.Is;
// the returned errors usually wrap them with the offending path or name.
var (
	ErrNotShared        = errors.New("not shared")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyShared    = errors.New("directory already shared")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrNameConflict     = errors.New("virtual name conflict")
	ErrPathTooDeep      = errors.New("path too deep")
	ErrRefreshCancelled = errors.New("refresh cancelled")
	ErrClosed           = errors.New("share manager closed")
)

// HashFailure reports that one file could not be hashed. The file is left out
// of the share; the refresh carries on.
type HashFailure struct {
	Path string
	Err  error
}

func (e *HashFailure) Error() string {
	return fmt.Sprintf("hash failed for %s: %v", e.Path, e.Err)
}

func (e *HashFailure) Unwrap() error { return e.Err }

// IOWarning reports a directory entry skipped during a scan.
type IOWarning struct {
	Path string
	Op   string // readdir, stat, symlink, revisit, depth, insert
	Err  error
}

func (e *IOWarning) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOWarning) Unwrap() error { return e.Err }
