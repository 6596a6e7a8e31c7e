package watcher

import "errors"

var (
	// ErrWatcherClosed is returned when operating on a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrAlreadyStarted is returned when starting a running watcher.
	ErrAlreadyStarted = errors.New("watcher already started")

	// ErrNoWatchPaths is returned when none of the requested paths exist.
	ErrNoWatchPaths = errors.New("no watchable paths")
)
