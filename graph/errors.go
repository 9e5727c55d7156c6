package graph

import "errors"

var (
	// ErrEmptyCorpus indicates Build was called without provisions.
	ErrEmptyCorpus = errors.New("no provisions to build")

	// ErrDuplicateNode indicates two provisions share an internal id.
	ErrDuplicateNode = errors.New("duplicate provision")
)
