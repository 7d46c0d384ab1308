package fsreader

import "errors"

const Namespace = "fsreader"

var (
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
	ErrNoHandoff     = errors.New(Namespace + ": handoff channel closed before the walk was authorized")
	ErrUnknownPseudo = errors.New(Namespace + ": unknown pseudo generator")
	ErrSpawn         = errors.New(Namespace + ": cannot spawn pseudo generator")
	ErrGenerator     = errors.New(Namespace + ": pseudo generator failed")
	ErrSizeMismatch  = errors.New(Namespace + ": file size does not match the size it was read with")
)
