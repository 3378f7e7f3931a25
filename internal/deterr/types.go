// Package deterr normalizes errors from every layer of detconsole into one
// structured envelope and applies a single notification policy to them.
package deterr

// Type classifies where an error came from.
type Type string

// Error types.
const (
	TypeServer         Type = "server"
	TypeAuth           Type = "auth"
	TypeUnknown        Type = "unknown"
	TypeUI             Type = "ui"
	TypeInput          Type = "input"
	TypeAPIBadResponse Type = "apiBadResponse"
	// TypeAPI is an error raised by a third-party API.
	TypeAPI Type = "api"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeServer, TypeAuth, TypeUnknown, TypeUI, TypeInput, TypeAPIBadResponse, TypeAPI:
		return true
	default:
		return false
	}
}

// Level is the severity of an error.
type Level string

// Error levels.
const (
	LevelFatal   Level = "fatal"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelFatal, LevelError, LevelWarning:
		return true
	default:
		return false
	}
}

// defaultPublicSubject is shown when an error carries no subject of its own.
const defaultPublicSubject = "Unable to complete the request"
