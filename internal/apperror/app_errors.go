package apperror

import "errors"

var (
	ErrRoomFull            = errors.New("room is full")
	ErrDuplicateConnection = errors.New("connection already holds a seat in this room")
	ErrNotYourTurn         = errors.New("it's not your turn")
	ErrInvalidCell         = errors.New("invalid cell")
	ErrGameNotActive       = errors.New("game is not active")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomAlreadyExists   = errors.New("room already exists")
	ErrBadRequest          = errors.New("bad request")
	ErrNotSeated           = errors.New("connection holds no seat in this room")
)

// Code is the error code sent to the client in an error event.
type Code string

const (
	CodeRoomFull            Code = "RoomFull"
	CodeDuplicateConnection Code = "DuplicateConnection"
	CodeNotYourTurn         Code = "NotYourTurn"
	CodeInvalidCell         Code = "InvalidCell"
	CodeGameNotActive       Code = "GameNotActive"
	CodeRoomNotFound        Code = "RoomNotFound"
	CodeRoomAlreadyExists   Code = "RoomAlreadyExists"
	CodeBadRequest          Code = "BadRequest"
	CodeInternal            Code = "Internal"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrRoomFull, CodeRoomFull},
	{ErrDuplicateConnection, CodeDuplicateConnection},
	{ErrNotYourTurn, CodeNotYourTurn},
	{ErrInvalidCell, CodeInvalidCell},
	{ErrGameNotActive, CodeGameNotActive},
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrRoomAlreadyExists, CodeRoomAlreadyExists},
	{ErrBadRequest, CodeBadRequest},
	{ErrNotSeated, CodeBadRequest},
}

// CodeOf maps an error to its wire code. Anything unknown is CodeInternal.
func CodeOf(err error) Code {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeInternal
}

// IsValidation reports whether err is an expected, caller-caused failure.
func IsValidation(err error) bool {
	return CodeOf(err) != CodeInternal
}
