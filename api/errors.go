package api

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"
)

type MessageCode string

const (
	// request plumbing
	MessageCodeNoIdProvided     MessageCode = "no_id_provided"
	MessageCodeInvalidId        MessageCode = "invalid_id"
	MessageCodeInvalidRequest   MessageCode = "invalid_request"
	MessageCodeInvalidTimeFrame MessageCode = "invalid_time_frame"
	MessageCodeInvalidLimit     MessageCode = "invalid_limit"
	MessageCodeRequestCancelled MessageCode = "request_cancelled"
	MessageCodeInternalError    MessageCode = "internal_error"

	// request body validation
	MessageCodeNameRequired            MessageCode = "name_required"
	MessageCodeTextRequired            MessageCode = "text_required"
	MessageCodeExecutableRequired      MessageCode = "executable_required"
	MessageCodeExecutableNotFound      MessageCode = "executable_not_found"
	MessageCodeExecutableNotFile       MessageCode = "executable_not_file"
	MessageCodeExecutableNotExecutable MessageCode = "executable_not_executable"
	MessageCodeWdNotFound              MessageCode = "wd_not_found"
	MessageCodeWdNotDir                MessageCode = "wd_not_dir"

	// sessions
	MessageCodeSessionNotFound       MessageCode = "session_not_found"
	MessageCodeErrorGettingSession   MessageCode = "error_getting_session"
	MessageCodeCouldNotCreateSession MessageCode = "could_not_create_session"
	MessageCodeSessionNotRunning     MessageCode = "session_not_running"

	// groups
	MessageCodeInvalidGroup        MessageCode = "invalid_group"
	MessageCodeInvalidColor        MessageCode = "invalid_color"
	MessageCodeGroupNotFound       MessageCode = "group_not_found"
	MessageCodeGroupAlreadyExists  MessageCode = "group_already_exists"
	MessageCodeCouldNotCreateGroup MessageCode = "could_not_create_group"
)

// Error is the JSON error body every failing endpoint responds with. Code is
// the HTTP status and stays out of the body's stable fields.
type Error struct {
	MessageCode    MessageCode `json:"message_code"`
	MessageDefault string      `json:"message_default"`
	Code           int
	Details        string `json:"details"`
}

func (e *Error) Error() string {
	return e.MessageDefault
}

func MakeE(messageCode MessageCode, messageDefault string, code int, details string) *Error {
	return &Error{
		MessageCode:    messageCode,
		MessageDefault: messageDefault,
		Code:           code,
		Details:        details,
	}
}

func (rw *ReqWrapper) WriteHeader(code int) error {
	if rw.responded {
		return errors.New("attempted to write header after responding")
	}
	rw.w.WriteHeader(code)
	rw.responded = true
	return nil
}

// errorSite reports the file:line that raised the error, stepping over the
// rw.E shim when the call went through it.
func errorSite() (string, int) {
	pc, file, line, _ := runtime.Caller(2)
	if fn := runtime.FuncForPC(pc); fn != nil && strings.HasSuffix(fn.Name(), ".E") {
		_, file, line, _ = runtime.Caller(3)
	}
	return filepath.Base(file), line
}

func (rw *ReqWrapper) WriteError(err *Error) error {
	if rw.responded {
		return errors.New("attempted to write error after responding")
	}
	file, line := errorSite()
	rw.Infof("%s:%d: responding with error %s (%s)\n", file, line, err.MessageDefault, err.Details)
	rw.MarshalAndRespondWithStatus(err, err.Code)
	return nil
}

func (rw *ReqWrapper) E(messageCode MessageCode, messageDefault string, code int, details string) {
	_ = rw.WriteError(MakeE(messageCode, messageDefault, code, details))
}
