package models

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Result is the acknowledgement envelope sent back for streamer commands.
type Result struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Success(message string, data any) Result {
	return Result{Type: ResultSuccess, Message: message, Data: data}
}

func Failure(message string, code string) Result {
	return Result{Type: ResultError, Message: message, Error: code}
}
