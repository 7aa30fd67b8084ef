package server

import "github.com/gofiber/fiber/v2"

// ErrorCode is the backend-facing status carried in every response.
type ErrorCode int

const (
	CodeOK       ErrorCode = 0
	CodeInvalid  ErrorCode = 1 // payload rejected, do not retry as-is
	CodeInternal ErrorCode = 2
)

// Response is the envelope the backend expects.
type Response struct {
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	Data      any       `json:"data"`
}

// SendSuccess writes a success envelope.
func SendSuccess(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{ErrorCode: CodeOK, Message: message, Data: data})
}

// SendErrorWithType writes an error envelope with the given code and optional details.
func SendErrorWithType(c *fiber.Ctx, status int, message string, code ErrorCode, data any) error {
	return c.Status(status).JSON(Response{ErrorCode: code, Message: message, Data: data})
}
