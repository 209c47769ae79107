package utils

import "github.com/gofiber/fiber/v2"

// Envelope is the JSON shape of every API response. Meta carries pagination or cache
// hints on success, Details carries validation fields or probe results on failure.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SendSuccess sends a 200 envelope.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success envelope with status, defaulting to 200.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	return write(c, status, Envelope{Success: true, Message: message, Data: data})
}

// SendError sends an error envelope without details.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// OK sends a 200 envelope with metadata such as pagination.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return write(c, fiber.StatusOK, Envelope{Success: true, Message: message, Data: data, Meta: meta})
}

// Fail sends an error envelope carrying optional structured details.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	return write(c, status, Envelope{Message: message, Details: details})
}

func write(c *fiber.Ctx, status int, envelope Envelope) error {
	if envelope.Message == "" {
		envelope.Message = "error"
		if envelope.Success {
			envelope.Message = "success"
		}
	}
	return c.Status(status).JSON(envelope)
}
