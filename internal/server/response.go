package server

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"supportbot/internal/logger"
)

type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) Response[T] {
	return Response[T]{Success: true, Message: message, Data: data}
}

var validate = validator.New()

// ValidateRequest turns validation failures into a 400 naming the offending fields.
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fe.Namespace() + " failed " + fe.Tag()
	}
	return fiber.NewError(fiber.StatusBadRequest, "invalid request: "+strings.Join(fields, "; "))
}

func errorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error(module, "Request failed", map[string]interface{}{
				"path":  ctx.Path(),
				"error": err.Error(),
			})
		}
		return ctx.Status(code).JSON(Response[any]{Success: false, Message: message})
	}
}
