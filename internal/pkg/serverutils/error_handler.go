package serverutils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// ErrorHandlerMiddleware recovers panics in handlers so one bad request
// cannot take the gateway down.
func ErrorHandlerMiddleware() fiber.Handler {
	return recover.New()
}
