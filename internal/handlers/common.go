package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// parseAccountID reads the authenticated account id that the auth
// middleware stored in locals.
func parseAccountID(c *fiber.Ctx) (int64, error) {
	raw, ok := c.Locals("account_id").(string)
	if !ok {
		return 0, errors.New("missing account id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid account id")
	}
	return id, nil
}

func hasTutorCapability(role string) bool {
	return role == "tutor" || role == "both"
}

func hasStudentCapability(role string) bool {
	return role == "student" || role == "both"
}
