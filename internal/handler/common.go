package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// getUserID extracts the user_id stored by the JWT middleware and converts
// it to uint64.  JSON numbers in JWT claims arrive as float64, so a few
// representations are accepted.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case float64:
		if t < 0 {
			return 0, errors.New("negative user id")
		}
		return uint64(t), nil
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, errors.New("user id missing from context")
	}
}

// pathID parses the :id path parameter as a positive uint64.
func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
