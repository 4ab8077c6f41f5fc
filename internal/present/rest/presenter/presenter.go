package presenter

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ngonendi/edgestore/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func BadRequest(c echo.Context, err error) error {
	fmt.Println("Bad request:", err)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	fmt.Println("Bad request:", msg)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func NotFound(c echo.Context, msg string) error {
	fmt.Println("Not found:", msg)
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func Unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: msg})
}

func InternalError(c echo.Context, err error) error {
	fmt.Println("Internal error:", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// FromError maps domain errors onto status codes: missing resources become
// 404, remote-API storage failures become 502 with the remote code carried
// through, anything else is a 500.
func FromError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return NotFound(c, err.Error())
	}

	var storageErr domain.StorageError
	if errors.As(err, &storageErr) {
		fmt.Println("Storage error:", err)
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error: storageErr.Message,
			Code:  storageErr.Code,
		})
	}

	return InternalError(c, err)
}
