package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// SuccessResponse is the envelope of every successful call.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Count   *int        `json:"count,omitempty"`
	Message string      `json:"message"`
}

// ErrorResponse is the envelope of every failed call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler exposes a Service over REST.
type Handler[R any, P interface {
	*R
	Model
}] struct {
	svc *Service[R, P]
}

func NewHandler[R any, P interface {
	*R
	Model
}](svc *Service[R, P]) *Handler[R, P] {
	return &Handler[R, P]{svc: svc}
}

// RegisterRoutes mounts list, create and read on g, plus the by-patient list
// for types that carry a subject.
func (h *Handler[R, P]) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	if h.svc.spec.HasSubject() {
		g.GET("/patient/:patientId", h.ListByPatient)
	}
}

func (h *Handler[R, P]) List(c echo.Context) error {
	list, err := h.svc.List(c.Request().Context())
	if err != nil {
		return WriteError(c, err, "Failed to retrieve "+h.svc.spec.Plural)
	}
	return WriteList(c, list, fmt.Sprintf("Successfully retrieved %d %s", len(list), h.svc.spec.Plural))
}

func (h *Handler[R, P]) Get(c echo.Context) error {
	id := c.Param("id")
	r, err := h.svc.GetByID(c.Request().Context(), id)
	if err != nil {
		return WriteError(c, err, "Failed to retrieve "+h.svc.spec.Noun)
	}
	if r == nil {
		return WriteError(c, Errorf(KindNotFound, "%s with ID %s not found", title(h.svc.spec.Noun), id), "")
	}
	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    r,
		Message: title(h.svc.spec.Noun) + " retrieved successfully",
	})
}

func (h *Handler[R, P]) Create(c echo.Context) error {
	r := P(new(R))
	if err := DecodeBody(c, r, h.svc.spec.Noun); err != nil {
		return WriteError(c, err, "")
	}
	created, err := h.svc.Create(c.Request().Context(), r)
	if err != nil {
		return WriteError(c, err, "Failed to create "+h.svc.spec.Noun)
	}
	return c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Data:    created,
		Message: title(h.svc.spec.Noun) + " created successfully",
	})
}

func (h *Handler[R, P]) ListByPatient(c echo.Context) error {
	patientID := c.Param("patientId")
	list, err := h.svc.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return WriteError(c, err, "Failed to retrieve "+h.svc.spec.Plural+" for patient")
	}
	return WriteList(c, list, fmt.Sprintf("Successfully retrieved %d %s for patient %s", len(list), h.svc.spec.Plural, patientID))
}

// DecodeBody reads a non-empty JSON object from the request into v.
func DecodeBody(c echo.Context, v interface{}, noun string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return &Error{Kind: KindInvalidBody, Message: "Failed to read request body", Err: err}
	}
	var fields fhir.Fields
	if err := json.Unmarshal(body, &fields); err != nil {
		if len(body) == 0 {
			return Errorf(KindInvalidBody, "%s data is required", title(noun))
		}
		return &Error{Kind: KindInvalidBody, Message: "Request body must be a JSON object", Err: err}
	}
	if len(fields) == 0 {
		return Errorf(KindInvalidBody, "%s data is required", title(noun))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{Kind: KindInvalidBody, Message: "Invalid " + noun + " data: " + err.Error(), Err: err}
	}
	return nil
}

// WriteList answers 200 with data and count.
func WriteList[T any](c echo.Context, list []T, message string) error {
	if list == nil {
		list = []T{}
	}
	n := len(list)
	return c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: list, Count: &n, Message: message})
}

// WriteError answers with the status HTTPStatus maps err to. Server-side
// failures are logged and answered with fallback when it is set.
func WriteError(c echo.Context, err error, fallback string) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status := HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("kind", string(KindOf(err))).Msg("request failed")
		if fallback != "" {
			message = fallback
		}
	}
	return c.JSON(status, ErrorResponse{
		Success: false,
		Error:   ErrorLabel(status),
		Message: message,
	})
}

// ErrorLabel is the short "error" member of the failure envelope.
func ErrorLabel(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "Bad request"
	case status == http.StatusNotFound:
		return "Not found"
	case status == http.StatusConflict:
		return "Conflict"
	case status >= 500 || http.StatusText(status) == "":
		return "Internal server error"
	default:
		return http.StatusText(status)
	}
}
