package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/resource"
)

// PatientHandler serves /patients: the generic routes plus PATCH.
type PatientHandler struct {
	*resource.Handler[Patient, *Patient]
	svc *PatientService
}

func NewPatientHandler(svc *PatientService) *PatientHandler {
	return &PatientHandler{Handler: resource.NewHandler(svc.Service), svc: svc}
}

func (h *PatientHandler) RegisterRoutes(g *echo.Group) {
	h.Handler.RegisterRoutes(g)
	g.PATCH("/:id", h.Update)
}

func (h *PatientHandler) Update(c echo.Context) error {
	var fields fhir.Fields
	if err := resource.DecodeBody(c, &fields, "update"); err != nil {
		return resource.WriteError(c, err, "")
	}
	updated, err := h.svc.Update(c.Request().Context(), c.Param("id"), fields)
	if err != nil {
		return resource.WriteError(c, err, "Failed to update patient")
	}
	return c.JSON(http.StatusOK, resource.SuccessResponse{
		Success: true,
		Data:    updated,
		Message: "Patient updated successfully",
	})
}

// NewPractitionerHandler serves /practitioners with the generic routes.
func NewPractitionerHandler(svc *resource.Service[Practitioner, *Practitioner]) *resource.Handler[Practitioner, *Practitioner] {
	return resource.NewHandler(svc)
}
