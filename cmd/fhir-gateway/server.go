package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/config"
	"github.com/ehr/fhir-gateway/internal/domain/clinical"
	"github.com/ehr/fhir-gateway/internal/domain/encounter"
	"github.com/ehr/fhir-gateway/internal/domain/identity"
	"github.com/ehr/fhir-gateway/internal/domain/medication"
	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/middleware"
	"github.com/ehr/fhir-gateway/internal/platform/resource"
	"github.com/ehr/fhir-gateway/internal/platform/telemetry"
	"github.com/ehr/fhir-gateway/internal/platform/upstream"
)

func newUpstreamClient(cfg *config.Config, metrics *telemetry.Metrics, logger zerolog.Logger) (*upstream.Client, error) {
	var tokens upstream.TokenSource
	switch cfg.UpstreamAuthMode {
	case config.AuthBearer:
		tokens = upstream.StaticToken(cfg.UpstreamToken)
	case config.AuthJWT:
		key, err := cfg.SigningKey()
		if err != nil {
			return nil, err
		}
		assertion, err := upstream.NewSignedAssertion(cfg.UpstreamClientID, cfg.FHIRURL, key, 0)
		if err != nil {
			return nil, fmt.Errorf("upstream signed assertion: %w", err)
		}
		tokens = assertion
	}

	var breaker *upstream.BreakerConfig
	if cfg.BreakerEnabled {
		breaker = &upstream.BreakerConfig{
			ConsecutiveFailures: cfg.BreakerFailures,
			Cooldown:            cfg.BreakerCooldown,
		}
	}

	client, err := upstream.NewClient(upstream.ClientConfig{
		BaseURL:  cfg.FHIRURL,
		Timeout:  cfg.UpstreamTimeout,
		MaxPages: cfg.UpstreamMaxPages,
		Tokens:   tokens,
		Breaker:  breaker,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream client: %w", err)
	}
	return client, nil
}

// endpoint is one entry of the index served at "/".
type endpoint struct {
	name      string
	path      string
	byPatient bool
	patch     bool
}

func (ep endpoint) describe() map[string]string {
	routes := map[string]string{
		"GET":       ep.path,
		"POST":      ep.path,
		"GET_BY_ID": ep.path + "/:id",
	}
	if ep.byPatient {
		routes["GET_BY_PATIENT"] = ep.path + "/patient/:patientId"
	}
	if ep.patch {
		routes["PATCH"] = ep.path + "/:id"
	}
	return routes
}

func newServer(cfg *config.Config, client *upstream.Client, metrics *telemetry.Metrics, logger zerolog.Logger) (*echo.Echo, error) {
	nulls, err := cfg.NullPolicy()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	patients := upstream.NewGateway[identity.Patient](client, fhir.ResourcePatient)
	resolver := resource.NewResolver[identity.Patient](patients)

	// Patient
	patientSvc := identity.NewPatientService(patients, nulls, metrics, logger)
	identity.NewPatientHandler(patientSvc).RegisterRoutes(e.Group("/patients"))

	// Practitioner
	practitionerSvc := identity.NewPractitionerService(upstream.NewGateway[identity.Practitioner](client, fhir.ResourcePractitioner), metrics, logger)
	identity.NewPractitionerHandler(practitionerSvc).RegisterRoutes(e.Group("/practitioners"))

	// Encounter
	encounterSvc := encounter.NewService(upstream.NewGateway[encounter.Encounter](client, fhir.ResourceEncounter), resolver, metrics, logger)
	encounter.NewHandler(encounterSvc).RegisterRoutes(e.Group("/encounters"))

	// Clinical
	allergySvc := clinical.NewAllergyIntoleranceService(upstream.NewGateway[clinical.AllergyIntolerance](client, fhir.ResourceAllergyIntolerance), resolver, metrics, logger)
	resource.NewHandler(allergySvc).RegisterRoutes(e.Group("/allergy-intolerances"))

	conditionSvc := clinical.NewConditionService(upstream.NewGateway[clinical.Condition](client, fhir.ResourceCondition), resolver, metrics, logger)
	resource.NewHandler(conditionSvc).RegisterRoutes(e.Group("/conditions"))

	observationSvc := clinical.NewObservationService(upstream.NewGateway[clinical.Observation](client, fhir.ResourceObservation), resolver, metrics, logger)
	resource.NewHandler(observationSvc).RegisterRoutes(e.Group("/observations"))

	// Medication
	medicationSvc := medication.NewService(upstream.NewGateway[medication.MedicationRequest](client, fhir.ResourceMedicationRequest), resolver, metrics, logger)
	medication.NewHandler(medicationSvc).RegisterRoutes(e.Group("/medication-requests"))

	endpoints := []endpoint{
		{name: "patients", path: "/patients", patch: true},
		{name: "encounters", path: "/encounters", byPatient: true},
		{name: "allergyIntolerances", path: "/allergy-intolerances", byPatient: true},
		{name: "conditions", path: "/conditions", byPatient: true},
		{name: "observations", path: "/observations", byPatient: true},
		{name: "medicationRequests", path: "/medication-requests", byPatient: true},
		{name: "practitioners", path: "/practitioners"},
	}

	e.GET("/", func(c echo.Context) error {
		index := map[string]interface{}{"health": "/health"}
		for _, ep := range endpoints {
			index[ep.name] = ep.describe()
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":   true,
			"message":   "FHIR Complete Healthcare API",
			"version":   version,
			"endpoints": index,
		})
	})

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":   true,
			"message":   "Server is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"fhirUrl":   client.BaseURL(),
		})
	})

	e.GET("/health/upstream", func(c echo.Context) error {
		if err := client.Ping(c.Request().Context()); err != nil {
			zerolog.Ctx(c.Request().Context()).Warn().Err(err).Msg("upstream health check failed")
			return c.JSON(http.StatusServiceUnavailable, resource.ErrorResponse{
				Success: false,
				Error:   "Service unavailable",
				Message: "FHIR store is not reachable",
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "FHIR store is reachable",
			"fhirUrl": client.BaseURL(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return e, nil
}

func checkUpstream(ctx context.Context, cfg *config.Config, timeout time.Duration, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := newUpstreamClient(cfg, nil, zerolog.Nop())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		fmt.Fprintf(out, "FHIR store %s is not reachable: %v\n", client.BaseURL(), err)
		return fmt.Errorf("upstream check failed: %w", err)
	}
	fmt.Fprintf(out, "FHIR store %s is reachable (%s)\n", client.BaseURL(), time.Since(start).Round(time.Millisecond))
	return nil
}
