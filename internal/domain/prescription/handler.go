package prescription

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/inventory"
	"github.com/clinicore/clinicore/internal/domain/visit"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/lifecycle"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/prescriptions", h.Create)
	doctor.PUT("/prescriptions/:id", h.Update)
	doctor.POST("/prescriptions/:id/cancel", h.Cancel)
	doctor.POST("/prescriptions/:id/lock", h.Lock)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	staff.GET("/prescriptions", h.Search)
	staff.GET("/prescriptions/:id", h.Get)
	staff.GET("/visits/:id/prescription", h.GetByVisit)
	staff.POST("/prescriptions/:id/dispense", h.MarkDispensed)
}

func httpError(err error) error {
	var (
		tErr     *lifecycle.TransitionError
		stockErr *inventory.InsufficientStockError
	)
	switch {
	case errors.Is(err, ErrPrescriptionNotFound),
		errors.Is(err, visit.ErrVisitNotFound),
		errors.Is(err, inventory.ErrMedicineNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorizedVisit),
		errors.Is(err, ErrUnauthorizedPrescription):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrPrescriptionExists),
		errors.Is(err, ErrPrescriptionLocked),
		errors.Is(err, ErrPrescriptionCancelled),
		errors.Is(err, ErrPrescriptionAlreadyLocked),
		errors.As(err, &tErr):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &stockErr),
		errors.Is(err, inventory.ErrMedicineNotActive),
		errors.Is(err, ErrVisitNotExamined):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNoLines):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type prescriptionResponse struct {
	*Prescription
	Details []*Detail `json:"details"`
}

type createRequest struct {
	VisitID uuid.UUID   `json:"visit_id"`
	Lines   []LineInput `json:"lines"`
	Notes   *string     `json:"notes,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	requester := auth.IdentityFromContext(c.Request().Context())
	p, dets, err := h.svc.Create(c.Request().Context(), CreateInput{
		VisitID: req.VisitID,
		Doctor:  requester.DoctorID,
		Lines:   req.Lines,
		Notes:   req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, prescriptionResponse{Prescription: p, Details: dets})
}

type updateRequest struct {
	Lines []LineInput `json:"lines"`
	Notes *string     `json:"notes,omitempty"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	requester := auth.IdentityFromContext(c.Request().Context())
	p, dets, err := h.svc.Update(c.Request().Context(), id, requester.DoctorID, req.Lines, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, prescriptionResponse{Prescription: p, Details: dets})
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	requester := auth.IdentityFromContext(c.Request().Context())
	p, err := h.svc.Cancel(c.Request().Context(), id, requester.DoctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Lock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	requester := auth.IdentityFromContext(c.Request().Context())
	p, err := h.svc.Lock(c.Request().Context(), id, requester.DoctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) MarkDispensed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.MarkDispensed(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, dets, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, prescriptionResponse{Prescription: p, Details: dets})
}

func (h *Handler) GetByVisit(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, dets, err := h.svc.GetByVisit(c.Request().Context(), visitID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, prescriptionResponse{Prescription: p, Details: dets})
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"visit_id", "patient_id", "doctor_id", "status"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
