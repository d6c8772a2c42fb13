package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	any := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist, auth.RolePatient))
	any.GET("/shifts", h.ListShifts)
	any.GET("/shifts/:id", h.GetShift)
	any.POST("/appointments", h.Book)
	any.GET("/appointments/:id", h.GetAppointment)
	any.POST("/appointments/:id/cancel", h.Cancel)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	staff.GET("/appointments", h.SearchAppointments)
	staff.POST("/appointments/:id/no-show", h.MarkNoShow)
	staff.GET("/duties", h.ListDuties)
	staff.GET("/duties/:id", h.GetDuty)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/shifts", h.CreateShift)
	admin.POST("/duties", h.AssignDuty)
	admin.POST("/duties/:id/cancel", h.CancelDuty)
	admin.POST("/duties/:id/restore", h.RestoreDuty)
}

// httpError maps domain errors to HTTP statuses.
func httpError(err error) error {
	var tErr *lifecycle.TransitionError
	switch {
	case errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrDutyNotFound),
		errors.Is(err, ErrShiftNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDayFull),
		errors.Is(err, ErrShiftFull),
		errors.Is(err, ErrOverlappingAppointment),
		errors.Is(err, ErrDutyOverlap),
		errors.Is(err, ErrDutyNotActive),
		errors.As(err, &tErr):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrCannotBookPastDate),
		errors.Is(err, ErrShiftAlreadyEnded),
		errors.Is(err, ErrExceedsShiftTime),
		errors.Is(err, ErrDoctorNotOnDuty),
		errors.Is(err, ErrDoctorNotAvailable),
		errors.Is(err, ErrCancelTooLate):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// parseDate accepts "2006-01-02" or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// -- Shift Handlers --

func (h *Handler) CreateShift(c echo.Context) error {
	var sh Shift
	if err := c.Bind(&sh); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateShift(c.Request().Context(), &sh); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, sh)
}

func (h *Handler) GetShift(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sh, err := h.svc.GetShift(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sh)
}

func (h *Handler) ListShifts(c echo.Context) error {
	items, err := h.svc.ListShifts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// -- Duty Handlers --

type assignDutyRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	ShiftID  uuid.UUID `json:"shift_id"`
	Date     string    `json:"date"`
	MaxSlots *int      `json:"max_slots,omitempty"`
}

func (h *Handler) AssignDuty(c echo.Context) error {
	var req assignDutyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
	}
	d, err := h.svc.AssignDuty(c.Request().Context(), AssignDutyInput{
		DoctorID: req.DoctorID,
		ShiftID:  req.ShiftID,
		Date:     date,
		MaxSlots: req.MaxSlots,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDuty(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDuty(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDuties(c echo.Context) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date query parameter is required")
	}
	items, err := h.svc.ListDutiesByDate(c.Request().Context(), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type cancelDutyRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelDuty(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelDutyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	report, err := h.svc.CancelDutyAndReschedule(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) RestoreDuty(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.RestoreDuty(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// -- Appointment Handlers --

type bookRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	ShiftID     uuid.UUID `json:"shift_id"`
	Date        string    `json:"date"`
	Reason      *string   `json:"reason,omitempty"`
	WalkInName  *string   `json:"walk_in_name,omitempty"`
	BookingType string    `json:"booking_type,omitempty"`
}

func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
	}

	in := BookInput{
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		ShiftID:     req.ShiftID,
		Date:        date,
		BookingType: BookingType(req.BookingType),
		Reason:      req.Reason,
		WalkInName:  req.WalkInName,
	}
	id := auth.IdentityFromContext(c.Request().Context())
	if id.Role == auth.RolePatient {
		// Patients book online and only for themselves.
		if id.PatientID == uuid.Nil {
			return echo.NewHTTPError(http.StatusForbidden, "token carries no patient id")
		}
		in.PatientID = id.PatientID
		in.BookingType = BookingOnline
		in.BookedBy = BookedByPatient
	} else {
		in.BookedBy = BookedByReceptionist
	}

	a, err := h.svc.Book(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	requester := auth.IdentityFromContext(c.Request().Context())
	if requester.Role == auth.RolePatient && requester.PatientID != a.PatientID {
		return echo.NewHTTPError(http.StatusForbidden, "not your appointment")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SearchAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"patient_id", "doctor_id", "shift_id", "date", "status"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.svc.SearchAppointments(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type cancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	requester := auth.IdentityFromContext(c.Request().Context())
	actor := Actor{Role: requester.Role, PatientID: requester.PatientID}
	a, err := h.svc.Cancel(c.Request().Context(), id, actor, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.MarkNoShow(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}
