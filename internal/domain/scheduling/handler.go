package scheduling

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ads/dental/internal/domain/billing"
	"github.com/ads/dental/internal/platform/auth"
	"github.com/ads/dental/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Visible to any authenticated caller; ownership is checked by the service.
	readGroup := api.Group("", auth.RequireAuthenticated())
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.GET("/appointments/:id/bill", h.GetBill)

	// Patients act on their own appointments, office managers on all.
	patientGroup := api.Group("", auth.RequireRole(auth.RoleOfficeManager, auth.RolePatient))
	patientGroup.POST("/appointments", h.CreateAppointment)
	patientGroup.PUT("/appointments/:id/cancel", h.CancelAppointment)
	patientGroup.PUT("/appointments/:id/reschedule", h.RescheduleAppointment)
	patientGroup.GET("/patients/:id/appointments", h.ListByPatient)

	dentistGroup := api.Group("", auth.RequireRole(auth.RoleOfficeManager, auth.RoleDentist))
	dentistGroup.GET("/dentists/:id/appointments", h.ListByDentist)

	opsGroup := api.Group("", auth.RequireRole(auth.RoleOfficeManager))
	opsGroup.GET("/appointments", h.ListAppointments)
	opsGroup.PUT("/appointments/:id", h.UpdateAppointment)
	opsGroup.DELETE("/appointments/:id", h.DeleteAppointment)
	opsGroup.POST("/appointments/:id/bills", h.GenerateBill)
	opsGroup.POST("/appointments/:id/payments", h.MakePayment)
	opsGroup.GET("/bills/overdue", h.OverdueBills)
}

func callerFrom(c echo.Context) Caller {
	ctx := c.Request().Context()
	return NewCaller(auth.UserIDFromContext(ctx), auth.EmailFromContext(ctx), auth.RolesFromContext(ctx))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// httpError maps domain errors to HTTP status codes. Unknown errors become a
// 500 without leaking their text.
func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "you are not allowed to perform this action")
	case errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrOverdueBills),
		errors.Is(err, ErrInvalidCancellationStatus),
		errors.Is(err, ErrInvalidRescheduleStatus):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, billing.ErrExceedsBalance),
		errors.Is(err, ErrNoBillAssociated),
		errors.Is(err, ErrValidation),
		errors.Is(err, billing.ErrNegativeAmount),
		errors.Is(err, billing.ErrNonPositiveAmount),
		errors.Is(err, billing.ErrInvalidCurrency),
		errors.Is(err, billing.ErrInvalidSymbol),
		errors.Is(err, billing.ErrAmountPrecision),
		errors.Is(err, billing.ErrCurrencyMismatch),
		errors.Is(err, billing.ErrDueDateBeforeBilling):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

// -- Appointment Handlers --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), callerFrom(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), callerFrom(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var f Filter
	if d := c.QueryParam("date"); d != "" {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
		f.Date = &day
	}
	f.Status = Status(strings.ToUpper(c.QueryParam("status")))
	f.PatientEmail = c.QueryParam("patient_email")
	f.DentistEmail = c.QueryParam("dentist_email")
	f.SurgeryCity = c.QueryParam("surgery_city")
	f.SurgeryCountry = c.QueryParam("surgery_country")
	f.PaymentStatus = billing.PaymentStatus(strings.ToUpper(c.QueryParam("payment_status")))

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), callerFrom(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), callerFrom(c), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), callerFrom(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.CancelAppointment(c.Request().Context(), callerFrom(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type rescheduleBody struct {
	NewDateTime time.Time `json:"new_date_time"`
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body rescheduleBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.RescheduleAppointment(c.Request().Context(), callerFrom(c), id, body.NewDateTime)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), callerFrom(c), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByDentist(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDentist(c.Request().Context(), callerFrom(c), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Billing Handlers --

type billBody struct {
	Amount         decimal.Decimal `json:"amount"`
	CurrencyCode   string          `json:"currency_code"`
	CurrencySymbol string          `json:"currency_symbol"`
	DueDate        string          `json:"due_date"`
}

func (h *Handler) GenerateBill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body billBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	due, err := time.Parse("2006-01-02", body.DueDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid due_date, expected YYYY-MM-DD")
	}
	b, err := h.svc.GenerateBill(c.Request().Context(), callerFrom(c), id, BillRequest{
		Amount:         body.Amount,
		CurrencyCode:   body.CurrencyCode,
		CurrencySymbol: body.CurrencySymbol,
		DueDate:        due,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBill(c.Request().Context(), callerFrom(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type paymentBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) MakePayment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body paymentBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.MakePayment(c.Request().Context(), callerFrom(c), id, body.Amount)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) OverdueBills(c echo.Context) error {
	items, err := h.svc.OverdueBillsReport(c.Request().Context(), callerFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  items,
		"total": len(items),
	})
}
