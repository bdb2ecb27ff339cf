package appointment

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-engine/internal/middleware"
	"github.com/jwalitptl/booking-engine/internal/model"
	ledger "github.com/jwalitptl/booking-engine/internal/service/appointment"
	"github.com/jwalitptl/booking-engine/internal/service/availability"
	"github.com/jwalitptl/booking-engine/internal/service/calendar"
	"github.com/jwalitptl/booking-engine/internal/service/query"
	"github.com/jwalitptl/booking-engine/pkg/errors"
	"github.com/jwalitptl/booking-engine/pkg/httputil"
	"github.com/jwalitptl/booking-engine/pkg/pagination"
)

type Handler struct {
	ledger   *ledger.Service
	queries  *query.Service
	calendar *calendar.Service
	resolver *availability.Resolver
}

func NewHandler(l *ledger.Service, q *query.Service, cal *calendar.Service, r *availability.Resolver) *Handler {
	return &Handler{ledger: l, queries: q, calendar: cal, resolver: r}
}

// RegisterRoutes mounts every appointment route on rg. rg must already run
// the authentication middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireAdmin gin.HandlerFunc) {
	appointments := rg.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/check-availability", h.CheckAvailability)

		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.DELETE("/:id", requireAdmin, h.DeleteAppointment)
		appointments.PUT("/:id/status", h.UpdateStatus)
		appointments.PUT("/:id/reschedule", h.Reschedule)
		appointments.PUT("/:id/confirm", h.shortcut(model.AppointmentStatusConfirmed))
		appointments.PUT("/:id/cancel", h.shortcut(model.AppointmentStatusCancelled))
		appointments.PUT("/:id/complete", h.shortcut(model.AppointmentStatusCompleted))
		appointments.PUT("/:id/no-show", h.shortcut(model.AppointmentStatusNoShow))

		doctor := appointments.Group("/doctor/:id")
		doctor.GET("", h.feed(model.RolePractitioner))
		doctor.GET("/all", h.feedAll(model.RolePractitioner))
		doctor.GET("/date", h.DoctorDay)
		doctor.GET("/week", h.week(model.RolePractitioner))
		doctor.GET("/month", h.month(model.RolePractitioner))
		doctor.GET("/count", h.count(model.RolePractitioner))
		doctor.GET("/slots", h.OpenSlots)

		patient := appointments.Group("/patient/:id")
		patient.GET("", h.feed(model.RoleRequester))
		patient.GET("/all", h.feedAll(model.RoleRequester))
		patient.GET("/week", h.week(model.RoleRequester))
		patient.GET("/month", h.month(model.RoleRequester))
		patient.GET("/count", h.count(model.RoleRequester))
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, err)
		return
	}
	date, tod, err := parseSlot(req.Date, req.Time)
	if err != nil {
		h.fail(c, err)
		return
	}

	apt, err := h.ledger.CreateAppointment(c.Request.Context(), actor, &model.Appointment{
		PractitionerID: req.PractitionerID,
		RequesterID:    req.RequesterID,
		Date:           date,
		Time:           tod,
		Reason:         req.Reason,
		Notes:          req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	apt, err := h.ledger.GetAppointment(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	var req model.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, err)
		return
	}
	apt, err := h.ledger.UpdateAppointment(c.Request.Context(), actor, id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	status, err := model.ParseAppointmentStatus(c.Query("status"))
	if err != nil {
		h.fail(c, errors.Validation(err.Error()))
		return
	}
	h.transition(c, actor, id, status)
}

func (h *Handler) shortcut(to model.AppointmentStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, id, ok := h.actorAndID(c)
		if !ok {
			return
		}
		h.transition(c, actor, id, to)
	}
}

func (h *Handler) transition(c *gin.Context, actor model.Actor, id int64, to model.AppointmentStatus) {
	apt, err := h.ledger.Transition(c.Request.Context(), actor, id, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) Reschedule(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	date, tod, err := parseSlot(c.Query("newDate"), c.Query("newTime"))
	if err != nil {
		h.fail(c, err)
		return
	}
	apt, err := h.ledger.Reschedule(c.Request.Context(), actor, id, date, tod)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	if err := h.ledger.DeleteAppointment(c.Request.Context(), actor, id); err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id})
}

// ListAppointments accepts practitionerId and requesterId on top of the
// common list parameters; non-admins are pinned to themselves.
func (h *Handler) ListAppointments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	params, err := listParams(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if params.Filter.PractitionerID, err = optionalID(c, "practitionerId"); err != nil {
		h.fail(c, err)
		return
	}
	if params.Filter.RequesterID, err = optionalID(c, "requesterId"); err != nil {
		h.fail(c, err)
		return
	}

	page, err := h.queries.List(c.Request.Context(), actor, params)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, page)
}

func (h *Handler) feed(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, subject, ok := h.actorAndSubject(c, role)
		if !ok {
			return
		}
		params, err := listParams(c)
		if err != nil {
			h.fail(c, err)
			return
		}
		page, err := h.queries.Feed(c.Request.Context(), actor, subject, params)
		if err != nil {
			h.fail(c, err)
			return
		}
		httputil.RespondWithSuccess(c, page)
	}
}

func (h *Handler) feedAll(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, subject, ok := h.actorAndSubject(c, role)
		if !ok {
			return
		}
		params, err := listParams(c)
		if err != nil {
			h.fail(c, err)
			return
		}
		items, err := h.queries.FeedAll(c.Request.Context(), actor, subject, params.Filter, params.Sort)
		if err != nil {
			h.fail(c, err)
			return
		}
		httputil.RespondWithSuccess(c, items)
	}
}

func (h *Handler) DoctorDay(c *gin.Context) {
	actor, subject, ok := h.actorAndSubject(c, model.RolePractitioner)
	if !ok {
		return
	}
	date, err := requiredDate(c, "date")
	if err != nil {
		h.fail(c, err)
		return
	}
	items, err := h.queries.ByDate(c.Request.Context(), actor, subject.ID, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) week(role model.Role) gin.HandlerFunc {
	return h.calendarView(role, h.calendar.Week)
}

func (h *Handler) month(role model.Role) gin.HandlerFunc {
	return h.calendarView(role, h.calendar.Month)
}

type viewFunc func(ctx context.Context, actor, subject model.Actor, anchor model.Date) (*model.CalendarView, error)

// calendarView anchors on ?date, defaulting to today.
func (h *Handler) calendarView(role model.Role, build viewFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, subject, ok := h.actorAndSubject(c, role)
		if !ok {
			return
		}
		anchor := h.resolver.Today()
		if raw := c.Query("date"); raw != "" {
			d, err := model.ParseDate(raw)
			if err != nil {
				h.fail(c, errors.Validation(err.Error()))
				return
			}
			anchor = d
		}
		view, err := build(c.Request.Context(), actor, subject, anchor)
		if err != nil {
			h.fail(c, err)
			return
		}
		httputil.RespondWithSuccess(c, view)
	}
}

func (h *Handler) count(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, subject, ok := h.actorAndSubject(c, role)
		if !ok {
			return
		}
		n, err := h.queries.Count(c.Request.Context(), actor, subject)
		if err != nil {
			h.fail(c, err)
			return
		}
		httputil.RespondWithSuccess(c, gin.H{"count": n})
	}
}

func (h *Handler) CheckAvailability(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	practitionerID, err := optionalID(c, "doctorId")
	if err != nil {
		h.fail(c, err)
		return
	}
	if practitionerID == 0 {
		h.fail(c, errors.Validation("doctorId is required"))
		return
	}
	date, tod, err := parseSlot(c.Query("date"), c.Query("time"))
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.resolver.CheckAvailability(c.Request.Context(), practitionerID, date, tod)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

// OpenSlots lists bookable slots; any authenticated caller may browse them.
func (h *Handler) OpenSlots(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	practitionerID, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	from, err := requiredDate(c, "from")
	if err != nil {
		h.fail(c, err)
		return
	}
	to := from
	if c.Query("to") != "" {
		if to, err = requiredDate(c, "to"); err != nil {
			h.fail(c, err)
			return
		}
	}
	slots, err := h.resolver.OpenSlots(c.Request.Context(), practitionerID, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}

// fail records err for the error middleware and writes the response.
func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	httputil.RespondWithError(c, err)
}

func (h *Handler) actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		h.fail(c, errors.Unauthorized(nil))
	}
	return actor, ok
}

func (h *Handler) actorAndID(c *gin.Context) (model.Actor, int64, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return actor, 0, false
	}
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return actor, 0, false
	}
	return actor, id, true
}

func (h *Handler) actorAndSubject(c *gin.Context, role model.Role) (model.Actor, model.Actor, bool) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return actor, model.Actor{}, false
	}
	return actor, model.Actor{Role: role, ID: id}, true
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest("invalid id", err)
	}
	return id, nil
}

func optionalID(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validation("invalid " + key)
	}
	return id, nil
}

func requiredDate(c *gin.Context, key string) (model.Date, error) {
	raw := c.Query(key)
	if raw == "" {
		return model.Date{}, errors.Validation(key + " is required")
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return model.Date{}, errors.Validation(err.Error())
	}
	return d, nil
}

func parseSlot(rawDate, rawTime string) (model.Date, model.TimeOfDay, error) {
	date, err := model.ParseDate(rawDate)
	if err != nil {
		return model.Date{}, 0, errors.Validation(err.Error())
	}
	tod, err := model.ParseTimeOfDay(rawTime)
	if err != nil {
		return model.Date{}, 0, errors.Validation(err.Error())
	}
	return date, tod, nil
}

// listParams reads status, scope, from, to, sort, direction, page and size.
func listParams(c *gin.Context) (model.ListParams, error) {
	var params model.ListParams

	if raw := c.Query("status"); raw != "" && !strings.EqualFold(raw, model.StatusAll) {
		status, err := model.ParseAppointmentStatus(raw)
		if err != nil {
			return params, errors.Validation(err.Error())
		}
		params.Filter.Status = status
	}

	scope, err := model.ParseTimeScope(c.Query("scope"))
	if err != nil {
		return params, errors.Validation(err.Error())
	}
	params.Filter.Scope = scope

	for key, dst := range map[string]*model.Date{"from": &params.Filter.From, "to": &params.Filter.To} {
		if raw := c.Query(key); raw != "" {
			d, err := model.ParseDate(raw)
			if err != nil {
				return params, errors.Validation(err.Error())
			}
			*dst = d
		}
	}

	if raw := c.Query("sort"); raw != "" {
		field, err := model.ParseSortField(raw)
		if err != nil {
			return params, errors.Validation(err.Error())
		}
		params.Sort = model.SortOrder{Field: field, Dir: model.SortAsc}
		switch model.SortDirection(c.Query("direction")) {
		case model.SortDesc:
			params.Sort.Dir = model.SortDesc
		case model.SortAsc, "":
		default:
			return params, errors.Validation("direction must be asc or desc")
		}
	}

	// toggle is the column the client clicked, applied to the current order.
	if raw := c.Query("toggle"); raw != "" {
		field, err := model.ParseSortField(raw)
		if err != nil {
			return params, errors.Validation(err.Error())
		}
		current := params.Sort
		if current.Field == "" {
			current = model.DefaultSort()
		}
		params.Sort = current.Toggle(field)
	}

	p := pagination.FromContext(c)
	params.Page, params.Size = p.Page, p.Size
	return params, nil
}
