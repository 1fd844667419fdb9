package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"facegate/internal/events"
	"facegate/internal/fanout"
	"facegate/internal/models"
	"facegate/internal/roster"
	"facegate/internal/store"

	"github.com/gin-gonic/gin"
)

const maxEventBody = 8 << 20

// terminalEvent is the nested payload a terminal pushes on every access
// event. Only the fields the resolver needs are extracted.
type terminalEvent struct {
	EventType             string `json:"eventType"`
	IPAddress             string `json:"ipAddress"`
	AccessControllerEvent *struct {
		EmployeeNoString string `json:"employeeNoString"`
		SubEventType     int    `json:"subEventType"`
	} `json:"AccessControllerEvent"`
}

// IngestEventHandler accepts a terminal's event report, JSON or multipart.
// Terminals ignore response bodies but retry on non-200, so every outcome,
// including malformed input, is reported in-body with HTTP 200.
func IngestEventHandler(c *gin.Context, resolver *events.Resolver) {
	ev, ok := extractEvent(c)
	if !ok {
		c.JSON(http.StatusOK, events.Outcome{Status: events.StatusFailed, Msg: "no event data found"})
		return
	}
	if ev.EventType != "AccessControllerEvent" {
		c.JSON(http.StatusOK, events.Outcome{Status: events.StatusIgnored, Msg: "unsupported event type"})
		return
	}
	if ev.AccessControllerEvent == nil {
		c.JSON(http.StatusOK, events.Outcome{Status: events.StatusIgnored, Msg: "missing event details"})
		return
	}

	out := resolver.Resolve(c.Request.Context(), events.RawEvent{
		IPAddress:  ev.IPAddress,
		EmployeeNo: ev.AccessControllerEvent.EmployeeNoString,
		SubEvent:   ev.AccessControllerEvent.SubEventType,
	})
	c.JSON(http.StatusOK, out)
}

// extractEvent pulls the event JSON out of the request. Multipart reports
// embed the JSON in one of the form values; scan for the part that carries
// an eventType.
func extractEvent(c *gin.Context) (*terminalEvent, bool) {
	ct := c.ContentType()
	switch {
	case strings.Contains(ct, "application/json"):
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
		if err != nil {
			return nil, false
		}
		var ev terminalEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, false
		}
		return &ev, true

	case strings.Contains(ct, "multipart/form-data"):
		form, err := c.MultipartForm()
		if err != nil {
			return nil, false
		}
		for _, values := range form.Value {
			for _, v := range values {
				if !strings.Contains(v, "eventType") {
					continue
				}
				var ev terminalEvent
				if err := json.Unmarshal([]byte(v), &ev); err == nil {
					return &ev, true
				}
			}
		}
		return nil, false

	default:
		return nil, false
	}
}

type CreateSiteRequest struct {
	Name              string `json:"name" binding:"required"`
	AttendanceSheetID string `json:"attendance_sheet_id"`
}

func CreateSiteHandler(c *gin.Context, db *store.Store) {
	var req CreateSiteRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	site := &models.Site{Name: req.Name, AttendanceSheetID: req.AttendanceSheetID}
	if err := db.CreateSite(c.Request.Context(), site); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, site)
}

type CreateDeviceRequest struct {
	SiteID    uint   `json:"site_id" binding:"required"`
	IPAddress string `json:"ip_address" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Role      string `json:"role"`
}

func CreateDeviceHandler(c *gin.Context, db *store.Store) {
	var req CreateDeviceRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUniversal
	}
	if req.Role != models.RoleEntry && req.Role != models.RoleExit && req.Role != models.RoleUniversal {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be entry, exit or universal"})
		return
	}
	if _, err := db.SiteByID(c.Request.Context(), req.SiteID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown site"})
		return
	}
	dev := &models.Device{
		SiteID:    req.SiteID,
		IPAddress: req.IPAddress,
		Username:  req.Username,
		Password:  req.Password,
		Role:      req.Role,
	}
	if err := db.CreateDevice(c.Request.Context(), dev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dev)
}

type CreatePersonRequest struct {
	AccountID          string `json:"account_id" binding:"required"`
	FullName           string `json:"full_name" binding:"required"`
	SiteID             uint   `json:"site_id"`
	Phone              string `json:"phone"`
	NotificationChatID int64  `json:"notification_chat_id"`
}

func CreatePersonHandler(c *gin.Context, db *store.Store) {
	var req CreatePersonRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := &models.Person{
		AccountID:          req.AccountID,
		FullName:           req.FullName,
		SiteID:             req.SiteID,
		Phone:              req.Phone,
		NotificationChatID: req.NotificationChatID,
	}
	if err := db.CreatePerson(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func OverviewHandler(c *gin.Context, db *store.Store) {
	sites, devices, persons, err := db.Counts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites, "devices": devices, "persons": persons})
}

// SyncHandler triggers a roster reconciliation pass and returns its report.
func SyncHandler(c *gin.Context, reconciler *roster.Reconciler) {
	if reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "roster sync not configured"})
		return
	}
	report, err := reconciler.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// EnrollHandler pushes an uploaded face image to every terminal of the
// person's site and reports per-device outcomes.
func EnrollHandler(c *gin.Context, db *store.Store, engine *fanout.Engine) {
	accountID := c.Param("account_id")

	person, err := db.PersonByAccountID(c.Request.Context(), accountID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown person"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxEventBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
		return
	}

	devices, err := db.DevicesBySite(c.Request.Context(), person.SiteID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(devices) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "site has no devices"})
		return
	}

	results := engine.Enroll(c.Request.Context(), devices, person.AccountID, person.FullName, image)

	status := "partial"
	if fanout.AllOK(results) {
		status = "success"
		person.PhotoStatus = true
		if err := db.UpdatePerson(c.Request.Context(), person); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "results": results})
}
