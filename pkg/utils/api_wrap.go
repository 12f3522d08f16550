package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"churchhub/internal/entitlement"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// LoggerKey is where RequestLogger stores the process logger on the gin
// context.
const LoggerKey = "logger"

func TraceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

// Logger returns the request's logger, or the logrus standard logger when
// none was set.
func Logger(c *gin.Context) *logrus.Entry {
	log := logrus.StandardLogger()
	if v, ok := c.Get(LoggerKey); ok {
		if l, ok := v.(*logrus.Logger); ok {
			log = l
		}
	}
	return log.WithField("trace_id", TraceID(c))
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	respond(c, http.StatusOK, data, message)
}

func RespondCreated(c *gin.Context, data interface{}, message string) {
	respond(c, http.StatusCreated, data, message)
}

func respond(c *gin.Context, code int, data interface{}, message string) {
	c.JSON(code, APIResponse{
		Status:  "success",
		Code:    code,
		Message: message,
		TraceID: TraceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: TraceID(c),
	})
}

func HandleServiceError(c *gin.Context, err error) {
	var validation *entitlement.ValidationError
	var invalidState *entitlement.InvalidStateError

	switch {
	case errors.As(err, &validation):
		RespondError(c, http.StatusBadRequest, validation.Error())
	case errors.As(err, &invalidState):
		RespondError(c, http.StatusConflict, invalidState.Error())
	case errors.Is(err, ErrSubscriptionNotFound):
		RespondError(c, http.StatusNotFound, "Subscription not found")
	case errors.Is(err, ErrPlanNotFound):
		RespondError(c, http.StatusNotFound, "Plan not found")
	case errors.Is(err, ErrUnknownKind):
		RespondError(c, http.StatusNotFound, "Unknown subscription kind")
	case errors.Is(err, ErrConcurrentUpdate):
		RespondError(c, http.StatusConflict, "Subscription was changed by another request, reload and retry")
	case errors.Is(err, ErrDuplicateRequest):
		RespondError(c, http.StatusConflict, "Request with this Idempotency-Key was already processed")
	case errors.Is(err, ErrInvalidPage):
		RespondError(c, http.StatusBadRequest, "Page must be greater than 0")
	case errors.Is(err, ErrInvalidPageSize):
		RespondError(c, http.StatusBadRequest, "Page size must be between 1 and 100")
	case errors.Is(err, ErrDatabaseError):
		Logger(c).WithError(err).Error("database error")
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	default:
		Logger(c).WithError(err).Error("unhandled service error")
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
