package router // package router defines how HTTP routes are registered for the form store

import (
	"github.com/google/uuid"               // request id generator
	"github.com/labstack/echo/v4"          // Echo web framework used for routing
	echomw "github.com/labstack/echo/v4/middleware" // Echo's stock middleware (recover, request id, logging, body limit)

	"github.com/iliyamo/form-store/internal/handler" // handlers implementing the endpoints
)

// Middleware groups the per-route middleware the caller builds from config.
// Nil entries are skipped.
type Middleware struct {
	BodyLimit string             // max POST body, echo size syntax ("100K"); empty means unlimited
	RateLimit echo.MiddlewareFunc // guards POST /data
	Cache     echo.MiddlewareFunc // wraps GET /data
}

// Setup installs the middleware every request goes through: panic recovery,
// a request id and an access log line written to the echo logger.
func Setup(e *echo.Echo) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				c.Logger().Errorf("%s %s status=%d latency=%s ip=%s id=%s err=%v",
					v.Method, v.URI, v.Status, v.Latency, v.RemoteIP, v.RequestID, v.Error)
				return nil
			}
			c.Logger().Infof("%s %s status=%d latency=%s ip=%s id=%s",
				v.Method, v.URI, v.Status, v.Latency, v.RemoteIP, v.RequestID)
			return nil
		},
	}))
}

// RegisterRoutes maps the landing page, the two /data endpoints and the
// health check.
func RegisterRoutes(e *echo.Echo, page *handler.PageHandler, data *handler.DataHandler, mw Middleware) {
	// Liveness probe for load balancers and monitoring.
	e.GET("/healthz", handler.Health)

	// Static landing page with the submission form.
	e.GET("/", page.Index)

	// Submissions: body limit first so oversized bodies never reach the rate limiter's Redis call.
	var submit []echo.MiddlewareFunc
	if mw.BodyLimit != "" {
		submit = append(submit, echomw.BodyLimit(mw.BodyLimit))
	}
	if mw.RateLimit != nil {
		submit = append(submit, mw.RateLimit)
	}
	e.POST("/data", data.Submit, submit...)

	// Full collection as JSON.
	var list []echo.MiddlewareFunc
	if mw.Cache != nil {
		list = append(list, mw.Cache)
	}
	e.GET("/data", data.List, list...)
}
