// Package handler holds the HTTP handlers of the form store: the landing
// page, the /data endpoints and a liveness probe.
package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health answers liveness probes with a plain "ok".  It does not touch the
// store, so a slow disk never fails the probe.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}
