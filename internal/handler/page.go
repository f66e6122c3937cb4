package handler

import "github.com/labstack/echo/v4"

// PageHandler serves the static landing page.
type PageHandler struct {
    IndexFile string // path of the HTML file, read on every request
}

// Index writes the landing page.  A missing file is the framework's 404.
func (h *PageHandler) Index(c echo.Context) error {
    return c.File(h.IndexFile)
}
