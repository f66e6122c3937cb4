package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/pkg/errors"

    "github.com/iliyamo/form-store/internal/queue"
    "github.com/iliyamo/form-store/internal/record"
    "github.com/iliyamo/form-store/internal/store"
)

// publishTimeout bounds one event publish; the request never waits for it.
const publishTimeout = 5 * time.Second

// SubmissionPublisher is notified after a record has been stored.
type SubmissionPublisher interface {
    PublishFormSubmitted(ctx context.Context, event queue.FormSubmittedEvent) error
}

// DataHandler serves the /data endpoints on top of a Store.
type DataHandler struct {
    Store     *store.Store        // collection and backing file
    Publisher SubmissionPublisher // optional; nil disables submission events
}

// NewDataHandler panics when s is nil; p may be nil.
func NewDataHandler(s *store.Store, p SubmissionPublisher) *DataHandler {
    if s == nil {
        panic("nil store passed to NewDataHandler")
    }
    return &DataHandler{Store: s, Publisher: p}
}

// Submit appends the request body as a new record, writes the collection
// through to the backing file and redirects to the landing page.
func (h *DataHandler) Submit(c echo.Context) error {
    rec, err := record.FromRequest(c.Request())
    if err != nil {
        if errors.Is(err, record.ErrMalformedBody) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": err.Error()})
        }
        if errors.Is(err, record.ErrTooManyParameters) {
            return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "too_many_parameters", "message": err.Error()})
        }
        // BodyLimit fails the read with *echo.HTTPError when the body has
        // no Content-Length; the error handler only sees it unwrapped.
        var he *echo.HTTPError
        if errors.As(err, &he) {
            return he
        }
        return err
    }

    idx, err := h.Store.Append(rec)
    if err != nil {
        c.Logger().Errorf("[data] append failed: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "persist_failed"})
    }

    h.publish(c, idx, rec)
    return c.Redirect(http.StatusFound, "/")
}

// List returns every stored record as a JSON array, oldest first.
func (h *DataHandler) List(c echo.Context) error {
    b, err := record.EncodeList(h.Store.List(), false)
    if err != nil {
        return err
    }
    return c.JSONBlob(http.StatusOK, b)
}

func (h *DataHandler) publish(c echo.Context, idx int, rec record.Record) {
    if h.Publisher == nil {
        return
    }
    ev := queue.FormSubmittedEvent{
        EventID:     uuid.NewString(),
        RequestID:   c.Response().Header().Get(echo.HeaderXRequestID),
        Index:       idx,
        Record:      []byte(rec),
        RemoteIP:    c.RealIP(),
        SubmittedAt: time.Now().UTC().Format(time.RFC3339),
    }
    logger := c.Logger()
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
        defer cancel()
        if err := h.Publisher.PublishFormSubmitted(ctx, ev); err != nil {
            logger.Warnf("[data] publish event %s failed: %v", ev.EventID, err)
        }
    }()
}
