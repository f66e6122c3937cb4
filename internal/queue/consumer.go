// Package queue contains the background consumer that listens to the form
// submission queue and writes one line per event to <log dir>/submissions.log.
package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "time"

    "github.com/pkg/errors"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/form-store/internal/config"
)

// LogFileName is the file the consumer appends to inside QueueConfig.LogDir.
const LogFileName = "submissions.log"

// StartSubmissionConsumer connects to RabbitMQ, declares the durable queue and
// consumes it until ctx is cancelled.  Broken connections are retried with
// exponential backoff capped at 30s.  A message that cannot be handled is
// rejected without requeue so one bad payload cannot spin the loop.
func StartSubmissionConsumer(ctx context.Context, cfg config.QueueConfig) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(cfg.URL)
        if err != nil {
            log.Printf("submission-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, cfg)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("submission-consumer: consume loop ended: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg config.QueueConfig) error {
    ch, err := conn.Channel()
    if err != nil {
        return errors.Wrap(err, "channel open")
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
        log.Printf("submission-consumer: set QoS failed: %v", err)
    }

    if _, err := ch.QueueDeclare(cfg.Name, true, false, false, false, nil); err != nil {
        return errors.Wrap(err, "queue declare")
    }

    msgs, err := ch.ConsumeWithContext(ctx, cfg.Name, "", false, false, false, false, nil)
    if err != nil {
        return errors.Wrap(err, "queue consume")
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := HandleMessage(d.Body, cfg.LogDir); err != nil {
                log.Printf("submission-consumer: handle message failed: %v", err)
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// HandleMessage decodes one FormSubmittedEvent and appends it to the
// submissions log in dir, creating the directory if needed.
func HandleMessage(body []byte, dir string) error {
    var ev FormSubmittedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return errors.Wrap(err, "unmarshal")
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return errors.Wrap(err, "mkdir logs")
    }
    f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return errors.Wrap(err, "open log file")
    }
    defer f.Close()

    rec := "{}"
    if len(ev.Record) > 0 {
        rec = string(ev.Record)
    }
    line := fmt.Sprintf("[%s] Form submitted | event_id=%s | request_id=%s | index=%d | remote_ip=%s | record=%s\n",
        ev.SubmittedAt, ev.EventID, ev.RequestID, ev.Index, ev.RemoteIP, rec)

    if _, err := f.WriteString(line); err != nil {
        return errors.Wrap(err, "write log")
    }
    return nil
}
