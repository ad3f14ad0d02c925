package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeworks/draftforge/pkg/events"
)

// streamEvents writes a job's event stream to the client as server-sent
// events. Real events frame as "data: {json}\n\n"; keep-alives are comment
// frames that carry no event_id and never advance the client cursor. The
// drain pace adapts to the job phase; keep-alives fill idle gaps.
func (s *Server) streamEvents(c *echo.Context, sub *events.Subscription, mediaFastLane bool) error {
	defer sub.Close()

	resp := c.Response()
	h := resp.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	flusher := http.NewResponseController(resp)

	ctx := c.Request().Context()
	attachedAt := time.Now()
	lastWrite := time.Now()
	phase := events.PhasePending

	for {
		evs, ended := sub.Drain()
		for _, ev := range evs {
			if err := writeEventFrame(resp, ev); err != nil {
				return nil // client went away
			}
			lastWrite = time.Now()
			if ev.ID > 0 && ev.Kind != events.KindJobStarted {
				phase = events.PhaseRunning
			}
			if ev.Kind.Terminal() {
				phase = events.PhaseTerminal
			}
		}
		if len(evs) > 0 {
			_ = flusher.Flush()
		}

		if ended {
			// One grace drain after the terminal event so anything queued in
			// the same instant still flushes before close.
			time.Sleep(events.PacingInterval(events.PhaseTerminal, 0, mediaFastLane))
			if evs, _ := sub.Drain(); len(evs) > 0 {
				for _, ev := range evs {
					if err := writeEventFrame(resp, ev); err != nil {
						return nil
					}
				}
				_ = flusher.Flush()
			}
			return nil
		}

		if time.Since(lastWrite) >= s.cfg.KeepAliveInterval {
			if _, err := fmt.Fprint(resp, ": keep-alive\n\n"); err != nil {
				return nil
			}
			_ = flusher.Flush()
			lastWrite = time.Now()
		}

		interval := events.PacingInterval(phase, time.Since(attachedAt), mediaFastLane)
		sub.Wait(ctx, interval)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// writeEventFrame encodes one event as an SSE data frame.
func writeEventFrame(w io.Writer, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
