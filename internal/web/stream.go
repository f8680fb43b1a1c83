package web

import (
	"time"

	"atlvs-cli/internal/live"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/search"

	"github.com/labstack/echo/v4"
	"github.com/starfederation/datastar-go/datastar"
)

func streamSignals(st live.State, q string) map[string]any {
	data := search.Filter(st.Data, q)
	if data == nil {
		data = []model.DataItem{}
	}
	errText := ""
	if st.Err != nil {
		errText = st.Err.Error()
	}
	return map[string]any{
		"data":      data,
		"loading":   st.Loading,
		"error":     errText,
		"anomalies": st.Anomalies,
	}
}

// handleStream patches the tab's live state into the page's signals on every
// change. Clients viewing the same tab share one pooled channel.
func (s *Server) handleStream(c echo.Context) error {
	b, err := s.bind(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.eng.CanRead(ctx, actorOf(c), b.Handle); err != nil {
		return err
	}

	ch, release := s.eng.Pool.Acquire(ctx, b)
	defer release()
	changed, stop := ch.Watch()
	defer stop()

	q := c.QueryParam("q")
	sse := datastar.NewSSE(c.Response().Writer, c.Request())

	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return nil
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case _, ok := <-changed:
			if !ok {
				return nil
			}
			if err := sse.MarshalAndPatchSignals(streamSignals(ch.State(), q)); err != nil {
				s.log.Debug("sse write failed", "handle", b.Handle.String(), "err", err)
				return nil
			}
		}
	}
}
