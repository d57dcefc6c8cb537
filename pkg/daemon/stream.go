package daemon

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mineq-project/mineq/pkg/events"
)

const streamWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// unix socket only; the file mode is the access control
		return true
	},
}

// currentPhaseEvent describes the phase of the running calibration, so a
// client attaching mid-run does not wait for the next transition.
func currentPhaseEvent() (events.Event, bool) {
	st := getCalibrationStatus()
	if !st.Phase.Running() {
		return events.Event{}, false
	}
	data, err := json.Marshal(events.CalibrationPhaseEvent{
		To:      string(st.Phase),
		Rate:    st.TargetRate,
		Message: st.Message,
		Ts:      time.Now().Unix(),
	})
	if err != nil {
		return events.Event{}, false
	}
	return events.Event{Name: events.CalibrationPhase, Data: data}, true
}

// streamEvents upgrades the request to a websocket and forwards hub events
// until either side goes away. Repeated `name` query parameters restrict the
// stream to those events.
func streamEvents(c *gin.Context) {
	names := c.QueryArray("name")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("failed to upgrade event stream")
		return
	}
	defer conn.Close()

	ch := hub.Subscribe(names...)
	defer hub.Unsubscribe(ch)
	logrus.WithFields(logrus.Fields{
		"subscribers": hub.Len(),
		"names":       names,
	}).Debug("event stream opened")

	if len(names) == 0 || slices.Contains(names, events.CalibrationPhase) {
		if ev, ok := currentPhaseEvent(); ok {
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		}
	}

	// Keep reading until the client disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			logrus.Debug("event stream closed by client")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				logrus.WithError(err).Debug("event stream write failed")
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev events.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
