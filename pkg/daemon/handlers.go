package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/config"
	"github.com/mineq-project/mineq/pkg/rates"
	"github.com/mineq-project/mineq/pkg/transport"
	"github.com/mineq-project/mineq/pkg/version"
)

// listPorts is a test seam.
var listPorts = transport.ListPorts

// abort writes err as the JSON body and records it for ginLogger.
func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func saveConfig(c *gin.Context) bool {
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return false
	}
	return true
}

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getBounds(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, conf.Bounds())
}

func setBounds(c *gin.Context) {
	var b calibration.Bounds
	if err := c.BindJSON(&b); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if err := b.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if calibrationRunning() {
		abort(c, http.StatusConflict, ErrCalibrationInProgress)
		return
	}

	conf.SetBounds(b)
	if !saveConfig(c) {
		return
	}
	pwmBound.WithLabelValues("low").Set(float64(b.Low))
	pwmBound.WithLabelValues("high").Set(float64(b.High))

	logrus.Infof("set pwm bounds to %d/%d", b.Low, b.High)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set pwm low/high to %d/%d", b.Low, b.High))
}

func getPort(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, conf.Port())
}

func setPort(c *gin.Context) {
	var p string
	if err := c.BindJSON(&p); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	conf.SetPort(p)
	if !saveConfig(c) {
		return
	}

	logrus.Infof("set serial port to %q", p)

	msg := fmt.Sprintf("serial port set to %s", p)
	if p == "" {
		msg = "serial port cleared"
	}
	if calibrationRunning() {
		msg += ". The running calibration keeps using the previous port."
	}
	c.IndentedJSON(http.StatusCreated, msg)
}

func getPorts(c *gin.Context) {
	ports, err := listPorts()
	if err != nil {
		logrus.Errorf("listPorts failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, ports)
}

// TrackingRateItem is one entry of GET /tracking-rates. Index is 1-based.
type TrackingRateItem struct {
	Index int             `json:"index"`
	Rate  rates.DriveRate `json:"rate"`
}

func getTrackingRates(c *gin.Context) {
	items := make([]TrackingRateItem, 0, trackingRates.Count())
	cur := trackingRates.Begin()
	for i := 1; cur.Next(); i++ {
		r, err := cur.Current()
		if err != nil {
			abort(c, http.StatusInternalServerError, err)
			return
		}
		items = append(items, TrackingRateItem{Index: i, Rate: r})
	}
	c.IndentedJSON(http.StatusOK, items)
}

func getTrackingRate(c *gin.Context) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid index %q", c.Param("index")))
		return
	}
	r, err := trackingRates.Item(i)
	if err != nil {
		abort(c, http.StatusNotFound, err)
		return
	}
	c.IndentedJSON(http.StatusOK, TrackingRateItem{Index: i, Rate: r})
}

func getAxisRates(c *gin.Context) {
	axis, err := rates.ParseAxis(c.Param("axis"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusOK, rates.NewAxisRates(axis).All())
}

func postStartCalibration(c *gin.Context) {
	err := startCalibration("api")
	switch {
	case errors.Is(err, ErrCalibrationInProgress):
		abort(c, http.StatusConflict, err)
		return
	case errors.Is(err, ErrNoPort):
		abort(c, http.StatusBadRequest, err)
		return
	case err != nil:
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "ok")
}

func postCancelCalibration(c *gin.Context) {
	if err := cancelCalibration(); err != nil {
		abort(c, http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "ok")
}

func getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, getCalibrationStatus())
}

func setSchedule(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	nextRuns, err := schedule(expr)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if nextRuns == nil {
		nextRuns = []time.Time{}
	}

	c.IndentedJSON(http.StatusCreated, nextRuns)
}

func postPostponeSchedule(c *gin.Context) {
	var s string
	if err := c.BindJSON(&s); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if err := postpone(d); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "ok")
}

func postSkipSchedule(c *gin.Context) {
	if err := skipNextSchedule(); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "ok")
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
