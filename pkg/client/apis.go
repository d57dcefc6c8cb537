package client

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/config"
	"github.com/mineq-project/mineq/pkg/rates"
)

// TrackingRate is one entry of the daemon's tracking rate list. Index is
// 1-based.
type TrackingRate struct {
	Index int    `json:"index"`
	Rate  string `json:"rate"`
}

func decode[T any](ret string, what string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return v, nil
}

// message unwraps the JSON string the daemon answers most writes with.
func message(ret string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	var s string
	if json.Unmarshal([]byte(ret), &s) != nil {
		return ret, nil
	}
	return s, nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	conf, err := decode[config.RawFileConfig](ret, "config")
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Client) GetBounds() (calibration.Bounds, error) {
	ret, err := c.Get("/bounds")
	if err != nil {
		return calibration.Bounds{}, pkgerrors.Wrapf(err, "failed to get pwm bounds")
	}
	return decode[calibration.Bounds](ret, "pwm bounds")
}

func (c *Client) SetBounds(b calibration.Bounds) (string, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return message(c.Put("/bounds", string(payload)))
}

func (c *Client) GetPort() (string, error) {
	ret, err := c.Get("/port")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get serial port")
	}
	return decode[string](ret, "serial port")
}

func (c *Client) SetPort(port string) (string, error) {
	return message(c.Put("/port", quote(port)))
}

func (c *Client) ListPorts() ([]string, error) {
	ret, err := c.Get("/ports")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list serial ports")
	}
	return decode[[]string](ret, "serial ports")
}

func (c *Client) GetTrackingRates() ([]TrackingRate, error) {
	ret, err := c.Get("/tracking-rates")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get tracking rates")
	}
	return decode[[]TrackingRate](ret, "tracking rates")
}

// GetTrackingRate returns the tracking rate at the 1-based index i.
func (c *Client) GetTrackingRate(i int) (TrackingRate, error) {
	ret, err := c.Get("/tracking-rates/" + strconv.Itoa(i))
	if err != nil {
		return TrackingRate{}, pkgerrors.Wrapf(err, "failed to get tracking rate %d", i)
	}
	return decode[TrackingRate](ret, "tracking rate")
}

func (c *Client) GetAxisRates(axis rates.Axis) ([]rates.Rate, error) {
	ret, err := c.Get("/axis-rates/" + url.PathEscape(axis.String()))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get %s axis rates", axis)
	}
	return decode[[]rates.Rate](ret, "axis rates")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return decode[string](ret, "version")
}

// ===== Calibration APIs =====

func (c *Client) StartCalibration() (string, error) {
	return message(c.Post("/calibration/start", ""))
}

func (c *Client) CancelCalibration() (string, error) {
	return message(c.Post("/calibration/cancel", ""))
}

func (c *Client) GetCalibrationStatus() (*calibration.Status, error) {
	ret, err := c.Get("/calibration")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration status")
	}
	st, err := decode[calibration.Status](ret, "calibration status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Schedule sets the recalibration cron expression and returns the next run
// times. An empty expression disables scheduled recalibration.
func (c *Client) Schedule(cronExpr string) ([]time.Time, error) {
	ret, err := c.Put("/schedule", quote(cronExpr))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	return decode[[]time.Time](ret, "next run times")
}

func (c *Client) PostponeSchedule(d time.Duration) (string, error) {
	return message(c.Post("/schedule/postpone", quote(d.String())))
}

func (c *Client) SkipSchedule() (string, error) {
	return message(c.Post("/schedule/skip", ""))
}
