package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/transport"
	"github.com/mineq-project/mineq/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Port:         ptr.To(""),
		BaudRate:     ptr.To(transport.DefaultBaudRate),
		Driver:       ptr.To(transport.DriverBugst),
		TrackingRate: ptr.To(calibration.SiderealRate),
		// Midpoint until the first calibration ran.
		PWMLow:  ptr.To(128),
		PWMHigh: ptr.To(128),
		// Empty durations mean "wait forever", matching the firmware protocol.
		AckTimeout:         ptr.To(""),
		SessionTimeout:     ptr.To(""),
		Cron:               ptr.To(""),
		AllowNonRootAccess: ptr.To(false),
		Trace:              ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	Port               *string  `json:"port,omitempty"`
	BaudRate           *int     `json:"baudRate,omitempty"`
	Driver             *string  `json:"driver,omitempty"`
	TrackingRate       *float64 `json:"trackingRate,omitempty"`
	PWMLow             *int     `json:"pwmLow,omitempty"`
	PWMHigh            *int     `json:"pwmHigh,omitempty"`
	AckTimeout         *string  `json:"ackTimeout,omitempty"`
	SessionTimeout     *string  `json:"sessionTimeout,omitempty"`
	Cron               *string  `json:"cron,omitempty"`
	AllowNonRootAccess *bool    `json:"allowNonRootAccess,omitempty"`
	Trace              *bool    `json:"trace,omitempty"`
}

// Validate checks values that cannot be fixed by falling back to defaults.
func (r *RawFileConfig) Validate() error {
	if r.BaudRate != nil && *r.BaudRate <= 0 {
		return pkgerrors.Errorf("baudRate must be positive, got %d", *r.BaudRate)
	}
	if r.Driver != nil && *r.Driver != "" && *r.Driver != transport.DriverBugst && *r.Driver != transport.DriverTarm {
		return pkgerrors.Errorf("driver must be %q or %q, got %q", transport.DriverBugst, transport.DriverTarm, *r.Driver)
	}
	if r.TrackingRate != nil && *r.TrackingRate <= 0 {
		return pkgerrors.Errorf("trackingRate must be positive, got %v", *r.TrackingRate)
	}
	b := calibration.Bounds{
		Low:  ptr.Deref(r.PWMLow, *defaultFileConfig.PWMLow),
		High: ptr.Deref(r.PWMHigh, *defaultFileConfig.PWMHigh),
	}
	if err := b.Validate(); err != nil {
		return err
	}
	for name, d := range map[string]*string{"ackTimeout": r.AckTimeout, "sessionTimeout": r.SessionTimeout} {
		if _, err := parseDuration(ptr.Deref(d, "")); err != nil {
			return pkgerrors.Wrapf(err, "invalid %s", name)
		}
	}
	return nil
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	b := c.Bounds()
	rawConfig := &RawFileConfig{
		Port:               ptr.To(c.Port()),
		BaudRate:           ptr.To(c.BaudRate()),
		Driver:             ptr.To(c.Driver()),
		TrackingRate:       ptr.To(c.TrackingRate()),
		PWMLow:             ptr.To(b.Low),
		PWMHigh:            ptr.To(b.High),
		AckTimeout:         ptr.To(formatDuration(c.AckTimeout())),
		SessionTimeout:     ptr.To(formatDuration(c.SessionTimeout())),
		Cron:               ptr.To(c.Cron()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		Trace:              ptr.To(c.Trace()),
	}

	return rawConfig, nil
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, pkgerrors.Errorf("duration must not be negative, got %s", s)
	}
	return d, nil
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

func (f *File) Port() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.Port, *defaultFileConfig.Port)
}

func (f *File) BaudRate() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.BaudRate, *defaultFileConfig.BaudRate)
}

func (f *File) Driver() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	driver := ptr.Deref(f.c.Driver, "")
	if driver == "" {
		driver = *defaultFileConfig.Driver
	}

	return driver
}

func (f *File) TrackingRate() float64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.TrackingRate, *defaultFileConfig.TrackingRate)
}

func (f *File) Bounds() calibration.Bounds {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return calibration.Bounds{
		Low:  ptr.Deref(f.c.PWMLow, *defaultFileConfig.PWMLow),
		High: ptr.Deref(f.c.PWMHigh, *defaultFileConfig.PWMHigh),
	}
}

func (f *File) AckTimeout() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	// Validated during Load.
	d, _ := parseDuration(ptr.Deref(f.c.AckTimeout, *defaultFileConfig.AckTimeout))
	return d
}

func (f *File) SessionTimeout() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	d, _ := parseDuration(ptr.Deref(f.c.SessionTimeout, *defaultFileConfig.SessionTimeout))
	return d
}

func (f *File) Cron() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.Cron, *defaultFileConfig.Cron)
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) Trace() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.Trace, *defaultFileConfig.Trace)
}

func (f *File) SetPort(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Port = &s
}

func (f *File) SetBaudRate(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	if i <= 0 {
		panic("baud rate must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.BaudRate = &i
}

func (f *File) SetDriver(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Driver = &s
}

func (f *File) SetBounds(b calibration.Bounds) {
	if f.c == nil {
		panic("config is nil")
	}

	if err := b.Validate(); err != nil {
		panic(err.Error())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.PWMLow = &b.Low
	f.c.PWMHigh = &b.High
}

func (f *File) SetCron(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Cron = &s
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	b := f.Bounds()
	return logrus.Fields{
		"port":               f.Port(),
		"baudRate":           f.BaudRate(),
		"driver":             f.Driver(),
		"trackingRate":       f.TrackingRate(),
		"pwmLow":             b.Low,
		"pwmHigh":            b.High,
		"ackTimeout":         f.AckTimeout(),
		"sessionTimeout":     f.SessionTimeout(),
		"cron":               f.Cron(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"trace":              f.Trace(),
	}
}
