package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mineq-project/mineq/pkg/config"
	"github.com/mineq-project/mineq/pkg/events"
	"github.com/mineq-project/mineq/pkg/rates"
)

var (
	conf          config.Config
	hub           = events.NewEventHub()
	trackingRates = rates.NewTrackingRates()
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/bounds", getBounds)
	router.PUT("/bounds", setBounds)
	router.GET("/port", getPort)
	router.PUT("/port", setPort)
	router.GET("/ports", getPorts)
	router.GET("/tracking-rates", getTrackingRates)
	router.GET("/tracking-rates/:index", getTrackingRate)
	router.GET("/axis-rates/:axis", getAxisRates)
	router.POST("/calibration/start", postStartCalibration)
	router.POST("/calibration/cancel", postCancelCalibration)
	router.GET("/calibration", getCalibration)
	router.PUT("/schedule", setSchedule)
	router.POST("/schedule/postpone", postPostponeSchedule)
	router.POST("/schedule/skip", postSkipSchedule)
	router.GET("/events", streamEvents)
	router.GET("/metrics", getMetrics())
	router.GET("/version", getVersion)

	return router
}

func applyLogLevel() {
	if conf.Trace() && logrus.GetLevel() < logrus.TraceLevel {
		logrus.SetLevel(logrus.TraceLevel)
		logrus.Info("trace logging enabled by config")
	}
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")
	applyLogLevel()

	b := conf.Bounds()
	pwmBound.WithLabelValues("low").Set(float64(b.Low))
	pwmBound.WithLabelValues("high").Set(float64(b.High))

	scheduler = newCalibrationScheduler()
	if expr := conf.Cron(); expr != "" {
		if err := scheduler.Schedule(expr); err != nil {
			logrus.WithError(err).Errorf("ignoring invalid cron expression %q", expr)
		}
	}
	scheduler.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			applyLogLevel()
			if expr := conf.Cron(); expr != "" {
				if err := scheduler.Schedule(expr); err != nil {
					logrus.WithError(err).Errorf("ignoring invalid cron expression %q", expr)
				}
			} else {
				scheduler.Disable()
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// A stale socket from a crashed daemon would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatal(err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping scheduler")
	scheduler.Stop()

	logrus.Info("stopping calibration")
	stopCalibration()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}
