// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
	"github.com/Thermoquad/adbhost/pkg/monitor"
)

var (
	serveListen   string
	serveAuthUser string
	servePoll     time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the daemon over HTTP and a WebSocket bridge",
	Long: `Serve a small REST API in front of the daemon, plus a WebSocket bridge that
other adbhost instances can reach with --url.

Routes:
  GET  /health                  liveness
  GET  /metrics                 prometheus metrics
  GET  /api/v1/devices          ready devices
  GET  /api/v1/devices/active   first ready device (?single=true rejects several)
  GET  /api/v1/version          daemon protocol version
  POST /api/v1/exec             {"command": "...", "output": true, "length": true}
  GET  /api/v1/bridge           WebSocket stream to the daemon

With --auth-user, the API and bridge require HTTP Basic auth; the password is
read from ADBHOST_BRIDGE_PASSWORD.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "127.0.0.1:8037", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveAuthUser, "auth-user", "", "Require HTTP Basic auth with this username")
	serveCmd.Flags().DurationVar(&servePoll, "poll", 0, "Poll the device list on this interval to keep metrics current (0 disables)")
}

// apiServer holds the handlers' shared state
type apiServer struct {
	server   adb.Server
	metrics  *monitor.Metrics
	upgrader websocket.Upgrader
}

// routerOptions configures newRouter
type routerOptions struct {
	Registry *prometheus.Registry
	Metrics  *monitor.Metrics
	Logger   zerolog.Logger
	Accounts gin.Accounts
}

func newRouter(srv adb.Server, opts routerOptions) *gin.Engine {
	api := &apiServer{
		server:  srv,
		metrics: opts.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(opts.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	if len(opts.Accounts) > 0 {
		v1.Use(gin.BasicAuth(opts.Accounts))
	}
	v1.GET("/devices", api.devices)
	v1.GET("/devices/active", api.activeDevice)
	v1.GET("/version", api.version)
	v1.POST("/exec", api.exec)
	v1.GET("/bridge", api.bridge)

	return r
}

// requestID tags each request with a UUID, honouring one sent by the client
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}

// statusFor maps the error taxonomy onto HTTP statuses
func statusFor(err error) int {
	switch adb.Classify(err) {
	case adb.KindEncodingOverflow:
		return http.StatusRequestEntityTooLarge
	case adb.KindOffline:
		return http.StatusServiceUnavailable
	case adb.KindConnection:
		return http.StatusGatewayTimeout
	case adb.KindNoDevices:
		return http.StatusNotFound
	case adb.KindMultipleDevices:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func fail(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": err.Error(),
		"kind":  adb.Classify(err).String(),
	})
}

func warningStrings(warnings []adb.Warning) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}

func (a *apiServer) observe(command string, start time.Time, warnings []adb.Warning, err error) {
	a.metrics.ObserveExchange(command, time.Since(start), warnings, err)
	logWarnings(command, warnings)
}

func (a *apiServer) devices(c *gin.Context) {
	start := time.Now()
	list, err := a.server.ListDevicesContext(c.Request.Context())
	a.observe(adb.DevicesCommand, start, list.Warnings, err)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices":  list.Devices,
		"warnings": warningStrings(list.Warnings),
	})
}

func (a *apiServer) activeDevice(c *gin.Context) {
	start := time.Now()
	list, err := a.server.ListDevicesContext(c.Request.Context())
	a.observe(adb.DevicesCommand, start, list.Warnings, err)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}

	single, _ := strconv.ParseBool(c.Query("single"))
	var device adb.DeviceInfo
	if single {
		device, err = adb.RequireSingleDevice(list.Devices)
	} else if len(list.Devices) > 0 {
		device = list.Devices[0]
	} else {
		err = adb.ErrNoDevices
	}
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (a *apiServer) version(c *gin.Context) {
	start := time.Now()
	version, err := a.server.Version(c.Request.Context())
	a.observe(adb.VersionCommand, start, nil, err)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

type execRequest struct {
	Command string `json:"command" binding:"required"`
	Output  bool   `json:"output"`
	Length  bool   `json:"length"`
}

func (a *apiServer) exec(c *gin.Context) {
	var req execRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	res, err := a.server.ExecContext(c.Request.Context(), req.Command, adb.ExecOptions{Output: req.Output, Length: req.Length})
	a.observe(req.Command, start, res.Warnings, err)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"output":   res.Output,
		"warnings": warningStrings(res.Warnings),
	})
}

// bridge pipes one WebSocket to one daemon connection. The daemon is dialed
// before the upgrade so an unreachable daemon is a plain 502.
func (a *apiServer) bridge(c *gin.Context) {
	daemon, err := a.server.Connect(c.Request.Context())
	if err != nil {
		fail(c, http.StatusBadGateway, err)
		return
	}
	defer daemon.Close()

	ws, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied
		return
	}
	defer ws.Close()

	go func() {
		for {
			messageType, data, err := ws.ReadMessage()
			if err != nil {
				daemon.Close()
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			if _, err := daemon.Write(data); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := daemon.Read(buf)
		if n > 0 {
			if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			code := websocket.CloseNormalClosure
			if !errors.Is(err, io.EOF) {
				code = websocket.CloseInternalServerErr
			}
			ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
			return
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, connInfo, err := openServer(cfg)
	if err != nil {
		return err
	}

	listen := cfg.ServeListen
	if cmd.Flags().Changed("listen") {
		listen = serveListen
	}

	var accounts gin.Accounts
	if serveAuthUser != "" {
		password := os.Getenv(envBridgePassword)
		if password == "" {
			return fmt.Errorf("--auth-user requires %s", envBridgePassword)
		}
		accounts = gin.Accounts{serveAuthUser: password}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitor.NewMetrics(reg)

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(srv, routerOptions{
		Registry: reg,
		Metrics:  metrics,
		Logger:   logger,
		Accounts: accounts,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if servePoll > 0 {
		poller := &monitor.Poller{Lister: srv, Interval: servePoll, Metrics: metrics}
		go poller.Run(ctx, func(snap monitor.Snapshot, events []monitor.Event) {
			for _, e := range events {
				logger.Info().Str("serial", e.Serial).Str("event", e.Kind.String()).Msg("device")
			}
		})
	}

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Info().Str("listen", listen).Str("daemon", connInfo).Msg("serving")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("stopped")
	return nil
}
