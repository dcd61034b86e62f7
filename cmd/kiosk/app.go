package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/m3-muru/facial-rpi/internal/biometric"
	"github.com/m3-muru/facial-rpi/internal/broadcast"
	"github.com/m3-muru/facial-rpi/internal/config"
	"github.com/m3-muru/facial-rpi/internal/datastore"
	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/frames"
	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/internal/mailbox"
	"github.com/m3-muru/facial-rpi/internal/metrics"
	"github.com/m3-muru/facial-rpi/internal/overlay"
	"github.com/m3-muru/facial-rpi/internal/watchdog"
	"github.com/m3-muru/facial-rpi/internal/webmonitor"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// App owns every kiosk component and their lifetimes
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cfg    *config.Config

	metrics   *metrics.Metrics
	overlay   *overlay.Overlay
	display   *mailbox.Slot[types.DisplayFrame]
	presence  *mailbox.Slot[bool]
	readiness *mailbox.Slot[bool]

	store     faceproc.Datastore
	reporter  *datastore.Reporter
	pipeline  *frames.Pipeline
	broadcast *broadcast.Server
	face      *faceproc.Machine
	web       *webmonitor.Server
	watchdogs []*watchdog.Watchdog

	exitOnce sync.Once
	exitCode chan int
}

// NewApp builds the component graph. Nothing runs until Start.
func NewApp(cfg *config.Config) (*App, error) {
	a := &App{
		cfg:       cfg,
		metrics:   metrics.New(),
		overlay:   overlay.New(),
		display:   mailbox.New[types.DisplayFrame](),
		presence:  mailbox.New[bool](),
		readiness: mailbox.New[bool](),
		exitCode:  make(chan int, 1),
	}

	if cfg.Datastore.FaceprintsURL == "" && cfg.Datastore.PingURL == "" {
		logger.Warn("Main", "No datastore configured, faceprints are kept in memory")
		a.store = datastore.NewMemoryStore()
	} else {
		a.store = datastore.New(datastore.Config{
			FaceprintsURL:      cfg.Datastore.FaceprintsURL,
			AddFaceprintURL:    cfg.Datastore.AddFaceprintURL,
			PingURL:            cfg.Datastore.PingURL,
			APIKey:             cfg.Datastore.APIKey,
			InsecureSkipVerify: cfg.Datastore.InsecureSkipVerify,
			Timeout:            cfg.Datastore.Timeout,
		})
	}

	a.reporter = datastore.NewReporter(datastore.ReporterConfig{
		AppStatusURL:       cfg.Reporter.AppStatusURL,
		ETCMonURL:          cfg.Reporter.ETCMonURL,
		StationID:          cfg.Reporter.StationID,
		AppVersion:         cfg.Reporter.AppVersion,
		APIKey:             cfg.Reporter.APIKey,
		InsecureSkipVerify: cfg.Reporter.InsecureSkipVerify,
		Interval:           cfg.Reporter.HeartbeatInterval,
	})

	// Simulated camera at a quarter of the sensor resolution; overlay
	// coordinates are scaled from the frame size
	source := frames.NewPatternSource(cfg.Pipeline.SensorWidth/4, cfg.Pipeline.SensorHeight/4, cfg.Pipeline.SimulatedFPS)
	a.pipeline = frames.New(frames.Config{
		SensorWidth:          cfg.Pipeline.SensorWidth,
		SensorHeight:         cfg.Pipeline.SensorHeight,
		DisplayWidth:         cfg.Pipeline.DisplayWidth,
		DisplayHeight:        cfg.Pipeline.DisplayHeight,
		FrameTimeout:         cfg.Pipeline.FrameTimeout,
		MaxConsecutiveErrors: cfg.Pipeline.MaxConsecutiveErrors,
	}, source, a.overlay, a.display).WithPresence(source, a.presence)

	a.broadcast = broadcast.New(broadcast.Config{
		Addr:         cfg.Broadcast.Addr,
		PingInterval: cfg.Broadcast.PingInterval,
		WriteTimeout: cfg.Broadcast.WriteTimeout,
		QueueSize:    cfg.Broadcast.QueueSize,
		Pin:          cfg.Broadcast.Pin,
	})

	var err error
	a.web, err = webmonitor.NewServer(webmonitor.Config{
		Addr:        cfg.Web.Addr,
		JPEGQuality: cfg.Web.JPEGQuality,
	}, webmonitor.Options{
		Display:       a.display,
		DisplayWidth:  cfg.Pipeline.DisplayWidth,
		DisplayHeight: cfg.Pipeline.DisplayHeight,
		Status:        a.status,
		Commands:      commander{a},
		Ready:         a.ready,
		Metrics:       a.metrics.Handler(),
	})
	if err != nil {
		return nil, fmt.Errorf("create web monitor: %w", err)
	}

	device := biometric.NewSimulator(cfg.Device.Step)
	a.face = faceproc.New(faceConfig(cfg), faceproc.Deps{
		Device:    device,
		Store:     a.store,
		Overlay:   a.overlay,
		Feedback:  a.web.Feedback(),
		Publisher: a.broadcast,
		Reporter:  a.reporter,
		Readiness: a.readiness,
		Presence:  a.presence,
		Exit:      a.requestExit,
		OnCommand: a.metrics.RecordCommand,
	})

	a.watchdogs = a.buildWatchdogs()

	a.metrics.WatchPipeline(a.pipeline.Stats)
	a.metrics.WatchDisplay(a.display)
	a.metrics.WatchOverlay(a.overlay)
	a.metrics.WatchBroadcast(a.broadcast.Stats)
	a.metrics.WatchFace(a.face.Status)
	if fb := a.web.Frames(); fb != nil {
		a.metrics.WatchMJPEG(fb.ClientCount)
	}
	return a, nil
}

func faceConfig(cfg *config.Config) faceproc.Config {
	return faceproc.Config{
		Mode:          cfg.FaceMode(),
		QueueSize:     cfg.Face.QueueSize,
		ReadyDelay:    cfg.Face.ReadyDelay,
		Greeting:      cfg.Face.Greeting,
		StartDelay:    cfg.Face.StartDelay,
		CountdownStep: cfg.Face.CountdownStep,
		QuitDelay:     cfg.Face.QuitDelay,
		Threshold:     cfg.Face.Threshold,
		Attendance:    types.ParseAttendance(cfg.Face.Attendance),
		PresencePoll:  cfg.Face.PresencePoll,
		DailyResync:   cfg.Face.DailyResync,
	}
}

func watchdogConfig(name string, w config.WatchdogConfig) watchdog.Config {
	return watchdog.Config{
		Name:             name,
		Interval:         w.Interval,
		FailureThreshold: w.FailureThreshold,
		ShutdownDelay:    w.ShutdownDelay,
		StartDelay:       w.StartDelay,
	}
}

func (a *App) buildWatchdogs() []*watchdog.Watchdog {
	var dogs []*watchdog.Watchdog

	if w := a.cfg.CameraWatchdog; w.Enabled {
		var probe watchdog.Probe = watchdog.ProbeFunc(func(context.Context) error {
			if !a.pipeline.Stats().Connected {
				return errors.New("camera stream not delivering frames")
			}
			return nil
		})
		if w.DeviceProbe {
			probe = watchdog.NewDeviceProbe()
		}
		dog := watchdog.New(watchdogConfig("Camera", w), probe)
		dog.Observe(a.cameraObserver(w.ShutdownDelay))
		dogs = append(dogs, dog)
	}

	if w := a.cfg.UpstreamWatchdog; w.Enabled {
		probes := []watchdog.Probe{watchdog.NewHTTPProbe(w.URL)}
		if u, err := url.Parse(w.URL); err == nil && u.Host != "" {
			probes = append([]watchdog.Probe{&watchdog.TCPProbe{Addr: hostPort(u)}}, probes...)
		}
		dog := watchdog.New(watchdogConfig("Upstream", w), watchdog.All(probes...))
		dog.Observe(a.upstreamObserver())
		dogs = append(dogs, dog)
	}

	if w := a.cfg.DatastoreWatchdog; w.Enabled {
		dog := watchdog.New(watchdogConfig("Datastore", w), watchdog.ProbeFunc(a.store.Ping))
		dogs = append(dogs, dog)
	}

	for _, dog := range dogs {
		a.metrics.SetWatchdog(dog.Name(), true)
		dog.Observe(func(ev watchdog.Event) {
			a.metrics.SetWatchdog(ev.Name, ev.State.Connected)
		})
	}
	return dogs
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return u.Hostname() + ":443"
	}
	return u.Hostname() + ":80"
}

func (a *App) feedback(text string, status types.Status) {
	a.web.Feedback().Send(types.FeedbackMessage{Text: text, Status: status, Time: time.Now()})
}

func (a *App) cameraObserver(delay time.Duration) watchdog.Observer {
	return func(ev watchdog.Event) {
		switch ev.Kind {
		case watchdog.EventDisconnected:
			if delay > 0 {
				a.feedback(fmt.Sprintf("⚠️ Camera Disconnected! App will close in %ds", int(delay.Seconds())), types.StatusRejected)
			} else {
				a.feedback("⚠️ Camera Disconnected!", types.StatusRejected)
			}
		case watchdog.EventReconnected:
			a.feedback("✅ Camera Reconnected", types.StatusAccepted)
		case watchdog.EventShutdown:
			go a.shutdownFromWatchdog("🔌 Camera disconnected - Shutting down...")
		}
	}
}

func (a *App) upstreamObserver() watchdog.Observer {
	return func(ev watchdog.Event) {
		switch ev.Kind {
		case watchdog.EventDisconnected:
			a.feedback("⚠️ ETC connection lost", types.StatusRejected)
		case watchdog.EventReconnected:
			a.feedback("✅ ETC connection restored", types.StatusAccepted)
		case watchdog.EventShutdown:
			go a.shutdownFromWatchdog("🔌 ETC unreachable - Shutting down...")
		}
	}
}

// shutdownFromWatchdog ends the process with status 1 after a final app
// status report, distinguishing a supervised shutdown from a crash.
func (a *App) shutdownFromWatchdog(text string) {
	logger.Error("Main", "%s", text)
	a.feedback(text, types.StatusRejected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.reporter.SendAppStatus(ctx); err != nil {
		logger.Warn("Main", "Final app status report failed: %v", err)
	}
	a.requestExit(1)
}

// requestExit records the first exit code; later requests are ignored
func (a *App) requestExit(code int) {
	a.exitOnce.Do(func() {
		a.exitCode <- code
	})
}

// ExitRequested delivers the code of a quit command or watchdog shutdown
func (a *App) ExitRequested() <-chan int {
	return a.exitCode
}

// Start runs every component. A datastore failure during face processor
// startup is returned as *faceproc.StartupError.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.pipeline.Start(a.ctx); err != nil {
		a.cancel()
		return err
	}
	if err := a.broadcast.Start(a.ctx); err != nil {
		a.pipeline.Stop()
		a.cancel()
		return fmt.Errorf("start broadcast server: %w", err)
	}
	if err := a.face.Start(a.ctx); err != nil {
		a.broadcast.Stop()
		a.pipeline.Stop()
		a.cancel()
		return err
	}

	if a.cfg.Web.Enabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.web.Start(); err != nil {
				logger.Error("Main", "Web monitor stopped: %v", err)
			}
		}()
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.reporter.Run(a.ctx)
	}()
	go a.watchReadiness()

	for _, dog := range a.watchdogs {
		dog.Start(a.ctx)
	}

	logger.Info("Main", "Kiosk running (mode: %s, displays on %s, monitor on %s)",
		a.cfg.FaceMode(), a.cfg.Broadcast.Addr, a.cfg.Web.Addr)
	return nil
}

// watchReadiness logs readiness transitions published by the face processor
func (a *App) watchReadiness() {
	defer a.wg.Done()
	last := false
	for {
		ready, err := a.readiness.Take(a.ctx)
		if err != nil {
			return
		}
		if ready != last {
			logger.Debug("Main", "Face processor ready: %v", ready)
			last = ready
		}
	}
}

// Shutdown stops components in reverse start order
func (a *App) Shutdown() {
	logger.Info("Main", "Shutting down...")
	for _, dog := range a.watchdogs {
		dog.Stop()
	}
	a.face.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.web.Shutdown(ctx); err != nil {
		logger.Warn("Main", "Web monitor shutdown: %v", err)
	}

	a.broadcast.Stop()
	a.pipeline.Stop()
	a.cancel()
	a.wg.Wait()
	logger.Info("Main", "Stopped")
}

func (a *App) status() webmonitor.Status {
	s := webmonitor.Status{
		Face:      a.face.Status(),
		Camera:    webmonitor.NewCameraStatus(a.pipeline.Stats()),
		Broadcast: webmonitor.NewBroadcastStatus(a.broadcast.Stats()),
	}
	for _, dog := range a.watchdogs {
		s.Watchdogs = append(s.Watchdogs, webmonitor.NewWatchdogStatus(dog.Name(), dog.State()))
	}
	return s
}

// ready reports whether the kiosk can serve a person: camera frames are
// flowing and no watchdog is disconnected
func (a *App) ready() bool {
	if !a.pipeline.Stats().Connected {
		return false
	}
	for _, dog := range a.watchdogs {
		if !dog.State().Connected {
			return false
		}
	}
	return true
}

// commander routes web commands into the face processor queue
type commander struct{ app *App }

func (c commander) Submit(cmd types.Command) error {
	return c.app.face.Submit(cmd)
}
