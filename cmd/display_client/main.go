// Command display_client connects to the kiosk broadcast server and prints
// every result and heartbeat it receives, the way a display terminal sees
// them. Useful for commissioning a station without the real display.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/m3-muru/facial-rpi/internal/broadcast"
	"github.com/m3-muru/facial-rpi/internal/logger"
)

func main() {
	var (
		addr      string
		logLevel  string
		logColor  bool
		reconnect time.Duration
	)

	flag.StringVar(&addr, "addr", "ws://localhost:9998/", "Kiosk broadcast server URL")
	flag.DurationVar(&reconnect, "reconnect", 2*time.Second, "Delay before reconnecting (0 disables)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		err := listen(ctx, addr)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Display", "Connection ended: %v", err)
		if reconnect <= 0 {
			os.Exit(1)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnect):
		}
	}
}

func listen(ctx context.Context, addr string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("Display", "Connected to %s", addr)

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return err
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			logger.Warn("Display", "Malformed message: %s", raw)
			continue
		}

		switch head.Type {
		case broadcast.TypeResult:
			var r broadcast.Result
			if err := json.Unmarshal(raw, &r); err != nil {
				logger.Warn("Display", "Malformed result: %v", err)
				continue
			}
			logger.Info("Display", "Result user=%s pin=%s attendance=%d", r.User, r.Pin, r.Attendance)
		case broadcast.TypePing:
			logger.Debug("Display", "Ping")
		default:
			logger.Warn("Display", "Unknown message type %q", head.Type)
		}
	}
}
