package faceproc

import (
	"context"
	"time"

	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// runPresence polls the presence hand-off and triggers an authentication
// when a face is in view and the machine is idle.
func (m *Machine) runPresence(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PresencePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			present, ok := m.presence.TryTake()
			if !ok || !present {
				continue
			}
			if !m.ready.CompareAndSwap(true, false) {
				continue
			}
			m.publishReadiness(false)
			logger.Info("FaceSM", "Face detected, authentication triggered")
			if err := m.Submit(types.Command{Name: types.CommandAuthenticate, Raw: "authenticate"}); err != nil {
				logger.Warn("FaceSM", "Authentication not queued: %v", err)
				m.setReady(true)
			}
		}
	}
}
