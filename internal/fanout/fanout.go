// Package fanout pushes an enrollment to every terminal of a site in
// parallel. Devices are fully isolated from each other: one terminal's
// failure never touches another's result, and the caller always gets one
// result per device.
package fanout

import (
	"context"
	"sync"

	"facegate/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// maxInFlight bounds concurrent terminal calls so a large site does not
// flood its access-control network.
const maxInFlight = 10

// Terminal is the per-device API surface; satisfied by terminal.Client.
type Terminal interface {
	DeleteUser(ctx context.Context, accountID string) error
	EnsureUser(ctx context.Context, accountID, name string) error
	UploadFace(ctx context.Context, accountID string, image []byte) error
	AssignAccessGroup(ctx context.Context, accountID string) error
}

// Dialer builds a Terminal for one device's address and credentials.
type Dialer func(addr, username, password string) Terminal

// DeviceResult is the outcome for a single terminal.
type DeviceResult struct {
	Address string `json:"ip"`
	OK      bool   `json:"success"`
	Message string `json:"msg"`
}

type Engine struct {
	dial Dialer
	log  *zap.Logger
	sem  *semaphore.Weighted
}

func NewEngine(dial Dialer, log *zap.Logger) *Engine {
	return &Engine{
		dial: dial,
		log:  log,
		sem:  semaphore.NewWeighted(maxInFlight),
	}
}

// Enroll pushes the face template to every device concurrently and returns
// one result per device, in input order. Overall success means every device
// succeeded; anything else is a partial result the caller reports as such.
func (e *Engine) Enroll(ctx context.Context, devices []models.Device, accountID, name string, image []byte) []DeviceResult {
	results := make([]DeviceResult, len(devices))

	var wg sync.WaitGroup
	for i, dev := range devices {
		wg.Add(1)
		go func(i int, dev models.Device) {
			defer wg.Done()
			if err := e.sem.Acquire(ctx, 1); err != nil {
				results[i] = DeviceResult{Address: dev.IPAddress, Message: "canceled"}
				return
			}
			defer e.sem.Release(1)
			results[i] = e.enrollOne(ctx, dev, accountID, name, image)
		}(i, dev)
	}
	wg.Wait()

	return results
}

// enrollOne runs the four-step sequence against a single terminal. Stale
// deletion and group assignment are best-effort: their failures are logged
// and never change the device's verdict.
func (e *Engine) enrollOne(ctx context.Context, dev models.Device, accountID, name string, image []byte) DeviceResult {
	term := e.dial(dev.IPAddress, dev.Username, dev.Password)

	if err := term.DeleteUser(ctx, accountID); err != nil {
		e.log.Debug("stale enrollment cleanup failed",
			zap.String("device", dev.IPAddress), zap.Error(err))
	}

	if err := term.EnsureUser(ctx, accountID, name); err != nil {
		return DeviceResult{Address: dev.IPAddress, Message: err.Error()}
	}

	if err := term.UploadFace(ctx, accountID, image); err != nil {
		return DeviceResult{Address: dev.IPAddress, Message: err.Error()}
	}

	if err := term.AssignAccessGroup(ctx, accountID); err != nil {
		e.log.Warn("access group assignment failed",
			zap.String("device", dev.IPAddress), zap.Error(err))
	}

	return DeviceResult{Address: dev.IPAddress, OK: true, Message: "OK"}
}

// AllOK reports whether every device in the batch succeeded.
func AllOK(results []DeviceResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}
