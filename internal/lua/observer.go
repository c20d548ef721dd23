package lua

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
)

// Handler names looked up in the script's globals
const (
	HandlerDiscover     = "on_discover"
	HandlerConnected    = "on_connected"
	HandlerDisconnected = "on_disconnected"
	HandlerServices     = "on_services"
	HandlerError        = "on_error"
)

// ScriptObserver forwards manager notifications to Lua handler functions.
// Missing handlers are skipped. Handler errors are logged and never reach
// the manager.
type ScriptObserver struct {
	engine *Engine
	logger *logrus.Logger
}

// NewScriptObserver creates an observer calling handlers defined in engine
func NewScriptObserver(engine *Engine, logger *logrus.Logger) *ScriptObserver {
	if logger == nil {
		logger = logrus.New()
	}
	return &ScriptObserver{engine: engine, logger: logger}
}

func (o *ScriptObserver) call(handler string, args ...any) {
	if _, err := o.engine.CallFunction(handler, args...); err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		o.logger.WithError(err).WithField("handler", handler).Warn("Lua handler failed")
	}
}

func (o *ScriptObserver) DeviceDiscovered(p device.Peripheral) {
	o.call(HandlerDiscover, map[string]any{
		"address": p.Address,
		"name":    p.Name,
		"rssi":    p.RSSI,
	})
}

func (o *ScriptObserver) Connected(address string) {
	o.call(HandlerConnected, address)
}

func (o *ScriptObserver) Disconnected(address string) {
	o.call(HandlerDisconnected, address)
}

func (o *ScriptObserver) ServicesReady(address string) {
	o.call(HandlerServices, address)
}

// Failed calls on_error with {kind, op, address, message}
func (o *ScriptObserver) Failed(err error) {
	info := map[string]any{
		"kind":    string(device.KindOf(err)),
		"message": err.Error(),
	}
	var derr *device.Error
	if errors.As(err, &derr) {
		info["op"] = derr.Op
		info["address"] = derr.Msg
	}
	o.call(HandlerError, info)
}
