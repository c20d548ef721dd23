// Package radio tracks availability and enablement of the local adapter.
package radio

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
)

// Controller gates every link-layer operation on the adapter being present and powered
type Controller struct {
	mu     sync.RWMutex
	radio  device.Radio
	logger *logrus.Logger
}

// NewController creates an uninitialized controller
func NewController(logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{logger: logger}
}

// Initialize binds the controller to r. A second call after success is a
// no-op and ignores its argument.
func (c *Controller) Initialize(r device.Radio) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.radio != nil {
		return nil
	}
	if r == nil || !r.IsPresent() {
		return device.NewError(device.KindRadioUnsupported, "initialize", fmt.Errorf("no adapter present"))
	}
	if !r.SupportsLE() {
		return device.NewError(device.KindRadioUnsupported, "initialize", fmt.Errorf("adapter lacks low energy support"))
	}

	c.radio = r
	c.logger.WithField("enabled", r.IsEnabled()).Debug("Radio initialized")
	return nil
}

func (c *Controller) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.radio != nil
}

// Enable powers the radio on unless it already is
func (c *Controller) Enable() error {
	return c.setEnabled("enable", true)
}

// Disable powers the radio off unless it already is
func (c *Controller) Disable() error {
	return c.setEnabled("disable", false)
}

func (c *Controller) setEnabled(op string, want bool) error {
	c.mu.RLock()
	r := c.radio
	c.mu.RUnlock()

	if r == nil {
		return device.NewError(device.KindNotInitialized, op, nil)
	}
	if r.IsEnabled() == want {
		return nil
	}

	var err error
	if want {
		err = r.RequestEnable()
	} else {
		err = r.RequestDisable()
	}
	if err != nil {
		c.logger.WithError(err).WithField("op", op).Error("Radio request failed")
		return fmt.Errorf("radio %s: %w", op, err)
	}

	c.logger.WithField("op", op).Info("Radio power change requested")
	return nil
}

// IsUsable reports whether the radio is initialized, present and enabled
func (c *Controller) IsUsable() bool {
	return c.Check() == nil
}

// Check returns ErrNotInitialized or ErrRadioUnavailable when the radio
// cannot be used, nil otherwise.
func (c *Controller) Check() error {
	c.mu.RLock()
	r := c.radio
	c.mu.RUnlock()

	if r == nil {
		return device.ErrNotInitialized
	}
	if !r.IsPresent() || !r.IsEnabled() {
		return device.ErrRadioUnavailable
	}
	return nil
}
