package race

import (
	"fmt"
	"strings"
	"time"
)

// Config tunes every stage of a lot race. Zero fields fall back to the
// defaults of DefaultConfig.
type Config struct {
	// Burst
	Attempts       int
	AttemptTimeout time.Duration
	PurchasePath   string
	MaxBodyBytes   int64

	// Clock
	CoarseThreshold time.Duration
	CoarseInterval  time.Duration
	FineStep        time.Duration
	SpinWindow      time.Duration

	// Warm-up
	WarmupPath    string
	WarmupTimeout time.Duration

	// Classification / resolution
	SuccessStatuses []string
	LoginPath       string
	TieBreak        Policy
}

func DefaultConfig() Config {
	return Config{
		Attempts:        5,
		AttemptTimeout:  10 * time.Second,
		PurchasePath:    "achat/action",
		MaxBodyBytes:    1 << 20,
		CoarseThreshold: 3 * time.Second,
		CoarseInterval:  250 * time.Millisecond,
		FineStep:        500 * time.Microsecond,
		SpinWindow:      2 * time.Millisecond,
		WarmupPath:      "/",
		WarmupTimeout:   2 * time.Second,
		SuccessStatuses: []string{"success"},
		LoginPath:       "login",
		TieBreak:        EarliestCompletion,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if strings.TrimSpace(c.PurchasePath) == "" {
		c.PurchasePath = d.PurchasePath
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.CoarseThreshold <= 0 {
		c.CoarseThreshold = d.CoarseThreshold
	}
	if c.CoarseInterval <= 0 {
		c.CoarseInterval = d.CoarseInterval
	}
	if c.FineStep <= 0 {
		c.FineStep = d.FineStep
	}
	if c.SpinWindow < 0 {
		c.SpinWindow = d.SpinWindow
	}
	if strings.TrimSpace(c.WarmupPath) == "" {
		c.WarmupPath = d.WarmupPath
	}
	if c.WarmupTimeout <= 0 {
		c.WarmupTimeout = d.WarmupTimeout
	}
	if len(c.SuccessStatuses) == 0 {
		c.SuccessStatuses = d.SuccessStatuses
	}
	if strings.TrimSpace(c.LoginPath) == "" {
		c.LoginPath = d.LoginPath
	}
	if c.TieBreak == "" {
		c.TieBreak = d.TieBreak
	}
	return c
}

// Validate rejects settings that would make a race meaningless.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.FineStep >= time.Millisecond*10 {
		return fmt.Errorf("race: fine step %s too coarse for the fine phase", c.FineStep)
	}
	if c.CoarseInterval > c.CoarseThreshold {
		return fmt.Errorf("race: coarse interval %s exceeds coarse threshold %s", c.CoarseInterval, c.CoarseThreshold)
	}
	if c.WarmupTimeout > c.CoarseThreshold {
		return fmt.Errorf("race: warm-up timeout %s exceeds coarse threshold %s", c.WarmupTimeout, c.CoarseThreshold)
	}
	if _, err := ParsePolicy(string(c.TieBreak)); err != nil {
		return err
	}
	return nil
}
