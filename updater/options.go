package updater

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Progress is reported after every chunk pushed to or read from the device.
type Progress struct {
	Op    CommandType
	Chunk int
	Done  int
	Total int
}

type ProgressCallback func(Progress)

// Confirmer asks the operator to approve overwriting the bootloader.
type Confirmer func(prompt string) bool

// Config holds the session configuration.
type Config struct {
	Logger           log.FieldLogger
	ProgressCallback ProgressCallback
	Confirmer        Confirmer

	// Retries is the number of additional transfer attempts after a
	// protocol error, each preceded by a recovery pulse.
	Retries int

	// ResetDelay is the time the device needs to leave reset.
	ResetDelay time.Duration

	// RecoverDelay separates the steps of the recovery pulse.
	RecoverDelay time.Duration
}

func defaultConfig() Config {
	return Config{
		Logger:       log.StandardLogger(),
		Retries:      2,
		ResetDelay:   100 * time.Millisecond,
		RecoverDelay: 100 * time.Millisecond,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

func WithLogger(logger log.FieldLogger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithProgressCallback sets a callback invoked per transferred chunk.
//
// Example:
//
//	s := updater.NewSession(port, lines,
//	    updater.WithProgressCallback(func(p updater.Progress) {
//	        fmt.Print("*")
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithConfirmer sets the interactive confirmation used by the bootloader
// overwrite gate. Without a confirmer such updates are refused.
func WithConfirmer(confirm Confirmer) Option {
	return func(c *Config) {
		c.Confirmer = confirm
	}
}

func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

func WithResetDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.ResetDelay = d
		}
	}
}

func WithRecoverDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.RecoverDelay = d
		}
	}
}
