// Package ringconfig loads the (capacity, item_size) pair a SharedRing
// owner needs to call sharedring.NewOwner from a TOML config file.
package ringconfig

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/alephtx/shmring/ringbuf"
)

var (
	ErrInvalidCapacity = errors.New("ringconfig: capacity must be > 0")
	ErrInvalidItemSize = errors.New("ringconfig: item_size must be > 0")
	ErrRegionTooLarge  = errors.New("ringconfig: capacity * item_size overflows a uint64 region size")
)

// Config is the on-disk shape:
//
//	[ring]
//	capacity  = 1024
//	item_size = 64
type Config struct {
	Ring struct {
		Capacity uint64 `toml:"capacity"`
		ItemSize uint32 `toml:"item_size"`
	} `toml:"ring"`
}

// Load reads and validates a ring configuration from path. Capacity and
// ItemSize must both be nonzero, and their product must not overflow the
// uint64 region-size computation sharedring.NewOwner performs.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("ringconfig: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the bounds Load enforces, exported separately so
// callers building a Config in code (rather than from a file) can reuse
// the same checks.
func (c Config) Validate() error {
	if c.Ring.Capacity == 0 {
		return ErrInvalidCapacity
	}
	if c.Ring.ItemSize == 0 {
		return ErrInvalidItemSize
	}
	if c.Ring.Capacity > math.MaxUint64/uint64(c.Ring.ItemSize) {
		return ErrRegionTooLarge
	}
	// RequiredLen adds the page-aligned slot base on top of
	// capacity*item_size; reject configs that would overflow once that
	// offset is accounted for too.
	product := c.Ring.Capacity * uint64(c.Ring.ItemSize)
	if product > math.MaxUint64-ringbuf.SlotBase() {
		return ErrRegionTooLarge
	}
	return nil
}
