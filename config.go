// Copyright 2024 The vaultengine Authors
// SPDX-License-Identifier: Apache-2.0

package vaultengine

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/shadowglen/vaultengine/internal/boxprovider"
	"github.com/shadowglen/vaultengine/internal/guarded"
)

// GuardedBufferMode selects how aggressively guarded buffers protect
// their contents, per spec §6's guarded_buffer_mode option.
type GuardedBufferMode string

const (
	// GuardedBufferFull asks for every protection spec §4.1 describes:
	// guard pages, canaries, and mlock, where the platform supports
	// them. This is the default.
	GuardedBufferFull GuardedBufferMode = "full"
	// GuardedBufferReduced asks for zeroisation-only behavior, trading
	// the mmap/guard-page machinery for a plain heap allocation. Useful
	// on platforms or in test environments where mmap is unavailable or
	// undesirable.
	GuardedBufferReduced GuardedBufferMode = "reduced"
)

// BoxProviderName selects the authenticated-encryption implementation
// backing vault and key encryption, per spec §6's box_provider option.
type BoxProviderName string

// BoxProviderXChaCha20Poly1305 is the only box provider this engine
// ships; the option exists so the config shape documents the decision
// point even though there is currently one supported value.
const BoxProviderXChaCha20Poly1305 BoxProviderName = "xchacha20poly1305"

// Config models spec §6's three recognised configuration options plus
// the master-key input every Engine needs. It is built from a
// map[string]interface{} via mapstructure, mirroring the teacher's own
// framework.FieldSchema/data.Get field-decode idiom.
type Config struct {
	// MasterKey is a 32-byte secret supplied out of band per spec §6;
	// this package never derives it from a passphrase. NewEngine and
	// DecodeConfig only check its length: each client's key store
	// generates its own random master key, and Engine.Commit and
	// Engine.LoadClient take the snapshot master key as an argument.
	MasterKey []byte `mapstructure:"master_key"`

	// SweepFrequency configures the Store's background expiry sweep.
	// Zero (the default) means lazy-only expiry enforcement.
	SweepFrequency time.Duration `mapstructure:"sweep_frequency"`

	// BoxProvider selects the authenticated-encryption implementation.
	// Empty defaults to BoxProviderXChaCha20Poly1305.
	BoxProvider BoxProviderName `mapstructure:"box_provider"`

	// GuardedBufferMode selects the guarded-memory protection level.
	// Empty defaults to GuardedBufferFull.
	GuardedBufferMode GuardedBufferMode `mapstructure:"guarded_buffer_mode"`
}

// DecodeConfig decodes raw (as a caller embedding this library inside
// a larger configuration system would supply it) into a Config via
// mapstructure, then validates and defaults it.
func DecodeConfig(raw map[string]interface{}) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, fmt.Errorf("vaultengine: build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("vaultengine: decode config: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.BoxProvider == "" {
		c.BoxProvider = BoxProviderXChaCha20Poly1305
	}
	if c.GuardedBufferMode == "" {
		c.GuardedBufferMode = GuardedBufferFull
	}
	return c
}

func (c Config) validate() error {
	provider, err := c.provider()
	if err != nil {
		return err
	}
	if len(c.MasterKey) != provider.KeyLength() {
		return fmt.Errorf("vaultengine: master_key must be %d bytes, got %d", provider.KeyLength(), len(c.MasterKey))
	}
	switch c.GuardedBufferMode {
	case GuardedBufferFull, GuardedBufferReduced:
	default:
		return fmt.Errorf("vaultengine: unrecognised guarded_buffer_mode %q", c.GuardedBufferMode)
	}
	if c.SweepFrequency < 0 {
		return fmt.Errorf("vaultengine: sweep_frequency must not be negative")
	}
	return nil
}

func (c Config) guardedMode() guarded.Mode {
	if c.GuardedBufferMode == GuardedBufferReduced {
		return guarded.ModeReduced
	}
	return guarded.ModeFull
}

func (c Config) provider() (boxprovider.Provider, error) {
	switch c.BoxProvider {
	case "", BoxProviderXChaCha20Poly1305:
		return boxprovider.XChaCha20Poly1305{}, nil
	default:
		return nil, fmt.Errorf("vaultengine: unrecognised box_provider %q", c.BoxProvider)
	}
}
