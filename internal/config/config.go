// Package config parses and validates the beamrecv CLI surface.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

// ErrConfigInvalid wraps every validation failure below.
var ErrConfigInvalid = errors.New("config: invalid")

// Config is the validated run configuration for one beamrecv process.
type Config struct {
	ThreadCount          int
	CycleCount           int
	FileOutput           string
	NetRawOut            string
	ULASpacingWavelength float64
	ULAEnabled           bool
	SNRScaler            float64
	WeightedAvgDepth     int
	RandomizeAmplitudes  bool
}

const (
	defaultCycleCount       = 4
	defaultSNRScaler        = 40.0
	defaultWeightedAvgDepth = 3
)

// Parse builds a Config from args (typically os.Args[1:]), applying
// defaults and rejecting a missing --thread-count.
func Parse(args []string) (Config, error) {
	fs := pflag.NewFlagSet("beamrecv", pflag.ContinueOnError)

	threadCount := fs.Int("thread-count", 0, "number of worker threads (required)")
	cycleCount := fs.Int("cycle-count", defaultCycleCount, "pipe slots per worker")
	fileOutput := fs.String("file-output", "", "binary message file sink path")
	netRawOut := fs.String("net-raw-out", "", "raw-hex egress host:port")
	ulaSpacing := fs.Float64("ula-spacing-wavelength", 0, "engage ULA bring-up mode with this element spacing in wavelengths")
	snrScaler := fs.Float64("snr-scaler", defaultSNRScaler, "external gain on SNR weights")
	weightedAvgDepth := fs.Int("weighted-avg-depth", defaultWeightedAvgDepth, "rolling steering-vector history depth")
	randomizeAmplitudes := fs.Bool("randomize-amplitudes", false, "draw random amplitudes alongside random thetas for free slots")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ThreadCount:          *threadCount,
		CycleCount:           *cycleCount,
		FileOutput:           *fileOutput,
		NetRawOut:            *netRawOut,
		ULASpacingWavelength: *ulaSpacing,
		ULAEnabled:           fs.Changed("ula-spacing-wavelength"),
		SNRScaler:            *snrScaler,
		WeightedAvgDepth:     *weightedAvgDepth,
		RandomizeAmplitudes:  *randomizeAmplitudes,
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ThreadCount <= 0 {
		return fmt.Errorf("%w: --thread-count is required and must be > 0", ErrConfigInvalid)
	}
	if c.CycleCount <= 0 {
		return fmt.Errorf("%w: --cycle-count must be > 0", ErrConfigInvalid)
	}
	if c.WeightedAvgDepth <= 0 {
		return fmt.Errorf("%w: --weighted-avg-depth must be > 0", ErrConfigInvalid)
	}
	return nil
}
