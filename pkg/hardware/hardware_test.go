package hardware_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/distill/internal/types"
	"github.com/xhad/distill/pkg/hardware"
)

func TestProbeReportsCores(t *testing.T) {
	capacity, _ := hardware.NewDetector().Probe()

	// Memory introspection may fail on exotic systems; cores never should.
	assert.Positive(t, capacity.LogicalCores)
}

func TestStaticProbe(t *testing.T) {
	want := types.Capacity{LogicalCores: 8, AvailableMemoryBytes: 4 << 30}
	capacity, err := hardware.Static{Capacity: want}.Probe()

	assert.NoError(t, err)
	assert.Equal(t, want, capacity)
}

func TestStaticProbeError(t *testing.T) {
	probeErr := errors.New("no /proc here")
	_, err := hardware.Static{Err: probeErr}.Probe()

	assert.ErrorIs(t, err, probeErr)
}
