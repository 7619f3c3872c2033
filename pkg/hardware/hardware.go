package hardware

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/xhad/distill/internal/types"
)

// Conservative fallback applied when memory introspection is unavailable.
const fallbackMemoryBytes = 2 << 30

// Detector probes the running host. It satisfies types.CapacityProbe.
type Detector struct{}

func NewDetector() Detector { return Detector{} }

// Probe returns logical core count and available memory. Core count cannot
// fail; a memory probe failure is surfaced so callers can fall back.
func (Detector) Probe() (types.Capacity, error) {
	capacity := types.Capacity{LogicalCores: runtime.NumCPU()}

	mem, err := availableMemory()
	if err != nil {
		capacity.AvailableMemoryBytes = fallbackMemoryBytes
		return capacity, fmt.Errorf("memory probe failed: %w", err)
	}
	capacity.AvailableMemoryBytes = mem
	return capacity, nil
}

// availableMemory reads MemAvailable from /proc/meminfo. On platforms without
// procfs this returns an error and the conservative fallback applies.
func availableMemory() (int64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemAvailable not present in /proc/meminfo")
}

// Static is a fixed-capacity probe for tests and overrides.
type Static struct {
	Capacity types.Capacity
	Err      error
}

func (s Static) Probe() (types.Capacity, error) { return s.Capacity, s.Err }
