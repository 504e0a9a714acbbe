package config

import (
	"fmt"
	"strings"
)

// Backend selections recognised by the runner. BackendAuto resolves to a
// concrete backend during Prepare, based on engine availability.
const (
	BackendAuto       = "auto"
	BackendCPU        = "cpu"
	BackendGPUCompute = "gpu-compute"
	BackendGPUPixel   = "gpu-pixel"
)

// Channel orders for the input/output tensor layout. The engine supports a
// single process-wide layout mode at a time.
const (
	OrderNCHW = "nchw"
	OrderNHWC = "nhwc"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendAuto
	}
	switch backend {
	case BackendAuto, BackendCPU, BackendGPUCompute, BackendGPUPixel:
		return backend, nil
	case "gpu", "compute":
		return BackendGPUCompute, nil
	case "pixel", "pixel-shader":
		return BackendGPUPixel, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s|%s|%s)",
			raw,
			BackendAuto,
			BackendCPU,
			BackendGPUCompute,
			BackendGPUPixel,
		)
	}
}

func NormalizeChannelOrder(raw string) (string, error) {
	order := strings.ToLower(strings.TrimSpace(raw))
	if order == "" {
		order = OrderNCHW
	}
	switch order {
	case OrderNCHW, OrderNHWC:
		return order, nil
	case "channels-first", "channel-first":
		return OrderNCHW, nil
	case "channels-last", "channel-last":
		return OrderNHWC, nil
	default:
		return "", fmt.Errorf("invalid channel order %q (expected %s|%s)", raw, OrderNCHW, OrderNHWC)
	}
}
