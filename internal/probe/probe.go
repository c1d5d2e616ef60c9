// Package probe inspects the host's compute hardware and decides which
// delegate the inference engine should run on.
package probe

import (
	"fmt"
)

// Delegate is the compute backend used by an engine
type Delegate string

const (
	GPU Delegate = "GPU"
	CPU Delegate = "CPU"
)

// FeatureShaderF16 is the half-precision feature required for GPU inference
const FeatureShaderF16 = "shader-f16"

// RequiredFeatures must all be present on an adapter for GPU use
var RequiredFeatures = []string{FeatureShaderF16}

// Adapter describes a GPU adapter as seen by the probe
type Adapter struct {
	Available     bool     `json:"available"`
	Name          string   `json:"name,omitempty"`
	Features      []string `json:"features,omitempty"`
	MaxBufferSize int64    `json:"max_buffer_size,omitempty"`
}

// HasFeature reports whether the adapter supports a feature
func (a Adapter) HasFeature(feature string) bool {
	for _, f := range a.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Support is the result of evaluating an adapter
type Support struct {
	OK            bool   `json:"ok"`
	Reason        string `json:"reason,omitempty"`
	Adapter       string `json:"adapter,omitempty"`
	MaxBufferSize int64  `json:"max_buffer_size,omitempty"`
}

// Evaluate checks an adapter against the required features
func Evaluate(a Adapter) Support {
	if !a.Available {
		return Support{Reason: "No compatible GPU adapter found"}
	}
	for _, f := range RequiredFeatures {
		if !a.HasFeature(f) {
			return Support{Reason: fmt.Sprintf("Missing GPU feature: %s", f), Adapter: a.Name}
		}
	}
	return Support{OK: true, Adapter: a.Name, MaxBufferSize: a.MaxBufferSize}
}

// Decision is the delegate chosen for a model
type Decision struct {
	Delegate Delegate `json:"delegate"`
	Reason   string   `json:"reason,omitempty"`
}

// Decide picks GPU when supported and the model fits in one GPU buffer.
// A zero model size or buffer limit means unknown and is not checked.
func Decide(s Support, modelSize int64) Decision {
	if !s.OK {
		return Decision{Delegate: CPU, Reason: s.Reason}
	}
	if modelSize > 0 && s.MaxBufferSize > 0 && modelSize > s.MaxBufferSize {
		return Decision{Delegate: CPU, Reason: "Model too large for GPU buffer"}
	}
	return Decision{Delegate: GPU}
}

// Status is the human readable readiness line for a delegate outcome
func Status(d Decision, used Delegate) string {
	if used == GPU {
		return "Ready - GPU acceleration active"
	}
	if d.Reason != "" {
		return fmt.Sprintf("Ready - CPU fallback (%s)", d.Reason)
	}
	return "Ready - CPU fallback"
}
