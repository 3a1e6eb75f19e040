package encoder

import "gorgonia.org/tensor"

// Device selects the tensor.Engine backing matmul. CPU (gorgonia's StdEng)
// is the only engine this module wires up; the math in this package is
// engine-agnostic (it goes through gorgonia.org/tensor, which dispatches to
// whatever Engine a *Dense was created against), so New is the seam a
// different engine would be injected through, should one ever be wired up.
type Device struct {
	engine tensor.Engine
}

// CPU returns the default, dependency-free device.
func CPU() *Device {
	return &Device{engine: tensor.StdEng{}}
}

// New wraps an explicit tensor.Engine as a Device.
func New(engine tensor.Engine) *Device {
	return &Device{engine: engine}
}

// Engine returns the underlying tensor.Engine, or the default StdEng if d is nil.
func (d *Device) Engine() tensor.Engine {
	if d == nil || d.engine == nil {
		return tensor.StdEng{}
	}
	return d.engine
}
