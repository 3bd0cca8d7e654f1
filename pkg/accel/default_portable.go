//go:build accel_portable

package accel

func Default() Accelerator {
	return Portable{}
}
