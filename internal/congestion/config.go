package congestion

import "sync/atomic"

// Config holds the process-wide tunables from spec.md §6's Configuration
// surface table. Fields are plain atomics rather than behind a mutex:
// spec.md §5 says readers "tolerate torn reads (values are plain integers
// of word size, semantic effect bounded to next sample)", which is
// exactly what atomic.Int64/atomic.Bool give for free without forcing the
// per-sample hot path to take a lock. Registering these as a live
// sysctl-style surface (module registration, spec.md §1) is the
// operator's job, not this package's — Config is just the struct that
// surface would mutate.
type Config struct {
	// ProbeInterval (η) is the number of rounds between upward probes
	// while the cap is active. Default 20.
	ProbeInterval atomic.Int64
	// ProbePercent sets the probe gain; effective γ = ProbePercent*5-100 %.
	// Default 24.
	ProbePercent atomic.Int64
	// OptimizeFlag is the master enable for the cap & probe controller.
	// Default true.
	OptimizeFlag atomic.Bool
	// MonitorPeriod is the number of rounds to confirm a probe yielded no
	// new capacity. Default 3.
	MonitorPeriod atomic.Int64
	// UseGoodput selects RateSample.SndUna (true) vs. Delivered (false) as
	// the delivery metric for the bucket/rate estimator. Default true.
	UseGoodput atomic.Bool
	// ExcludeRTO is stored but not read by this package: the detector is
	// not reset on RTO-recovery exit. Default false.
	ExcludeRTO atomic.Bool
	// ExcludeRWND is stored but not read by this package: the detector is
	// not reset on an rwnd-limited chrono. Default false.
	ExcludeRWND atomic.Bool
	// ExcludeAppLimited resets the detector on an app-limited sample.
	// Default false.
	ExcludeAppLimited atomic.Bool
	// EnablePrintk is stored but not read by this package: diagnostic
	// events go to whatever tracer SetTracer installed, whatever this
	// field holds. Default true.
	EnablePrintk atomic.Bool
}

// DefaultConfig returns a Config populated with spec.md §6's documented
// defaults.
func DefaultConfig() *Config {
	c := &Config{}
	c.ProbeInterval.Store(20)
	c.ProbePercent.Store(24)
	c.OptimizeFlag.Store(true)
	c.MonitorPeriod.Store(3)
	c.UseGoodput.Store(true)
	c.EnablePrintk.Store(true)
	return c
}
