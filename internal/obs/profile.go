package obs

import (
	pyroscope "github.com/grafana/pyroscope-go"
)

// ProfileConfig controls continuous profiling. An empty ServerAddress
// disables it.
type ProfileConfig struct {
	ApplicationName string            `json:"application_name"`
	ServerAddress   string            `json:"server_address"`
	Tags            map[string]string `json:"tags"`
}

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...any)  {}
func (emptyLogger) Debugf(string, ...any) {}
func (emptyLogger) Errorf(string, ...any) {}

// StartProfiler starts the pyroscope agent and returns a stop function.
// With no server configured it is a no-op.
func StartProfiler(cfg ProfileConfig) (func() error, error) {
	if cfg.ServerAddress == "" {
		return func() error { return nil }, nil
	}
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = "simd"
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags:            cfg.Tags,
		Logger:          emptyLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, err
	}
	return profiler.Stop, nil
}
