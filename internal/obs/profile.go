package obs

import (
	pyroscope "github.com/grafana/pyroscope-go"
)

// StartProfiler starts continuous profiling against a Pyroscope server.
// The returned stop function is safe to call once; a nil return with nil
// error means profiling was not configured.
func StartProfiler(appName, serverAddr string, tags map[string]string) (func(), error) {
	if serverAddr == "" {
		return nil, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   serverAddr,
		Tags:            tags,
		Logger:          quietLogger{},
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

	return func() { _ = profiler.Stop() }, nil
}

type quietLogger struct{}

func (quietLogger) Infof(_ string, _ ...interface{})  {}
func (quietLogger) Debugf(_ string, _ ...interface{}) {}
func (quietLogger) Errorf(_ string, _ ...interface{}) {}
