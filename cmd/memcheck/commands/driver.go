package commands

import (
	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/driver"
	"github.com/cudabase/arsenal/driver/sim"
	"github.com/spf13/viper"
)

// driverFactory opens a driver and returns a function that releases it
type driverFactory func() (driver.Driver, func() error, error)

var driverFactories = map[string]driverFactory{
	"sim": openSimDriver,
}

func openDriver(name string) (driver.Driver, func() error, error) {
	factory, ok := driverFactories[name]
	if !ok {
		return nil, nil, errors.Newf("driver %q is not available in this build", name)
	}

	return factory()
}

func init() {
	viper.SetDefault("sim.devices", 1)
	viper.SetDefault("sim.memory", 8*1024*1024*1024)
	viper.SetDefault("sim.granularity", 2*1024*1024)
	viper.SetDefault("sim.max-chunk", 0)
}

// openSimDriver builds identical simulated devices from the sim.* configuration keys
func openSimDriver() (driver.Driver, func() error, error) {
	count := viper.GetInt("sim.devices")
	if count < 1 {
		return nil, nil, errors.Newf("sim.devices must be at least 1, got %d", count)
	}

	options := sim.Options{}
	for i := 0; i < count; i++ {
		options.Devices = append(options.Devices, sim.DeviceOptions{
			TotalMemory: viper.GetInt("sim.memory"),
			Granularity: viper.GetInt("sim.granularity"),
			MaxChunk:    viper.GetInt("sim.max-chunk"),
		})
	}

	return sim.New(options), func() error { return nil }, nil
}
