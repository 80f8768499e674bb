//go:build cuda

package commands

import (
	"github.com/cudabase/arsenal/driver"
	"github.com/cudabase/arsenal/driver/cuda"
)

func init() {
	driverFactories["cuda"] = func() (driver.Driver, func() error, error) {
		drv, err := cuda.Open()
		if err != nil {
			return nil, nil, err
		}

		return drv, drv.Close, nil
	}
}
