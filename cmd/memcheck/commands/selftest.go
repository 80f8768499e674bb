package commands

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/cam"
	"github.com/cudabase/arsenal/driver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Round-trip data through pinned device buffers",
	Long: `Fill two pinned buffers with 2i and 2i+1, upload them on the device's
upload stream, download them on the download stream and verify that every
pair sums to 4i+1.

Each selected strategy is tested in turn.`,
	RunE: runSelftest,
}

func init() {
	selftestCmd.Flags().Int("elements", 1<<20, "number of int32 elements per buffer")
	selftestCmd.Flags().StringSlice("strategies", []string{"default", "virtual"}, "strategies to test")
	selftestCmd.Flags().Bool("stats", false, "print the manager's statistics after the test")

	for _, name := range []string{"elements", "strategies", "stats"} {
		err := viper.BindPFlag("selftest."+name, selftestCmd.Flags().Lookup(name))
		if err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(selftestCmd)
}

func parseStrategy(name string) (cam.Strategy, error) {
	switch name {
	case "default":
		return cam.StrategyDefault, nil
	case "virtual":
		return cam.StrategyVirtual, nil
	}

	return 0, errors.Newf("unknown strategy %q", name)
}

func runSelftest(cmd *cobra.Command, args []string) (err error) {
	elements := viper.GetInt("selftest.elements")
	if elements < 1 {
		return errors.Newf("elements must be at least 1, got %d", elements)
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		closeErr := s.Close()
		if err == nil {
			err = closeErr
		}
	}()

	out := cmd.OutOrStdout()
	for _, name := range viper.GetStringSlice("selftest.strategies") {
		strategy, err := parseStrategy(name)
		if err != nil {
			return err
		}

		err = roundTrip(s.manager, strategy, viper.GetInt("device"), elements)
		if err != nil {
			return errors.Wrapf(err, "%s self test", strategy)
		}

		fmt.Fprintf(out, "%s: %d elements verified\n", strategy, elements)
	}

	if viper.GetBool("selftest.stats") {
		_, err = io.WriteString(out, s.manager.BuildStatsString(true)+"\n")
		if err != nil {
			return err
		}
	}

	return nil
}

// roundTrip uploads two patterned pinned buffers, downloads them into fresh mirrors and checks the
// element-wise sums
func roundTrip(manager *cam.Manager, strategy cam.Strategy, device, elements int) (err error) {
	size := elements * 4

	upload, err := manager.DefaultStream(device, driver.StreamUpload)
	if err != nil {
		return err
	}

	download, err := manager.DefaultStream(device, driver.StreamDownload)
	if err != nil {
		return err
	}

	buffers := make([]*cam.PinnedBuffer, 2)
	defer func() {
		for _, buffer := range buffers {
			if buffer != nil {
				err = errors.CombineErrors(err, buffer.Close())
			}
		}
	}()

	for i := range buffers {
		buffers[i], err = manager.NewPinnedBuffer(strategy)
		if err != nil {
			return err
		}

		err = buffers[i].Initialize(size)
		if err != nil {
			return err
		}

		host := buffers[i].HostHandle()
		for element := 0; element < elements; element++ {
			binary.LittleEndian.PutUint32(host[element*4:], uint32(2*element+i))
		}

		err = buffers[i].UploadAsync(upload)
		if err != nil {
			return err
		}
	}

	err = manager.Synchronize(upload)
	if err != nil {
		return err
	}

	for _, buffer := range buffers {
		clear(buffer.HostHandle())

		err = buffer.DownloadAsync(download)
		if err != nil {
			return err
		}
	}

	err = manager.Synchronize(download)
	if err != nil {
		return err
	}

	a, b := buffers[0].HostHandle(), buffers[1].HostHandle()
	for element := 0; element < elements; element++ {
		sum := binary.LittleEndian.Uint32(a[element*4:]) + binary.LittleEndian.Uint32(b[element*4:])
		if sum != uint32(4*element+1) {
			return errors.Newf("element %d: expected %d, got %d", element, 4*element+1, sum)
		}
	}

	return nil
}
