package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/cam"
	"github.com/cudabase/arsenal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "memcheck",
	Short: "Exercise device memory management",
	Long: `memcheck lists the devices visible to the memory manager and runs a
round-trip self test through pinned buffers using either allocation strategy.

The simulated driver is always available. The CUDA driver is available when
memcheck is built with -tags cuda.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.memcheck/config.yaml)")
	rootCmd.PersistentFlags().String("driver", "sim", "device driver to use (sim or cuda)")
	rootCmd.PersistentFlags().String("verbosity", logging.VerbosityInfoFancy.String(), "log verbosity: error, warning, info or fancy")
	rootCmd.PersistentFlags().Bool("debug", false, "write debug records")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().Int("device", 0, "device made current at startup")
	rootCmd.PersistentFlags().Int("headroom", 0, "free memory in bytes a device must keep beyond a virtual allocation (0 is the 64MB default, negative disables)")
	rootCmd.PersistentFlags().Bool("synchronized", false, "guard allocators with a mutex")

	// Bind flags to viper
	for _, name := range []string{"driver", "verbosity", "debug", "no-color", "log-file", "device", "headroom", "synchronized"} {
		err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
		if err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.memcheck")
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("MEMCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine, a broken one is not
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}
}

func openLogger() (*slog.Logger, io.Closer, error) {
	verbosity, err := logging.ParseVerbosity(viper.GetString("verbosity"))
	if err != nil {
		return nil, nil, err
	}

	return logging.Open(&logging.Options{
		Verbosity: verbosity,
		Debug:     viper.GetBool("debug"),
		NoColor:   viper.GetBool("no-color"),
	}, viper.GetString("log-file"), true)
}

// session is everything a command needs to talk to the memory manager
type session struct {
	logger  *slog.Logger
	manager *cam.Manager

	closers []func() error
}

func openSession() (*session, error) {
	logger, logCloser, err := openLogger()
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:  logger,
		closers: []func() error{logCloser.Close},
	}

	drv, driverCloser, err := openDriver(viper.GetString("driver"))
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.closers = append(s.closers, driverCloser)

	var flags cam.CreateFlags
	if viper.GetBool("synchronized") {
		flags |= cam.CreateSynchronized
	}

	s.manager, err = cam.New(logger, drv, cam.CreateOptions{
		Flags:           flags,
		VirtualHeadroom: viper.GetInt("headroom"),
		Device:          viper.GetInt("device"),
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close destroys the manager and then releases the driver and log file, in that order
func (s *session) Close() error {
	var err error
	if s.manager != nil {
		err = s.manager.Destroy()
		s.manager = nil
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		err = errors.CombineErrors(err, s.closers[i]())
	}
	s.closers = nil

	return err
}
