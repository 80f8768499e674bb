package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices and their memory",
	Long: `Display every device visible to the memory manager with its total and
currently free memory.`,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) (err error) {
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
	for _, info := range s.manager.Devices() {
		free, err := s.manager.FreeMemory(info.Index)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%d: %s\n", info.Index, info.Name)
		fmt.Fprintf(out, "   Total: %.2f GB\n", float64(info.TotalMemory)/(1024*1024*1024))
		fmt.Fprintf(out, "   Free:  %.2f GB\n", float64(free)/(1024*1024*1024))
	}

	return nil
}
