package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/objmanifest/internal/observability"
	"github.com/3leaps/objmanifest/pkg/partition"
)

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "Print the partition set a run would list",
	Long: `Print the partitions selected by the scheme, --partitions filters and
--partitions-file, one per line. No bucket access is needed.

Example:
  objmanifest partitions --partitions 'ff*'
  objmanifest partitions --partitions '0*' --save first-sixteenth.yaml
  objmanifest partitions --partition-width 2 --count`,
	RunE: runPartitions,
}

var (
	partitionsSave  string
	partitionsCount bool
)

func init() {
	rootCmd.AddCommand(partitionsCmd)

	f := partitionsCmd.Flags()
	addPartitionFlags(f)
	f.StringVar(&partitionsSave, "save", "", "Also write the set as a partition list file")
	f.BoolVar(&partitionsCount, "count", false, "Print only the number of partitions")
}

func runPartitions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidatePartitioning(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid partition scheme", err)
	}

	parts, err := resolvePartitions(cfg)
	if err != nil {
		observability.CLILogger.Error("Invalid partition selection", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid partition selection", err)
	}

	if partitionsSave != "" {
		if err := partition.SaveList(partitionsSave, parts); err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot write partition list", err)
		}
	}

	if partitionsCount {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), len(parts))
		return err
	}
	return printPartitions(cmd.OutOrStdout(), parts)
}

func printPartitions(w io.Writer, parts []string) error {
	bw := bufio.NewWriter(w)
	for _, p := range parts {
		if _, err := bw.WriteString(p + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
