package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"PdfVault/config"
	"PdfVault/internal/app"
	"PdfVault/internal/download"
	"PdfVault/internal/mq"
	"PdfVault/internal/task"
	"PdfVault/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:   "pdfvault-worker",
	Short: "Process queued PDF download runs",
	Long: `pdfvault-worker consumes runs queued by the API server (RUN_MODE=queue).
The run subcommand processes one window of a catalog file in the foreground.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.InitConfig()
		verbose, _ := cmd.Flags().GetCount("verbose")
		switch {
		case verbose == 1:
			logger.SetLevel(logger.DebugLevel)
		case verbose > 1:
			logger.SetLevel(logger.TraceLevel)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, config.AppConfig, task.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := mq.Dial(a.Config.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		defer client.Close()

		logger.WithField("setup", a.Describe()).Info("run worker started")
		return worker.Run(ctx, client, a.Runner, worker.Options{
			Prefetch:    a.Config.RabbitMQPrefetch,
			RetryMax:    a.Config.RunRetryMax,
			RetryDelays: a.Config.RunRetryDelays,
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <source file>",
	Short: "Download one window of a catalog file in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetInt("start")
		count, _ := cmd.Flags().GetInt("count")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, config.AppConfig, task.Options{OnProgress: printProgress})
		if err != nil {
			return err
		}
		defer a.Close()

		req := task.StartRequest{SourceFile: args[0], StartRow: start}
		if count >= 0 {
			req.RowCount = &count
		}
		status, err := a.Runner.RunForeground(ctx, req)
		if status != nil {
			fmt.Println()
			fmt.Printf("%-20s %s\n", "Task", status.TaskID)
			fmt.Printf("%-20s %s\n", "Status", status.Status)
			fmt.Printf("%-20s %d\n", "Downloaded", status.Counters.Successful)
			fmt.Printf("%-20s %d\n", "Already downloaded", status.Counters.AlreadyDownloaded)
			fmt.Printf("%-20s %d\n", "Failed", status.Counters.Failed)
			fmt.Printf("%-20s %s\n", "Elapsed", status.Elapsed.Round(time.Second))
		}
		return err
	},
}

func printProgress(_ string, c download.Counters) {
	fmt.Printf("\rprocessed %d  downloaded %d  already %d  failed %d",
		c.ProcessedRows, c.Successful, c.AlreadyDownloaded, c.Failed)
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Verbose output (use -v or -vv)")
	runCmd.Flags().Int("start", 0, "first data row of the window (0 is the row after the header)")
	runCmd.Flags().Int("count", -1, "number of rows to process, negative for the rest of the file")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
