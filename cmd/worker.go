/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/trektide/apiserver/config"
	"github.com/trektide/apiserver/internal/mail"
	"github.com/trektide/apiserver/internal/mq"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the mail delivery worker",
	Long: `Runs the worker that consumes queued mail jobs and delivers
them over SMTP. Usage:

	apiserver worker
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		queue, err := mq.Connect(cmd.Context(), cfg.MQ)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect mq: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			_ = queue.Close()
		}()

		sender, err := mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to configure smtp: %v\n", err)
			os.Exit(1)
		}

		logger.Info("mail worker started", "channel", mail.DefaultChannel)
		if err := mail.RunWorker(cmd.Context(), queue, mail.DefaultChannel, sender, logger); err != nil {
			fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
