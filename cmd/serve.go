package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-yolox/server"
)

var (
	listenAddress string
	uploadDir     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload form and detection results over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			cfg.Server.ListenAddress = listenAddress
		}
		if cmd.Flags().Changed("upload-dir") {
			cfg.Server.UploadDir = uploadDir
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		d, engine, err := newDetector(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer engine.Close()

		s, err := server.New(d, cfg.Server, logger)
		if err != nil {
			return err
		}
		return s.Run(cmd.Context(), cfg.Server.ListenAddress)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddress, "listen", "l", ":8080", "Address to listen on (overrides the config file)")
	serveCmd.Flags().StringVarP(&uploadDir, "upload-dir", "u", "uploads", "Directory for uploads and results (overrides the config file)")
	rootCmd.AddCommand(serveCmd)
}
