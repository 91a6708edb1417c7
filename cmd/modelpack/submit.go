package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vyvo/modelpack/pkg/buildclient"
	"github.com/vyvo/modelpack/pkg/builder"
	"github.com/vyvo/modelpack/pkg/config"
)

func (c *cli) submitCmd() *cobra.Command {
	var (
		server string
		apiKey string
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Ask a builder service to package --dir, a path under its workspace root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadPipeline(c.configFile, cmd.Flags())
			if err != nil {
				return err
			}

			client := buildclient.NewClient(server, apiKey)
			build, err := client.SubmitBuild(cmd.Context(), builder.CreateRequest{
				Dir:              cfg.Dir,
				ModelPath:        cfg.ModelPath,
				RequirementsPath: cfg.RequirementsPath,
				EntryFile:        cfg.EntryFile,
				ImageName:        cfg.ImageName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "build %s %s\n", build.ID, build.Status)
			if !follow {
				return nil
			}

			err = client.StreamLogs(cmd.Context(), build.ID, func(line string) error {
				_, err := fmt.Fprintln(c.stdout, line)
				return err
			})
			if err != nil {
				return err
			}
			final, err := client.GetBuild(cmd.Context(), build.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "build %s %s\n", final.ID, final.Status)
			if final.Status == builder.StatusFailed {
				return errors.New(final.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", envOrDefault("MODELPACK_SERVER", "http://localhost:8085"), "builder service URL")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("MODELPACK_API_KEY"), "builder service API key")
	cmd.Flags().BoolVarP(&follow, "follow", "w", false, "stream build logs until the build finishes")
	return cmd
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
