package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyvo/modelpack/pkg/builder"
)

// stageCmd runs the pipeline up to and including target. Each invocation is
// a fresh process, so the earlier stages are replayed first.
func (c *cli) stageCmd(use, short string, target builder.Stage) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			steps := []struct {
				stage builder.Stage
				fn    func(context.Context) error
			}{
				{builder.StageValidated, s.orch.Validate},
				{builder.StageServiceGenerated, s.orch.GenerateService},
				{builder.StageImageBuilt, s.orch.BuildImage},
			}
			for _, step := range steps {
				if err := step.fn(cmd.Context()); err != nil {
					return err
				}
				if step.stage == target {
					break
				}
			}
			fmt.Fprintf(c.stdout, "%s: %s\n", use, s.orch.Stage())
			return nil
		},
	}
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Validate, generate, build the image and remove the generated files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.orch.RunAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "built %s\n", s.orch.Job().Tag())
			return nil
		},
	}
}

func (c *cli) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove the generated service file and Dockerfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			return s.orch.Cleanup(cmd.Context())
		},
	}
}

func (c *cli) launchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "launch",
		Short: "Run the built image, publishing --port",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			return s.orch.Launch(cmd.Context(), s.cfg.Port)
		},
	}
}
