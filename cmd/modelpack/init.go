package main

import (
	"fmt"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/vyvo/modelpack/pkg/builder"
	"github.com/vyvo/modelpack/pkg/config"
)

type initAnswers struct {
	ModelPath        string `survey:"model_path"`
	RequirementsPath string `survey:"requirements_path"`
	EntryFile        string `survey:"entry_file"`
	ImageName        string `survey:"image_name"`
	ServiceMode      string `survey:"service_mode"`
}

func (c *cli) initCmd() *cobra.Command {
	var useDefaults bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a modelpack.yaml manifest into --dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadPipeline(c.configFile, cmd.Flags())
			if err != nil {
				return err
			}

			answers := initAnswers{
				ModelPath:        cfg.ModelPath,
				RequirementsPath: cfg.RequirementsPath,
				EntryFile:        cfg.EntryFile,
				ImageName:        cfg.ImageName,
				ServiceMode:      cfg.ServiceMode,
			}
			if !useDefaults {
				if err := c.ask(initQuestions(answers), &answers); err != nil {
					return err
				}
			}
			if _, err := builder.ParseServiceMode(answers.ServiceMode); err != nil {
				return err
			}

			target := filepath.Join(cfg.Dir, builder.ManifestFileName)
			err = builder.WriteManifest(target, builder.Manifest{
				Job: builder.Job{
					ModelPath:        answers.ModelPath,
					RequirementsPath: answers.RequirementsPath,
					EntryFile:        answers.EntryFile,
					ImageName:        answers.ImageName,
				},
				ServiceMode: answers.ServiceMode,
				BaseImage:   cfg.BaseImage,
				Port:        cfg.Port,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "wrote %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&useDefaults, "yes", "y", false, "accept flag and config values without prompting")
	return cmd
}

func initQuestions(defaults initAnswers) []*survey.Question {
	return []*survey.Question{
		{
			Name:     "model_path",
			Prompt:   &survey.Input{Message: "Model file (a glob such as *.pkl works):", Default: defaults.ModelPath},
			Validate: survey.Required,
		},
		{
			Name:     "requirements_path",
			Prompt:   &survey.Input{Message: "Requirements file:", Default: defaults.RequirementsPath},
			Validate: survey.Required,
		},
		{
			Name:     "entry_file",
			Prompt:   &survey.Input{Message: "Scoring module:", Default: defaults.EntryFile},
			Validate: survey.Required,
		},
		{
			Name:     "image_name",
			Prompt:   &survey.Input{Message: "Image name:", Default: defaults.ImageName},
			Validate: survey.Required,
		},
		{
			Name: "service_mode",
			Prompt: &survey.Select{
				Message: "Service flavour:",
				Options: []string{string(builder.ServiceModeProduction), string(builder.ServiceModeDebug)},
				Default: defaults.ServiceMode,
			},
		},
	}
}
