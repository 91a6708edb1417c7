package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/vyvo/modelpack/pkg/builder"
	"github.com/vyvo/modelpack/pkg/config"
	"github.com/vyvo/modelpack/pkg/remote"
	"github.com/vyvo/modelpack/pkg/telemetry"
)

type cli struct {
	stdout io.Writer
	stderr io.Writer

	// runner replaces the local exec runner; tests set it.
	runner builder.Runner
	ask    func(qs []*survey.Question, response any) error

	configFile string
	verbose    bool
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout: stdout,
		stderr: stderr,
		ask: func(qs []*survey.Question, response any) error {
			return survey.Ask(qs, response)
		},
	}
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:   "modelpack",
		Short: "Package a trained model into a containerized scoring service",
		Long: `modelpack turns a directory holding a serialized model, a scoring module and
a requirements file into a container image that serves POST /score/.

Settings come from modelpack.yaml, MODELPACK_* environment variables and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configFile, "file", "f", "", "job manifest (default ./modelpack.yaml)")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	pf.String("dir", ".", "directory holding the model assets")
	pf.String("model-path", "model.pkl", "model file or glob, relative to --dir")
	pf.String("requirements-path", builder.DefaultRequirementsPath, "requirements file, relative to --dir")
	pf.String("entry-file", builder.DefaultEntryFile, "scoring module, relative to --dir")
	pf.String("image-name", builder.DefaultImageName, "image name, tagged :latest")
	pf.String("build-tool", builder.DefaultBuildTool, "image build tool")
	pf.String("runtime-tool", builder.DefaultRuntimeTool, "container runtime used by launch")
	pf.String("base-image", builder.DefaultBaseImage, "base image of the generated Dockerfile")
	pf.String("service-mode", string(builder.ServiceModeProduction), "generated service flavour: production or debug")
	pf.Int("port", builder.DefaultPort, "port published by launch")
	pf.String("discovery-policy", string(builder.DiscoveryAdvisory), "dependency discovery: off, advisory or required")
	pf.Bool("telemetry", false, "print stage spans to stderr")
	pf.String("remote-host", "", "run the build tool on this host over SSH")
	pf.Int("remote-port", 22, "SSH port of the remote host")
	pf.String("remote-user", "", "SSH user of the remote host")
	pf.String("remote-key-path", "", "SSH private key for the remote host")
	pf.String("remote-dir", "/tmp/modelpack", "directory on the remote host receiving build contexts")

	root.AddCommand(
		c.initCmd(),
		c.stageCmd("validate", "Check the model assets", builder.StageValidated),
		c.stageCmd("generate", "Validate and write the service file", builder.StageServiceGenerated),
		c.stageCmd("build", "Validate, generate and build the image, keeping generated files", builder.StageImageBuilt),
		c.runCmd(),
		c.cleanupCmd(),
		c.launchCmd(),
		c.submitCmd(),
	)
	return root
}

// session is one configured pipeline for a command invocation.
type session struct {
	cfg   config.PipelineConfig
	orch  *builder.Orchestrator
	close func()
}

func (c *cli) open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadPipeline(c.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if c.configFile != "" && !cmd.Flags().Changed("dir") && !filepath.IsAbs(cfg.Dir) {
		cfg.Dir = filepath.Join(filepath.Dir(c.configFile), cfg.Dir)
	}

	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))

	closers := []func(){}
	shutdown := telemetry.InitTracer(cmd.Context(), "modelpack", cfg.Telemetry, c.stderr)
	closers = append(closers, func() { _ = shutdown(context.Background()) })

	opts = append(opts,
		builder.WithLogger(logger),
		builder.WithOutput(func(line string) { fmt.Fprintln(c.stdout, line) }),
	)
	if c.runner != nil {
		opts = append(opts, builder.WithRunner(c.runner))
	}
	if cfg.Remote.Enabled() {
		host, err := remote.Dial(cfg.Remote)
		if err != nil {
			_ = shutdown(context.Background())
			return nil, err
		}
		logger.Debug("using remote docker host", "host", cfg.Remote.Host, "dir", cfg.Remote.Dir)
		opts = append(opts, builder.WithRunner(host), builder.WithStager(host))
		closers = append(closers, func() { _ = host.Close() })
	}

	job := builder.Job{
		Dir:              cfg.Dir,
		ModelPath:        cfg.ModelPath,
		RequirementsPath: cfg.RequirementsPath,
		EntryFile:        cfg.EntryFile,
		ImageName:        cfg.ImageName,
	}
	return &session{
		cfg:  cfg,
		orch: builder.New(job, opts...),
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}
