package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBuildTool   = "docker"
	DefaultRuntimeTool = "docker"
	DefaultBaseImage   = "ubuntu:22.04"
)

// DefaultDiscoveryCommand installs the requirements discovery helper.
var DefaultDiscoveryCommand = []string{"python3", "-m", "pip", "install", "pigar"}

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Stager copies the build context to wherever the build tool runs.
type Stager interface {
	Stage(ctx context.Context, dir string, files []string) error
	Unstage(ctx context.Context, dir string, files []string) error
}

// DiscoveryPolicy controls what a dependency discovery failure does to validation.
type DiscoveryPolicy string

const (
	DiscoveryOff      DiscoveryPolicy = "off"
	DiscoveryAdvisory DiscoveryPolicy = "advisory"
	DiscoveryRequired DiscoveryPolicy = "required"
)

// ParseDiscoveryPolicy accepts off, advisory, required, or an empty string (advisory).
func ParseDiscoveryPolicy(raw string) (DiscoveryPolicy, error) {
	switch DiscoveryPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DiscoveryAdvisory:
		return DiscoveryAdvisory, nil
	case DiscoveryOff:
		return DiscoveryOff, nil
	case DiscoveryRequired:
		return DiscoveryRequired, nil
	default:
		return "", fmt.Errorf("unknown discovery policy %q", raw)
	}
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithRunner replaces the subprocess runner.
func WithRunner(r Runner) Option {
	return func(o *Orchestrator) {
		o.runner = r
	}
}

// WithStager uploads the build context before the image build runs.
func WithStager(s Stager) Option {
	return func(o *Orchestrator) {
		o.stager = s
	}
}

func WithLogger(l Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithOutput receives every line printed by external tools.
func WithOutput(fn LineFunc) Option {
	return func(o *Orchestrator) {
		o.output = fn
	}
}

// WithBuildTool sets the image build tool. Empty keeps docker.
func WithBuildTool(name string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.buildTool = name
		}
	}
}

func WithRuntimeTool(name string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.runtimeTool = name
		}
	}
}

func WithBaseImage(image string) Option {
	return func(o *Orchestrator) {
		if image != "" {
			o.baseImage = image
		}
	}
}

func WithServiceMode(mode ServiceMode) Option {
	return func(o *Orchestrator) {
		o.mode = mode
	}
}

// WithDiscovery sets the dependency discovery policy and command. An empty
// command keeps the default.
func WithDiscovery(policy DiscoveryPolicy, command []string) Option {
	return func(o *Orchestrator) {
		o.discoveryPolicy = policy
		if len(command) > 0 {
			o.discoveryCmd = append([]string(nil), command...)
		}
	}
}

// Orchestrator runs the packaging pipeline for one Job. Calls on one
// instance are serialized; separate instances must not share a directory.
type Orchestrator struct {
	mu sync.Mutex

	job             Job
	runner          Runner
	stager          Stager
	logger          Logger
	output          LineFunc
	buildTool       string
	runtimeTool     string
	baseImage       string
	mode            ServiceMode
	discoveryPolicy DiscoveryPolicy
	discoveryCmd    []string
	tracer          trace.Tracer

	flags       Flags
	stage       Stage
	modelFile   string
	entryModule string
}

// New constructs an Orchestrator for job. Unset job fields take their defaults.
func New(job Job, options ...Option) *Orchestrator {
	o := &Orchestrator{
		job:             job.WithDefaults(),
		runner:          ExecRunner{},
		logger:          slog.Default(),
		buildTool:       DefaultBuildTool,
		runtimeTool:     DefaultRuntimeTool,
		baseImage:       DefaultBaseImage,
		mode:            ServiceModeProduction,
		discoveryPolicy: DiscoveryAdvisory,
		discoveryCmd:    append([]string(nil), DefaultDiscoveryCommand...),
		stage:           StageNew,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	if o.output == nil {
		o.output = func(string) {}
	}
	o.tracer = otel.Tracer("github.com/vyvo/modelpack/pkg/builder")
	return o
}

func (o *Orchestrator) Job() Job {
	return o.job
}

// Flags reports which stages completed in the current attempt.
func (o *Orchestrator) Flags() Flags {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flags
}

// Stage reports the last stage reached.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// Validate checks that the manifest, model and entry file exist and that no
// generated artifact is left over, then runs dependency discovery.
func (o *Orchestrator) Validate(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.startSpan(ctx, "validate")
	defer span.End()

	if err := o.checkInput(o.job.RequirementsPath, ErrRequirementsNotFound); err != nil {
		return spanError(span, err)
	}
	model, err := o.resolveModel()
	if err != nil {
		return spanError(span, err)
	}
	if err := o.checkInput(o.job.EntryFile, ErrEntryFileNotFound); err != nil {
		return spanError(span, err)
	}
	module, err := EntryModule(o.job.EntryFile)
	if err != nil {
		return spanError(span, err)
	}
	if err := o.checkAbsent(ServiceFileName, ErrServiceFileExists); err != nil {
		return spanError(span, err)
	}
	if err := o.checkAbsent(ImageDefinitionFileName, ErrImageDefinitionExists); err != nil {
		return spanError(span, err)
	}
	if err := o.discover(ctx); err != nil {
		return spanError(span, err)
	}

	o.modelFile = model
	o.entryModule = module
	o.flags = Flags{Validated: true}
	o.stage = StageValidated
	o.logger.Info("assets validated", "dir", o.job.Dir, "model", model)
	return nil
}

// GenerateService writes the web service file into the job directory.
func (o *Orchestrator) GenerateService(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, span := o.startSpan(ctx, "generate_service")
	defer span.End()

	if !o.flags.Validated {
		return spanError(span, o.orderError(StageServiceGenerated))
	}
	content, err := RenderService(o.mode, o.entryModule)
	if err != nil {
		return spanError(span, err)
	}
	target := filepath.Join(o.job.Dir, ServiceFileName)
	if err := writeFileAtomic(target, content); err != nil {
		return spanError(span, fmt.Errorf("write service file: %w", err))
	}

	o.flags.ServiceGenerated = true
	o.flags.CleanedUp = false
	o.stage = StageServiceGenerated
	o.logger.Info("service file generated", "path", target, "mode", string(o.mode))
	return nil
}

// BuildImage writes the image definition and runs the build tool tagging
// the image "<image>:latest". A non-zero exit is returned as *ExitError.
func (o *Orchestrator) BuildImage(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.startSpan(ctx, "build_image")
	defer span.End()

	if !o.flags.ServiceGenerated || o.flags.CleanedUp {
		return spanError(span, o.orderError(StageImageBuilt))
	}

	content, err := RenderImageDefinition(ImageSpec{
		BaseImage:     o.baseImage,
		Requirements:  o.job.RequirementsPath,
		EntryFile:     o.job.EntryFile,
		ModelFile:     o.modelFile,
		ServiceFile:   ServiceFileName,
		ExtraPackages: servicePackages(o.mode),
	})
	if err != nil {
		return spanError(span, err)
	}
	if err := writeFileAtomic(filepath.Join(o.job.Dir, ImageDefinitionFileName), content); err != nil {
		return spanError(span, fmt.Errorf("write image definition: %w", err))
	}

	if o.stager != nil {
		if err := o.stager.Stage(ctx, o.job.Dir, o.contextFiles()); err != nil {
			return spanError(span, fmt.Errorf("stage build context: %w", err))
		}
	}

	tag := o.job.Tag()
	span.SetAttributes(attribute.String("image.tag", tag))
	cmd := Command{Name: o.buildTool, Args: []string{"build", "-t", tag, "."}, Dir: o.job.Dir}
	o.logger.Info("building image", "tag", tag, "command", cmd.String())
	if err := o.runner.Run(ctx, cmd, o.output); err != nil {
		return spanError(span, fmt.Errorf("build image %s: %w", tag, err))
	}

	o.flags.ImageBuilt = true
	o.stage = StageImageBuilt
	o.logger.Info("image built", "tag", tag)
	return nil
}

// Cleanup removes the generated service file and image definition. Missing
// files are ignored.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.startSpan(ctx, "cleanup")
	defer span.End()

	for _, name := range []string{ImageDefinitionFileName, ServiceFileName} {
		err := os.Remove(filepath.Join(o.job.Dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return spanError(span, fmt.Errorf("remove %s: %w", name, err))
		}
	}
	if o.stager != nil {
		if err := o.stager.Unstage(ctx, o.job.Dir, o.contextFiles()); err != nil {
			return spanError(span, fmt.Errorf("unstage build context: %w", err))
		}
	}

	o.flags.CleanedUp = true
	o.stage = StageCleanedUp
	o.logger.Info("generated files removed", "dir", o.job.Dir)
	return nil
}

// RunAll validates, generates the service, builds the image and cleans up,
// stopping at the first failure. Completed steps are not rolled back.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"validate", o.Validate},
		{"generate service", o.GenerateService},
		{"build image", o.BuildImage},
		{"cleanup", o.Cleanup},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// Launch runs the built image publishing port on the host. It blocks until
// the container exits or ctx is cancelled. A non-positive port uses DefaultPort.
func (o *Orchestrator) Launch(ctx context.Context, port int) error {
	if port <= 0 {
		port = DefaultPort
	}
	ctx, span := o.startSpan(ctx, "launch")
	defer span.End()

	p := strconv.Itoa(port)
	cmd := Command{
		Name: o.runtimeTool,
		Args: []string{"run", "-e", "PORT=" + p, "-p", p + ":" + p, o.job.Tag()},
		Dir:  o.job.Dir,
	}
	o.logger.Info("launching container", "image", o.job.Tag(), "port", port)
	if err := o.runner.Run(ctx, cmd, o.output); err != nil {
		return spanError(span, fmt.Errorf("launch %s: %w", o.job.Tag(), err))
	}
	return nil
}

func (o *Orchestrator) discover(ctx context.Context) error {
	if o.discoveryPolicy == DiscoveryOff || len(o.discoveryCmd) == 0 {
		return nil
	}
	cmd := Command{Name: o.discoveryCmd[0], Args: o.discoveryCmd[1:], Dir: o.job.Dir}
	err := o.runner.Run(ctx, cmd, o.output)
	if err == nil {
		return nil
	}
	if o.discoveryPolicy == DiscoveryRequired {
		return fmt.Errorf("%w: %w", ErrDependencyDiscovery, err)
	}
	o.logger.Error("dependency discovery failed, continuing", "command", cmd.String(), "error", err)
	return nil
}

func (o *Orchestrator) checkInput(rel string, missing error) error {
	if rel == "" {
		return fmt.Errorf("%w: no path given", missing)
	}
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: %q is not inside %s", ErrOutsideBuildContext, rel, o.job.Dir)
	}
	if _, err := os.Stat(filepath.Join(o.job.Dir, rel)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", missing, rel)
		}
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	return nil
}

func (o *Orchestrator) checkAbsent(name string, present error) error {
	_, err := os.Stat(filepath.Join(o.job.Dir, name))
	if err == nil {
		return fmt.Errorf("%w: %s (run cleanup first)", present, name)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("stat %s: %w", name, err)
}

// resolveModel returns the model path, expanding a glob pattern to its
// first match in lexical order.
func (o *Orchestrator) resolveModel() (string, error) {
	rel := o.job.ModelPath
	if !strings.ContainsAny(rel, "*?[{") {
		if err := o.checkInput(rel, ErrModelFileNotFound); err != nil {
			return "", err
		}
		return rel, nil
	}

	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q is not inside %s", ErrOutsideBuildContext, rel, o.job.Dir)
	}
	pattern := path.Clean(filepath.ToSlash(rel))
	matches, err := doublestar.Glob(os.DirFS(o.job.Dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", fmt.Errorf("%w: pattern %q: %w", ErrModelFileNotFound, rel, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: nothing matches %s", ErrModelFileNotFound, rel)
	}
	sort.Strings(matches)
	return filepath.FromSlash(matches[0]), nil
}

func (o *Orchestrator) contextFiles() []string {
	return []string{
		o.job.RequirementsPath,
		o.job.EntryFile,
		o.modelFile,
		ServiceFileName,
		ImageDefinitionFileName,
	}
}

func (o *Orchestrator) orderError(next Stage) error {
	return fmt.Errorf("%w: cannot reach %s from %s", ErrStageOrder, next, o.stage)
}

func (o *Orchestrator) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("job.dir", o.job.Dir),
		attribute.String("job.image", o.job.ImageName),
	))
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// writeFileAtomic writes into a temp file in the same directory and renames
// it over target.
func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}
