package builder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vyvo/modelpack/pkg/builder"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []builder.Command
	fail  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, cmd builder.Command, out builder.LineFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if out != nil {
		out("ran " + cmd.String())
	}
	if err, ok := f.fail[cmd.Name]; ok {
		return err
	}
	return nil
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

type discardLogger struct{}

func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("content of "+name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		files[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return files
}

func newJob(dir string) builder.Job {
	return builder.Job{Dir: dir, ModelPath: "model.pkl"}
}

func newOrchestrator(job builder.Job, runner *fakeRunner, opts ...builder.Option) *builder.Orchestrator {
	base := []builder.Option{
		builder.WithRunner(runner),
		builder.WithLogger(discardLogger{}),
		builder.WithDiscovery(builder.DiscoveryOff, nil),
	}
	return builder.New(job, append(base, opts...)...)
}

func TestValidateReportsEachMissingInput(t *testing.T) {
	all := []error{builder.ErrRequirementsNotFound, builder.ErrModelFileNotFound, builder.ErrEntryFileNotFound}
	cases := []struct {
		name    string
		present []string
		want    error
	}{
		{"requirements", []string{"model.pkl", "score.py"}, builder.ErrRequirementsNotFound},
		{"model", []string{"requirements.txt", "score.py"}, builder.ErrModelFileNotFound},
		{"entry", []string{"requirements.txt", "model.pkl"}, builder.ErrEntryFileNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tc.present...)
			o := newOrchestrator(newJob(dir), &fakeRunner{})

			err := o.Validate(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			for _, other := range all {
				if other != tc.want && errors.Is(err, other) {
					t.Fatalf("error %v also matches %v", err, other)
				}
			}
			if o.Flags().Validated {
				t.Fatalf("validated flag set after failure")
			}
		})
	}
}

func TestValidateSucceedsWithAllInputs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	o := newOrchestrator(newJob(dir), &fakeRunner{})

	if err := o.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if diff := cmp.Diff(builder.Flags{Validated: true}, o.Flags()); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}
	if o.Stage() != builder.StageValidated {
		t.Fatalf("unexpected stage %s", o.Stage())
	}
}

func TestValidateRejectsLeftoverArtifacts(t *testing.T) {
	cases := []struct {
		leftover string
		want     error
	}{
		{builder.ServiceFileName, builder.ErrServiceFileExists},
		{builder.ImageDefinitionFileName, builder.ErrImageDefinitionExists},
	}
	for _, tc := range cases {
		t.Run(tc.leftover, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py", tc.leftover)
			o := newOrchestrator(newJob(dir), &fakeRunner{})

			if err := o.Validate(context.Background()); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateResolvesModelGlob(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "score.py", "models/b.pkl", "models/a.pkl")
	runner := &fakeRunner{}
	o := newOrchestrator(builder.Job{Dir: dir, ModelPath: "**/*.pkl"}, runner)

	ctx := context.Background()
	for _, step := range []func(context.Context) error{o.Validate, o.GenerateService, o.BuildImage} {
		if err := step(ctx); err != nil {
			t.Fatalf("pipeline step: %v", err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, builder.ImageDefinitionFileName))
	if err != nil {
		t.Fatalf("read image definition: %v", err)
	}
	if !strings.Contains(string(data), "COPY models/a.pkl /app\n") {
		t.Fatalf("expected first match to be copied, got:\n%s", data)
	}
}

func TestValidateModelGlobWithoutMatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "score.py", "model.joblib")
	o := newOrchestrator(builder.Job{Dir: dir, ModelPath: "*.pkl"}, &fakeRunner{})

	if err := o.Validate(context.Background()); !errors.Is(err, builder.ErrModelFileNotFound) {
		t.Fatalf("expected ErrModelFileNotFound, got %v", err)
	}
}

func TestServiceImportsConfiguredEntryModule(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "src/predict.py")
	job := newJob(dir)
	job.EntryFile = "src/predict.py"
	runner := &fakeRunner{}
	o := newOrchestrator(job, runner)
	ctx := context.Background()

	for _, step := range []func(context.Context) error{o.Validate, o.GenerateService, o.BuildImage} {
		if err := step(ctx); err != nil {
			t.Fatalf("pipeline: %v", err)
		}
	}
	service, err := os.ReadFile(filepath.Join(dir, builder.ServiceFileName))
	if err != nil {
		t.Fatalf("read service file: %v", err)
	}
	if !strings.Contains(string(service), "import predict as score\n") {
		t.Fatalf("service must import the entry module:\n%s", service)
	}
	definition, err := os.ReadFile(filepath.Join(dir, builder.ImageDefinitionFileName))
	if err != nil {
		t.Fatalf("read image definition: %v", err)
	}
	if !strings.Contains(string(definition), "COPY src/predict.py /app\n") {
		t.Fatalf("image must copy the entry file:\n%s", definition)
	}
}

func TestValidateRejectsUnimportableEntryFile(t *testing.T) {
	for _, entry := range []string{"score.txt", "my-model.py", "app.py"} {
		t.Run(entry, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, "requirements.txt", "model.pkl", entry)
			job := newJob(dir)
			job.EntryFile = entry
			runner := &fakeRunner{}
			o := newOrchestrator(job, runner, builder.WithDiscovery(builder.DiscoveryRequired, nil))

			if err := o.Validate(context.Background()); !errors.Is(err, builder.ErrInvalidEntryFile) {
				t.Fatalf("expected ErrInvalidEntryFile, got %v", err)
			}
			if n := len(runner.commands()); n != 0 {
				t.Fatalf("no subprocess expected, got %d", n)
			}
		})
	}
}

func TestValidateRejectsPathsOutsideDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "job")
	writeFiles(t, parent, "model.pkl")
	writeFiles(t, dir, "requirements.txt", "score.py")
	o := newOrchestrator(builder.Job{Dir: dir, ModelPath: "../model.pkl"}, &fakeRunner{})

	err := o.Validate(context.Background())
	if !errors.Is(err, builder.ErrOutsideBuildContext) {
		t.Fatalf("expected ErrOutsideBuildContext, got %v", err)
	}
	if errors.Is(err, builder.ErrModelFileNotFound) {
		t.Fatalf("an existing file outside the job dir is not missing: %v", err)
	}

	writeFiles(t, dir, "model.pkl")
	abs := newJob(dir)
	abs.EntryFile = filepath.Join(dir, "score.py")
	o = newOrchestrator(abs, &fakeRunner{})
	if err := o.Validate(context.Background()); !errors.Is(err, builder.ErrOutsideBuildContext) {
		t.Fatalf("expected ErrOutsideBuildContext for absolute entry, got %v", err)
	}

	glob := newJob(dir)
	glob.ModelPath = "../*.pkl"
	o = newOrchestrator(glob, &fakeRunner{})
	if err := o.Validate(context.Background()); !errors.Is(err, builder.ErrOutsideBuildContext) {
		t.Fatalf("expected ErrOutsideBuildContext for glob, got %v", err)
	}
}

func TestValidateDependencyDiscoveryPolicy(t *testing.T) {
	discoveryErr := &builder.ExitError{Tool: "python3", Code: 1}

	t.Run("advisory continues", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
		runner := &fakeRunner{fail: map[string]error{"python3": discoveryErr}}
		o := newOrchestrator(newJob(dir), runner, builder.WithDiscovery(builder.DiscoveryAdvisory, nil))

		if err := o.Validate(context.Background()); err != nil {
			t.Fatalf("advisory discovery must not fail validation: %v", err)
		}
		want := []string{"python3 -m pip install pigar"}
		if diff := cmp.Diff(want, runner.commands()); diff != "" {
			t.Fatalf("commands mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("required aborts", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
		runner := &fakeRunner{fail: map[string]error{"pigar": discoveryErr}}
		o := newOrchestrator(newJob(dir), runner, builder.WithDiscovery(builder.DiscoveryRequired, []string{"pigar", "generate"}))

		err := o.Validate(context.Background())
		if !errors.Is(err, builder.ErrDependencyDiscovery) {
			t.Fatalf("expected ErrDependencyDiscovery, got %v", err)
		}
		var exitErr *builder.ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 1 {
			t.Fatalf("expected wrapped exit error, got %v", err)
		}
	})

	t.Run("off skips the tool", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
		runner := &fakeRunner{}
		o := newOrchestrator(newJob(dir), runner)

		if err := o.Validate(context.Background()); err != nil {
			t.Fatalf("validate: %v", err)
		}
		if len(runner.commands()) != 0 {
			t.Fatalf("expected no commands, got %v", runner.commands())
		}
	})
}

func TestGenerateServiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	o := newOrchestrator(newJob(dir), &fakeRunner{})
	ctx := context.Background()

	if err := o.Validate(ctx); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := o.GenerateService(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, builder.ServiceFileName))
	if err != nil {
		t.Fatalf("read service file: %v", err)
	}
	if err := o.GenerateService(ctx); err != nil {
		t.Fatalf("second generate: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(dir, builder.ServiceFileName))
	if err != nil {
		t.Fatalf("read service file: %v", err)
	}
	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Fatalf("service file changed between runs (-first +second):\n%s", diff)
	}

	content := string(first)
	if n := strings.Count(content, "@app.route("); n != 1 {
		t.Fatalf("expected exactly one route, found %d", n)
	}
	if !strings.Contains(content, `@app.route("/score/", methods=["POST"])`) {
		t.Fatalf("missing POST /score/ route:\n%s", content)
	}
	if !strings.Contains(content, `if __name__ == "__main__":`) || !strings.Contains(content, `host="0.0.0.0"`) {
		t.Fatalf("missing entry point bound to all interfaces:\n%s", content)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestStepsEnforceOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	runner := &fakeRunner{}
	o := newOrchestrator(newJob(dir), runner)
	ctx := context.Background()

	if err := o.GenerateService(ctx); !errors.Is(err, builder.ErrStageOrder) {
		t.Fatalf("generate before validate: expected ErrStageOrder, got %v", err)
	}
	if err := o.Validate(ctx); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := o.BuildImage(ctx); !errors.Is(err, builder.ErrStageOrder) {
		t.Fatalf("build before generate: expected ErrStageOrder, got %v", err)
	}
	if err := o.GenerateService(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := o.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := o.BuildImage(ctx); !errors.Is(err, builder.ErrStageOrder) {
		t.Fatalf("build after cleanup: expected ErrStageOrder, got %v", err)
	}
	if len(runner.commands()) != 0 {
		t.Fatalf("no tool should run, got %v", runner.commands())
	}
	if _, err := os.Stat(filepath.Join(dir, builder.ImageDefinitionFileName)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("image definition written by a rejected build: %v", err)
	}
}

func TestBuildImageWritesDefinitionInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	runner := &fakeRunner{}
	o := newOrchestrator(newJob(dir), runner)
	ctx := context.Background()

	for _, step := range []func(context.Context) error{o.Validate, o.GenerateService, o.BuildImage} {
		if err := step(ctx); err != nil {
			t.Fatalf("pipeline step: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, builder.ImageDefinitionFileName))
	if err != nil {
		t.Fatalf("read image definition: %v", err)
	}
	want := []string{
		"FROM ubuntu:22.04",
		"RUN apt-get update -y && apt-get install -y python3-pip python3-dev python3-jinja2 python3-flask",
		"COPY ./requirements.txt /app/requirements.txt",
		"WORKDIR /app",
		"RUN pip3 install -r requirements.txt waitress",
		"COPY score.py /app",
		"COPY model.pkl /app",
		"COPY requirements.txt /app",
		"COPY ./app.py /app",
		`ENTRYPOINT [ "python3" ]`,
		`CMD [ "app.py" ]`,
	}
	got := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("image definition mismatch (-want +got):\n%s", diff)
	}
	if !o.Flags().ImageBuilt || o.Stage() != builder.StageImageBuilt {
		t.Fatalf("unexpected state: %+v %s", o.Flags(), o.Stage())
	}
}

func TestBuildImageTagsNamedImage(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	runner := &fakeRunner{}
	job := newJob(dir)
	job.ImageName = "demo"
	o := newOrchestrator(job, runner)
	ctx := context.Background()

	for _, step := range []func(context.Context) error{o.Validate, o.GenerateService, o.BuildImage} {
		if err := step(ctx); err != nil {
			t.Fatalf("pipeline step: %v", err)
		}
	}

	if diff := cmp.Diff([]string{"docker build -t demo:latest ."}, runner.commands()); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
	if runner.calls[0].Dir != dir {
		t.Fatalf("build ran in %q, want %q", runner.calls[0].Dir, dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, builder.ImageDefinitionFileName))
	if err != nil {
		t.Fatalf("read image definition: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	tail := lines[len(lines)-2:]
	if diff := cmp.Diff([]string{`ENTRYPOINT [ "python3" ]`, `CMD [ "app.py" ]`}, tail); diff != "" {
		t.Fatalf("final lines mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildImagePropagatesExitStatus(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	runner := &fakeRunner{fail: map[string]error{"docker": &builder.ExitError{Tool: "docker", Code: 2}}}
	o := newOrchestrator(newJob(dir), runner)
	ctx := context.Background()

	if err := o.Validate(ctx); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := o.GenerateService(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	err := o.BuildImage(ctx)
	if !errors.Is(err, builder.ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed, got %v", err)
	}
	var exitErr *builder.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("expected exit status 2, got %v", err)
	}
	if o.Flags().ImageBuilt || o.Stage() != builder.StageServiceGenerated {
		t.Fatalf("failed build must keep last stage, got %+v %s", o.Flags(), o.Stage())
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	before := snapshot(t, dir)
	o := newOrchestrator(newJob(dir), &fakeRunner{})
	ctx := context.Background()

	if err := o.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup on clean dir: %v", err)
	}
	for _, step := range []func(context.Context) error{o.Validate, o.GenerateService, o.BuildImage, o.Cleanup, o.Cleanup} {
		if err := step(ctx); err != nil {
			t.Fatalf("pipeline step: %v", err)
		}
	}
	if diff := cmp.Diff(before, snapshot(t, dir)); diff != "" {
		t.Fatalf("directory changed (-before +after):\n%s", diff)
	}
}

func TestRunAllLeavesDirectoryUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	before := snapshot(t, dir)
	runner := &fakeRunner{}
	o := newOrchestrator(newJob(dir), runner)

	if err := o.RunAll(context.Background()); err != nil {
		t.Fatalf("run all: %v", err)
	}
	if diff := cmp.Diff(before, snapshot(t, dir)); diff != "" {
		t.Fatalf("directory changed (-before +after):\n%s", diff)
	}
	want := builder.Flags{Validated: true, ServiceGenerated: true, ImageBuilt: true, CleanedUp: true}
	if diff := cmp.Diff(want, o.Flags()); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}
	if o.Stage() != builder.StageCleanedUp {
		t.Fatalf("unexpected stage %s", o.Stage())
	}
	if diff := cmp.Diff([]string{"docker build -t modelservice:latest ."}, runner.commands()); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAllStopsBeforeAnySideEffectWhenEntryMissing(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl")
	before := snapshot(t, dir)
	runner := &fakeRunner{}
	// Default discovery policy: the discovery tool must not run either.
	o := builder.New(newJob(dir), builder.WithRunner(runner), builder.WithLogger(discardLogger{}))

	err := o.RunAll(context.Background())
	if !errors.Is(err, builder.ErrEntryFileNotFound) {
		t.Fatalf("expected ErrEntryFileNotFound, got %v", err)
	}
	if len(runner.commands()) != 0 {
		t.Fatalf("no subprocess expected, got %v", runner.commands())
	}
	if diff := cmp.Diff(before, snapshot(t, dir)); diff != "" {
		t.Fatalf("directory changed (-before +after):\n%s", diff)
	}
	if o.Stage() != builder.StageNew {
		t.Fatalf("unexpected stage %s", o.Stage())
	}
}

func TestRunAllKeepsArtifactsWhenBuildFails(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	runner := &fakeRunner{fail: map[string]error{"docker": &builder.ExitError{Tool: "docker", Code: 1}}}
	o := newOrchestrator(newJob(dir), runner)

	if err := o.RunAll(context.Background()); !errors.Is(err, builder.ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed, got %v", err)
	}
	for _, name := range []string{builder.ServiceFileName, builder.ImageDefinitionFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain after failed build: %v", name, err)
		}
	}
}

func TestLaunchPublishesPort(t *testing.T) {
	cases := []struct {
		port int
		want string
	}{
		{8080, "podman run -e PORT=8080 -p 8080:8080 demo:latest"},
		{0, "podman run -e PORT=5000 -p 5000:5000 demo:latest"},
	}
	for _, tc := range cases {
		runner := &fakeRunner{}
		job := builder.Job{Dir: t.TempDir(), ModelPath: "model.pkl", ImageName: "demo"}
		o := newOrchestrator(job, runner, builder.WithRuntimeTool("podman"))

		if err := o.Launch(context.Background(), tc.port); err != nil {
			t.Fatalf("launch: %v", err)
		}
		if diff := cmp.Diff([]string{tc.want}, runner.commands()); diff != "" {
			t.Fatalf("commands mismatch (-want +got):\n%s", diff)
		}
	}
}

type recordingStager struct {
	staged   []string
	unstaged []string
}

func (s *recordingStager) Stage(_ context.Context, _ string, files []string) error {
	s.staged = append(s.staged, files...)
	return nil
}

func (s *recordingStager) Unstage(_ context.Context, _ string, files []string) error {
	s.unstaged = append(s.unstaged, files...)
	return nil
}

func TestRunAllStagesBuildContext(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "requirements.txt", "model.pkl", "score.py")
	stager := &recordingStager{}
	o := newOrchestrator(newJob(dir), &fakeRunner{}, builder.WithStager(stager))

	if err := o.RunAll(context.Background()); err != nil {
		t.Fatalf("run all: %v", err)
	}
	want := []string{"requirements.txt", "score.py", "model.pkl", "app.py", "Dockerfile"}
	if diff := cmp.Diff(want, stager.staged); diff != "" {
		t.Fatalf("staged files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, stager.unstaged); diff != "" {
		t.Fatalf("unstaged files mismatch (-want +got):\n%s", diff)
	}
}
