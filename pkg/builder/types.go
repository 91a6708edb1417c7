package builder

import "time"

// Status represents the lifecycle state of a tracked build.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Finished reports whether no further progress will be recorded.
func (s Status) Finished() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Stage is the last pipeline step a job completed.
type Stage string

const (
	StageNew              Stage = "new"
	StageValidated        Stage = "validated"
	StageServiceGenerated Stage = "service_generated"
	StageImageBuilt       Stage = "image_built"
	StageCleanedUp        Stage = "cleaned_up"
)

const (
	DefaultRequirementsPath = "requirements.txt"
	DefaultEntryFile        = "score.py"
	DefaultImageName        = "modelservice"
	DefaultPort             = 5000

	ServiceFileName         = "app.py"
	ImageDefinitionFileName = "Dockerfile"
)

// Job describes one packaging attempt. Every path is relative to Dir.
type Job struct {
	Dir              string `json:"dir" yaml:"dir,omitempty"`
	ModelPath        string `json:"model_path" yaml:"model_path"`
	RequirementsPath string `json:"requirements_path,omitempty" yaml:"requirements_path,omitempty"`
	EntryFile        string `json:"entry_file,omitempty" yaml:"entry_file,omitempty"`
	ImageName        string `json:"image_name,omitempty" yaml:"image_name,omitempty"`
}

// WithDefaults fills the optional fields.
func (j Job) WithDefaults() Job {
	if j.Dir == "" {
		j.Dir = "."
	}
	if j.RequirementsPath == "" {
		j.RequirementsPath = DefaultRequirementsPath
	}
	if j.EntryFile == "" {
		j.EntryFile = DefaultEntryFile
	}
	if j.ImageName == "" {
		j.ImageName = DefaultImageName
	}
	return j
}

// Tag is the image reference produced by a build.
func (j Job) Tag() string {
	name := j.ImageName
	if name == "" {
		name = DefaultImageName
	}
	return name + ":latest"
}

// Flags records which stages completed during the current attempt.
type Flags struct {
	Validated        bool `json:"validated"`
	ServiceGenerated bool `json:"service_generated"`
	ImageBuilt       bool `json:"image_built"`
	CleanedUp        bool `json:"cleaned_up"`
}

// Build describes a pipeline run tracked by the builder service.
type Build struct {
	ID               string    `json:"id"`
	Dir              string    `json:"dir"`
	ModelPath        string    `json:"model_path"`
	RequirementsPath string    `json:"requirements_path"`
	EntryFile        string    `json:"entry_file"`
	ImageName        string    `json:"image_name"`
	Stage            Stage     `json:"stage"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	FinishedAt       time.Time `json:"finished_at,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Job returns the pipeline job this build runs.
func (b Build) Job() Job {
	return Job{
		Dir:              b.Dir,
		ModelPath:        b.ModelPath,
		RequirementsPath: b.RequirementsPath,
		EntryFile:        b.EntryFile,
		ImageName:        b.ImageName,
	}
}

// CreateRequest captures the payload needed to request a new build.
type CreateRequest struct {
	Dir              string `json:"dir"`
	ModelPath        string `json:"model_path"`
	RequirementsPath string `json:"requirements_path,omitempty"`
	EntryFile        string `json:"entry_file,omitempty"`
	ImageName        string `json:"image_name,omitempty"`
}
