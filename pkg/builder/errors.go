package builder

import (
	"errors"
	"fmt"
)

var (
	// ErrRequirementsNotFound indicates the dependency manifest is missing.
	ErrRequirementsNotFound = errors.New("requirements file not found")
	// ErrModelFileNotFound indicates no serialized model matched the model path.
	ErrModelFileNotFound = errors.New("model file not found")
	// ErrEntryFileNotFound indicates the scoring entry file is missing.
	ErrEntryFileNotFound = errors.New("entry file not found")
	// ErrInvalidEntryFile indicates the entry file cannot be imported as a Python module.
	ErrInvalidEntryFile = errors.New("entry file is not a python module")
	// ErrOutsideBuildContext indicates an input path that is absolute or leaves the job directory.
	ErrOutsideBuildContext = errors.New("path outside build context")
	// ErrServiceFileExists indicates a service file from an earlier run is still present.
	ErrServiceFileExists = errors.New("service file already exists")
	// ErrImageDefinitionExists indicates an image definition from an earlier run is still present.
	ErrImageDefinitionExists = errors.New("image definition already exists")
	// ErrDependencyDiscovery indicates the dependency discovery tool failed under the required policy.
	ErrDependencyDiscovery = errors.New("dependency discovery failed")
	// ErrStageOrder indicates a step was called before the step it depends on.
	ErrStageOrder = errors.New("pipeline stage out of order")
	// ErrToolFailed indicates an external tool exited with a non-zero status.
	ErrToolFailed = errors.New("external tool failed")
)

// ExitError reports the exit status of an external tool.
type ExitError struct {
	Tool string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.Code)
}

func (e *ExitError) Unwrap() error {
	return ErrToolFailed
}
