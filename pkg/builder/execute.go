package builder

import (
	"context"
	"fmt"
)

// Recorder receives progress for a tracked build.
type Recorder interface {
	AppendLog(id string, line string)
	SetStage(id string, stage Stage)
	SetStatus(id string, status Status, errMsg string)
}

// Execute runs the full pipeline for build, reporting every tool output
// line, each stage reached and the final status to rec.
func Execute(ctx context.Context, build Build, rec Recorder, options ...Option) error {
	opts := append([]Option{}, options...)
	opts = append(opts, WithOutput(func(line string) {
		rec.AppendLog(build.ID, line)
	}))
	o := New(build.Job(), opts...)

	rec.SetStatus(build.ID, StatusRunning, "")
	rec.AppendLog(build.ID, fmt.Sprintf("packaging %s as %s", o.Job().ModelPath, o.Job().Tag()))

	steps := []struct {
		message string
		fn      func(context.Context) error
	}{
		{"validating assets", o.Validate},
		{"generating service file", o.GenerateService},
		{"building image", o.BuildImage},
		{"removing generated files", o.Cleanup},
	}
	for _, step := range steps {
		rec.AppendLog(build.ID, step.message)
		if err := step.fn(ctx); err != nil {
			err = fmt.Errorf("%s: %w", step.message, err)
			rec.AppendLog(build.ID, err.Error())
			rec.SetStatus(build.ID, StatusFailed, err.Error())
			return err
		}
		rec.SetStage(build.ID, o.Stage())
	}

	rec.AppendLog(build.ID, "build completed successfully")
	rec.SetStatus(build.ID, StatusSucceeded, "")
	return nil
}
