package builder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// LineFunc receives tool output one line at a time.
type LineFunc func(line string)

// Command is an external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes external tools. A non-zero exit must be reported as *ExitError.
type Runner interface {
	Run(ctx context.Context, cmd Command, out LineFunc) error
}

// ExecRunner runs tools as local subprocesses.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command, out LineFunc) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if out == nil {
		out = func(string) {}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Name, err)
	}

	// Lines from both pipes go through one mutex so out never runs concurrently.
	var mu sync.Mutex
	emit := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		out(line)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamPipe(stdout, emit, &wg)
	go streamPipe(stderr, emit, &wg)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return &ExitError{Tool: c.Name, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("run %s: %w", c.Name, err)
	}
	return nil
}

func streamPipe(pipe io.Reader, out LineFunc, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		out(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		out(fmt.Sprintf("log stream error: %v", err))
	}
}
