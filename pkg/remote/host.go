package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/vyvo/modelpack/pkg/builder"
	"github.com/vyvo/modelpack/pkg/config"
)

// Host runs build and runtime tools on a docker host reached over SSH. It
// implements builder.Runner and builder.Stager: local job directories map to
// <root>/<base name of dir> on the host.
type Host struct {
	client *ssh.Client
	root   string
}

// Dial connects to the host described by cfg.
func Dial(cfg config.RemoteConfig) (*Host, error) {
	if !cfg.Enabled() {
		return nil, errors.New("remote host not configured")
	}
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port <= 0 {
		port = 22
	}
	user := cfg.User
	if user == "" {
		user = os.Getenv("USER")
	}

	client, err := ssh.Dial("tcp", cfg.Host+":"+strconv.Itoa(port), &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", cfg.Host, err)
	}

	root := cfg.Dir
	if root == "" {
		root = "/tmp/modelpack"
	}
	return &Host{client: client, root: root}, nil
}

// Close drops the SSH connection.
func (h *Host) Close() error {
	return h.client.Close()
}

// Run executes c on the host inside the remote copy of c.Dir, streaming
// stdout and stderr lines to out.
func (h *Host) Run(ctx context.Context, c builder.Command, out builder.LineFunc) error {
	sess, err := h.client.NewSession()
	if err != nil {
		return fmt.Errorf("ssh session: %w", err)
	}
	defer sess.Close()

	if out == nil {
		out = func(string) {}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	line := remoteCommand(h.remoteDir(c.Dir), c)
	if err := sess.Start(line); err != nil {
		return fmt.Errorf("start %s: %w", c.Name, err)
	}

	var mu sync.Mutex
	emit := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		out(s)
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(stdout, emit, &wg)
	go scanLines(stderr, emit, &wg)

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- sess.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		return ctx.Err()
	case err := <-done:
		return exitError(c.Name, err)
	}
}

// Stage uploads files from dir into the remote copy of dir.
func (h *Host) Stage(ctx context.Context, dir string, files []string) error {
	client, err := sftp.NewClient(h.client)
	if err != nil {
		return fmt.Errorf("sftp: %w", err)
	}
	defer client.Close()

	target := h.remoteDir(dir)
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := pushFile(client, filepath.Join(dir, name), path.Join(target, filepath.ToSlash(name))); err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
	}
	return nil
}

// Unstage removes previously staged files. Files already gone are ignored.
func (h *Host) Unstage(ctx context.Context, dir string, files []string) error {
	client, err := sftp.NewClient(h.client)
	if err != nil {
		return fmt.Errorf("sftp: %w", err)
	}
	defer client.Close()

	target := h.remoteDir(dir)
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if name == "" {
			continue
		}
		err := client.Remove(path.Join(target, filepath.ToSlash(name)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func (h *Host) remoteDir(dir string) string {
	return remoteDir(h.root, dir)
}

func remoteDir(root, dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	base := filepath.Base(abs)
	if base == "." || base == string(filepath.Separator) {
		base = "job"
	}
	return path.Join(root, base)
}

// remoteCommand builds the shell line for c, running in dir. The directory
// is created first since discovery runs before the context is staged.
func remoteCommand(dir string, c builder.Command) string {
	q := shellQuote(dir)
	parts := []string{"mkdir", "-p", q, "&&", "cd", q, "&&"}
	if len(c.Env) > 0 {
		parts = append(parts, "env")
		for _, kv := range c.Env {
			parts = append(parts, shellQuote(kv))
		}
	}
	parts = append(parts, shellQuote(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@%+,", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func exitError(tool string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitStatus() > 0 {
		return &builder.ExitError{Tool: tool, Code: exitErr.ExitStatus()}
	}
	return fmt.Errorf("run %s: %w", tool, err)
}

func scanLines(r io.Reader, out builder.LineFunc, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		out(scanner.Text())
	}
}

func pushFile(client *sftp.Client, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := client.MkdirAll(path.Dir(remote)); err != nil {
		return err
	}
	dst, err := client.Create(remote)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Chmod(0o644)
}

func authMethods(cfg config.RemoteConfig) ([]ssh.AuthMethod, error) {
	methods := make([]ssh.AuthMethod, 0, 2)
	if keyPath := strings.TrimSpace(cfg.KeyPath); keyPath != "" {
		data, err := os.ReadFile(expandHome(keyPath))
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse ssh private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if password := strings.TrimSpace(cfg.Password); password != "" {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) > 0 {
		return methods, nil
	}

	signer, err := defaultSigner()
	if err != nil {
		return nil, fmt.Errorf("no authentication method provided: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func defaultSigner() (ssh.Signer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if signer, err := ssh.ParsePrivateKey(data); err == nil {
			return signer, nil
		}
	}
	return nil, errors.New("no default private key found")
}

func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}
