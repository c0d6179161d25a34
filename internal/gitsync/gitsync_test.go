package gitsync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const fakeGit = `#!/bin/sh
echo "$(pwd)|$*" >> "$FAKE_GIT_LOG"
echo "running $1"
if [ "$1" = "$FAKE_GIT_FAIL" ]; then
	echo "fatal: $1 failed" >&2
	exit 1
fi
exit 0
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeGitEnv installs a shell script standing in for git and returns the
// orchestrator config plus the invocation log path.
func fakeGitEnv(t *testing.T, failStep string) (Config, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake git script requires a POSIX shell")
	}
	binDir := t.TempDir()
	gitPath := filepath.Join(binDir, "git")
	if err := os.WriteFile(gitPath, []byte(fakeGit), 0o755); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(binDir, "calls.log")
	t.Setenv("FAKE_GIT_LOG", logPath)
	t.Setenv("FAKE_GIT_FAIL", failStep)

	return Config{
		GitPath:       gitPath,
		WorkDir:       t.TempDir(),
		Remote:        "origin",
		Branch:        "main",
		CommitMessage: "auto sync",
	}, logPath
}

func readCalls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestSync_RunsStepsInOrder(t *testing.T) {
	cfg, logPath := fakeGitEnv(t, "")
	o := New(cfg, quietLogger())

	if err := o.Sync(context.Background(), 3); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	calls := readCalls(t, logPath)
	want := []string{
		"add -A",
		"commit -m auto sync",
		"pull origin main",
		"push -u origin main",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	wd, _ := filepath.EvalSymlinks(cfg.WorkDir)
	for i, c := range calls {
		dir, args, _ := strings.Cut(c, "|")
		if args != want[i] {
			t.Errorf("call %d = %q, want %q", i, args, want[i])
		}
		if got, _ := filepath.EvalSymlinks(dir); got != wd {
			t.Errorf("call %d ran in %q, want %q", i, dir, wd)
		}
	}
}

func TestSync_CommitFailureAbortsPullAndPush(t *testing.T) {
	cfg, logPath := fakeGitEnv(t, "commit")
	o := New(cfg, quietLogger())

	err := o.Sync(context.Background(), 1)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("err = %v, want *StepError", err)
	}
	if stepErr.Step != "commit" {
		t.Errorf("failed step = %q, want commit", stepErr.Step)
	}

	calls := readCalls(t, logPath)
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want add and commit only", calls)
	}
}

func TestSync_MissingExecutable(t *testing.T) {
	o := New(Config{
		GitPath: filepath.Join(t.TempDir(), "no-such-git"),
		WorkDir: t.TempDir(),
	}, quietLogger())

	err := o.Sync(context.Background(), 1)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "add" {
		t.Fatalf("err = %v, want failure at add", err)
	}
}

func TestSteps(t *testing.T) {
	o := New(Config{Remote: "upstream", Branch: "notes", CommitMessage: "msg"}, nil)
	steps := o.Steps()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	if strings.Join(names, ",") != "add,commit,pull,push" {
		t.Errorf("steps = %v", names)
	}
	if got := strings.Join(steps[3].Args, " "); got != "push -u upstream notes" {
		t.Errorf("push args = %q", got)
	}
}

// oversizedGit prints one line longer than maxLine followed by more output.
const oversizedGit = `#!/bin/sh
head -c 2097152 /dev/zero | tr '\0' 'x'
echo
i=0
while [ $i -lt 2000 ]; do
	echo "remote: progress line $i"
	i=$((i+1))
done
exit 0
`

func TestSync_OversizedOutputLineDoesNotHang(t *testing.T) {
	cfg, _ := fakeGitEnv(t, "")
	if err := os.WriteFile(cfg.GitPath, []byte(oversizedGit), 0o755); err != nil {
		t.Fatal(err)
	}
	o := New(cfg, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := o.Sync(ctx, 1); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Sync only returned because the deadline killed git")
	}
}
