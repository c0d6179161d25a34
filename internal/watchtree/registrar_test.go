package watchtree

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

type fakeAdder struct {
	added []string
	fail  map[string]bool
}

func (f *fakeAdder) Add(name string) error {
	if f.fail[name] {
		return errors.New("permission denied")
	}
	f.added = append(f.added, name)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRegister_WalksTreeAndSkipsExcluded(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b", ".git/objects", "c")
	_ = os.WriteFile(filepath.Join(root, "a", "note.md"), []byte("x"), 0o644)

	fa := &fakeAdder{}
	r := NewRegistrar(fa, NewExcluder(DefaultExclusions), quietLogger())
	if err := r.Register(root); err != nil {
		t.Fatalf("Register: %v", err)
	}

	want := []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "c"),
	}
	got := append([]string(nil), fa.added...)
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("added = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("added[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if r.Watched(filepath.Join(root, ".git")) {
		t.Error(".git should not be watched")
	}
	if r.Count() != 4 {
		t.Errorf("Count = %d, want 4", r.Count())
	}
}

func TestRegister_Idempotent(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a")

	fa := &fakeAdder{}
	r := NewRegistrar(fa, NewExcluder(nil), quietLogger())
	if err := r.Register(root); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(root); err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if err := r.Register(filepath.Join(root, "a")); err != nil {
		t.Fatalf("Register subdir: %v", err)
	}
	if len(fa.added) != 2 {
		t.Errorf("Add called %d times, want 2", len(fa.added))
	}
}

func TestRegister_FileIsNoop(t *testing.T) {
	root := t.TempDir()
	f := filepath.Join(root, "note.md")
	_ = os.WriteFile(f, []byte("x"), 0o644)

	fa := &fakeAdder{}
	r := NewRegistrar(fa, NewExcluder(nil), quietLogger())
	if err := r.Register(f); err != nil {
		t.Fatalf("Register file: %v", err)
	}
	if len(fa.added) != 0 {
		t.Errorf("files must not be watched, got %v", fa.added)
	}
}

func TestRegister_MissingRoot(t *testing.T) {
	r := NewRegistrar(&fakeAdder{}, NewExcluder(nil), quietLogger())
	if err := r.Register(filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestRegister_AddFailureSkipsSubtree(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "locked/inner", "open")

	fa := &fakeAdder{fail: map[string]bool{filepath.Join(root, "locked"): true}}
	r := NewRegistrar(fa, NewExcluder(nil), quietLogger())
	if err := r.Register(root); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.Watched(filepath.Join(root, "locked", "inner")) {
		t.Error("subtree of a failed directory should be skipped")
	}
	if !r.Watched(filepath.Join(root, "open")) {
		t.Error("sibling subtree should still be watched")
	}
}

func TestForget_AllowsReregistration(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b")

	fa := &fakeAdder{}
	r := NewRegistrar(fa, NewExcluder(nil), quietLogger())
	_ = r.Register(root)

	r.Forget(filepath.Join(root, "a"))
	if r.Watched(filepath.Join(root, "a", "b")) {
		t.Error("descendants should be forgotten")
	}
	if !r.Watched(root) {
		t.Error("root should still be watched")
	}

	before := len(fa.added)
	_ = r.Register(filepath.Join(root, "a"))
	if len(fa.added)-before != 2 {
		t.Errorf("re-register added %d dirs, want 2", len(fa.added)-before)
	}
}

func TestExcluder_Match(t *testing.T) {
	e := NewExcluder(DefaultExclusions)
	cases := map[string]bool{
		".git":             true,
		".gitignore":       true,
		"~$report.docx":    true,
		".~lock.notes.md#": true,
		".DS_Store":        true,
		"note.md.swp":      true,
		"draft.md":         false,
		"assets":           false,
		"/x/y/readme.md":   false,
	}
	for name, want := range cases {
		if got := e.Match(name); got != want {
			t.Errorf("Match(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestExcluder_MatchesBaseNameOnly(t *testing.T) {
	e := NewExcluder([]string{".git", "notesync.db"})

	if e.Match("/vault/.git/HEAD") {
		t.Error("a file inside an excluded directory is not matched by name")
	}
	for _, name := range []string{"/vault/.git", "/vault/notesync.db-wal", "/vault/notesync.db-shm"} {
		if !e.Match(name) {
			t.Errorf("Match(%q) = false, want true", name)
		}
	}
}
