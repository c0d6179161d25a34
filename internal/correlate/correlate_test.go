package correlate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/testutil"
)

type fakeRegistrar struct {
	calls []string
}

func (f *fakeRegistrar) Register(path string) error {
	f.calls = append(f.calls, path)
	return nil
}

type env struct {
	root  string
	reg   *fakeRegistrar
	moves []models.Move
	now   time.Time
}

func (e *env) clock() time.Time { return e.now }

func (e *env) options(t *testing.T) Options {
	t.Helper()
	_, store := testutil.TestVaultAt(t, e.root)
	return Options{
		Window:    time.Second,
		Registrar: e.reg,
		Relocator: NewRelocator(store, []string{".md"}, testutil.Logger()),
		Logger:    testutil.Logger(),
		OnMove:    func(m models.Move) { e.moves = append(e.moves, m) },
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return &env{
		root: t.TempDir(),
		reg:  &fakeRegistrar{},
		now:  time.Unix(1_700_000_000, 0),
	}
}

func newBuffered(t *testing.T, e *env) *Correlator {
	t.Helper()
	c := New(e.options(t))
	c.now = e.clock
	return c
}

func (e *env) dir(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

func (e *env) event(kind models.Kind, name, dir string, offset time.Duration) models.RawEvent {
	return models.RawEvent{Kind: kind, Name: name, Dir: e.dir(dir), ObservedAt: e.now.Add(offset)}
}

// draftMoved lays out the filesystem as it looks after draft.md was moved
// from X to Y but before its assets followed.
func draftMoved(t *testing.T, e *env) {
	t.Helper()
	testutil.WriteFile(t, e.root, "Y/draft.md", "# Draft\n\n![fig](assets/fig1.png)\n")
	testutil.WriteFile(t, e.root, "X/assets/fig1.png", "png-bytes")
}

func assertMovedFig(t *testing.T, e *env) {
	t.Helper()
	if _, err := os.Stat(e.dir("Y/assets/fig1.png")); err != nil {
		t.Errorf("fig1.png missing at Y/assets: %v", err)
	}
	if _, err := os.Stat(e.dir("X/assets/fig1.png")); !os.IsNotExist(err) {
		t.Errorf("fig1.png still at X/assets (err = %v)", err)
	}
}

func TestCorrelator_MoveRelocatesAssets(t *testing.T) {
	e := newEnv(t)
	draftMoved(t, e)
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Deleted, "draft.md", "X", 0))
	e.now = e.now.Add(200 * time.Millisecond)
	c.Ingest(e.event(models.Created, "draft.md", "Y", 0))

	assertMovedFig(t, e)
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
	if len(e.reg.calls) != 0 {
		t.Errorf("registrar called for a moved file: %v", e.reg.calls)
	}
	if len(e.moves) != 1 {
		t.Fatalf("moves = %d, want 1", len(e.moves))
	}
	mv := e.moves[0]
	if mv.Source != e.dir("X") || mv.Target != e.dir("Y") {
		t.Errorf("move = %s -> %s", mv.Source, mv.Target)
	}
	if len(mv.Assets) != 1 || mv.Assets[0] != "fig1.png" {
		t.Errorf("assets = %v", mv.Assets)
	}
}

func TestCorrelator_MoveRelocatesAssetWithSpaceInName(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.root, "Y/report.md", "![chart](assets/q3 chart.png)\n")
	testutil.WriteFile(t, e.root, "X/assets/q3 chart.png", "png-bytes")
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Deleted, "report.md", "X", 0))
	c.Ingest(e.event(models.Created, "report.md", "Y", 0))

	if _, err := os.Stat(e.dir("Y/assets/q3 chart.png")); err != nil {
		t.Errorf("asset missing at Y/assets: %v", err)
	}
	if len(e.moves) != 1 {
		t.Fatalf("moves = %d, want 1", len(e.moves))
	}
	if mv := e.moves[0]; len(mv.Assets) != 1 || mv.Assets[0] != "q3 chart.png" || len(mv.Missing) != 0 {
		t.Errorf("move = %+v", mv)
	}
}

func TestCorrelator_CreateBeforeDelete(t *testing.T) {
	e := newEnv(t)
	draftMoved(t, e)
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Created, "draft.md", "Y", 0))
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", c.Pending())
	}
	e.now = e.now.Add(100 * time.Millisecond)
	c.Ingest(e.event(models.Deleted, "draft.md", "X", 0))

	assertMovedFig(t, e)
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
	if len(e.moves) != 1 {
		t.Errorf("moves = %d, want 1", len(e.moves))
	}
}

func TestCorrelator_LoneCreatedFileAgesOut(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.root, "notes.md", "hi")
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Created, "notes.md", "", 0))
	c.Reconcile(e.now.Add(500 * time.Millisecond))
	if c.Pending() != 1 {
		t.Fatalf("finalized before the window elapsed")
	}
	c.Reconcile(e.now.Add(1100 * time.Millisecond))
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
	if len(e.reg.calls) != 0 {
		t.Errorf("files must not be registered: %v", e.reg.calls)
	}
	if len(e.moves) != 0 {
		t.Errorf("unexpected move: %v", e.moves)
	}
}

func TestCorrelator_LoneCreatedDirectoryRegistered(t *testing.T) {
	e := newEnv(t)
	if err := os.MkdirAll(e.dir("notes.md"), 0o755); err != nil {
		t.Fatal(err)
	}
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Created, "notes.md", "", 0))
	c.Reconcile(e.now.Add(2 * time.Second))

	if len(e.reg.calls) != 1 || e.reg.calls[0] != e.dir("notes.md") {
		t.Errorf("registrar calls = %v, want [%s]", e.reg.calls, e.dir("notes.md"))
	}
}

func TestCorrelator_LoneDeletedIsPureDelete(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.root, "X/assets/keep.png", "png")
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Deleted, "old.md", "X", 0))
	c.Reconcile(e.now.Add(2 * time.Second))

	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
	if len(e.reg.calls) != 0 || len(e.moves) != 0 {
		t.Errorf("pure delete should not register or relocate: %v %v", e.reg.calls, e.moves)
	}
	if _, err := os.Stat(e.dir("X/assets/keep.png")); err != nil {
		t.Errorf("asset touched by a pure delete: %v", err)
	}
}

func TestCorrelator_PairOutsideWindowNotAMove(t *testing.T) {
	e := newEnv(t)
	draftMoved(t, e)
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Deleted, "draft.md", "X", 0))
	// The tick that would have aged the deletion out never ran.
	e.now = e.now.Add(1500 * time.Millisecond)
	c.Ingest(e.event(models.Created, "draft.md", "Y", 0))

	if len(e.moves) != 0 {
		t.Fatalf("events %v apart must not pair", 1500*time.Millisecond)
	}
	if _, err := os.Stat(e.dir("X/assets/fig1.png")); err != nil {
		t.Errorf("asset should stay at source: %v", err)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want the creation still buffered", c.Pending())
	}
}

func TestCorrelator_SimultaneousMoves(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.root, "Y/a.md", "![a](assets/a.png)")
	testutil.WriteFile(t, e.root, "Y/b.md", "![b](assets/b.png)")
	testutil.WriteFile(t, e.root, "X/assets/a.png", "a")
	testutil.WriteFile(t, e.root, "X/assets/b.png", "b")
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Deleted, "a.md", "X", 0))
	c.Ingest(e.event(models.Deleted, "b.md", "X", 0))
	c.Ingest(e.event(models.Created, "b.md", "Y", 0))
	c.Ingest(e.event(models.Created, "a.md", "Y", 0))

	for _, name := range []string{"a.png", "b.png"} {
		if _, err := os.Stat(e.dir("Y/assets/" + name)); err != nil {
			t.Errorf("%s not relocated: %v", name, err)
		}
	}
	if len(e.moves) != 2 {
		t.Errorf("moves = %d, want 2", len(e.moves))
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
}

func TestCorrelator_ReadFailureKeepsBookkeeping(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.root, "X/assets/fig1.png", "png")
	c := newBuffered(t, e)

	// Y/draft.md does not exist, so the document cannot be read.
	c.Ingest(e.event(models.Deleted, "draft.md", "X", 0))
	c.Ingest(e.event(models.Created, "draft.md", "Y", 0))

	if c.Pending() != 0 {
		t.Errorf("Pending = %d, pair should be retired despite the failure", c.Pending())
	}
	if len(e.moves) != 0 {
		t.Errorf("aborted relocation reported as move: %v", e.moves)
	}
}

func TestCorrelator_MissingAndOverwrittenAssets(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.root, "Y/draft.md", "![a](assets/here.png) ![b](assets/gone.png)")
	testutil.WriteFile(t, e.root, "X/assets/here.png", "new")
	testutil.WriteFile(t, e.root, "Y/assets/here.png", "old")
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Deleted, "draft.md", "X", 0))
	c.Ingest(e.event(models.Created, "draft.md", "Y", 0))

	got, err := os.ReadFile(e.dir("Y/assets/here.png"))
	if err != nil || string(got) != "new" {
		t.Errorf("here.png = %q, %v; want overwritten with source", got, err)
	}
	if len(e.moves) != 1 {
		t.Fatalf("moves = %d, want 1", len(e.moves))
	}
	if m := e.moves[0].Missing; len(m) != 1 || m[0] != "gone.png" {
		t.Errorf("missing = %v, want [gone.png]", m)
	}
}

func TestCorrelator_SameDirectoryReplaceIsNotAMove(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.root, "X/draft.md", "![fig](assets/fig1.png)")
	testutil.WriteFile(t, e.root, "X/assets/fig1.png", "png")
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Deleted, "draft.md", "X", 0))
	c.Ingest(e.event(models.Created, "draft.md", "X", 0))

	if c.Pending() != 0 || len(e.moves) != 0 {
		t.Errorf("pending = %d, moves = %v", c.Pending(), e.moves)
	}
	if _, err := os.Stat(e.dir("X/assets/fig1.png")); err != nil {
		t.Errorf("asset should be untouched: %v", err)
	}
}

func TestCorrelator_ModifiedNotBuffered(t *testing.T) {
	e := newEnv(t)
	c := newBuffered(t, e)
	c.Ingest(e.event(models.Modified, "draft.md", "X", 0))
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
}

func TestCorrelator_NonDocumentSkipsRelocation(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.root, "Y/image.txt", "![fig](assets/fig1.png)")
	testutil.WriteFile(t, e.root, "X/assets/fig1.png", "png")
	c := newBuffered(t, e)

	c.Ingest(e.event(models.Deleted, "image.txt", "X", 0))
	c.Ingest(e.event(models.Created, "image.txt", "Y", 0))

	if _, err := os.Stat(e.dir("X/assets/fig1.png")); err != nil {
		t.Errorf("assets of non-documents must not move: %v", err)
	}
}

func newCached(t *testing.T, e *env) *CacheCorrelator {
	t.Helper()
	c := NewCache(e.options(t))
	t.Cleanup(c.Close)
	return c
}

func TestCacheCorrelator_Move(t *testing.T) {
	e := newEnv(t)
	draftMoved(t, e)
	c := newCached(t, e)

	c.Ingest(e.event(models.Deleted, "draft.md", "X", 0))
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", c.Pending())
	}
	c.Ingest(e.event(models.Created, "draft.md", "Y", 0))

	assertMovedFig(t, e)
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
	if len(e.moves) != 1 {
		t.Errorf("moves = %d, want 1", len(e.moves))
	}
}

func TestCacheCorrelator_ExpiredDeletionIsNew(t *testing.T) {
	e := newEnv(t)
	draftMoved(t, e)
	opts := e.options(t)
	opts.Window = 20 * time.Millisecond
	c := NewCache(opts)
	defer c.Close()

	c.Ingest(e.event(models.Deleted, "draft.md", "X", 0))
	time.Sleep(60 * time.Millisecond)
	c.Ingest(e.event(models.Created, "draft.md", "Y", 0))

	if len(e.moves) != 0 {
		t.Errorf("expired deletion paired: %v", e.moves)
	}
	if _, err := os.Stat(e.dir("X/assets/fig1.png")); err != nil {
		t.Errorf("asset should stay at source: %v", err)
	}
}

func TestCacheCorrelator_NewDirectoryRegisteredImmediately(t *testing.T) {
	e := newEnv(t)
	if err := os.MkdirAll(e.dir("sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	c := newCached(t, e)

	c.Ingest(e.event(models.Created, "sub", "", 0))
	if len(e.reg.calls) != 1 || e.reg.calls[0] != e.dir("sub") {
		t.Errorf("registrar calls = %v", e.reg.calls)
	}
}
