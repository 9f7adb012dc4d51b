package app

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"slicerbak/internal/archive"
	"slicerbak/internal/config"
	"slicerbak/internal/testutil"
)

// newTestApp builds an App over a throwaway config root seeded with files.
func newTestApp(t *testing.T, files map[string]string) (*App, string) {
	t.Helper()

	root := t.TempDir()
	testutil.WriteTree(t, root, files)

	cfg := &config.Config{
		ConfigRoot: root,
		AppName:    "OrcaSlicer",
		ArchiveDir: t.TempDir(),
		LogDir:     t.TempDir(),
		Catalog:    config.CatalogConfig{Type: "memory"},
		Cloud:      config.CloudConfig{Type: "memory"},
	}

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, root
}

func TestApp_SaveRestoreRoundTrip(t *testing.T) {
	files := map[string]string{
		"machine.json":      "machine settings",
		"filament/pla.json": "pla profile",
	}
	a, _ := newTestApp(t, files)

	result, err := a.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if result.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", result.FileCount)
	}
	if result.Encrypted {
		t.Error("Encrypted = true without passphrase")
	}
	if _, err := os.Stat(result.ArchivePath); err != nil {
		t.Fatalf("archive missing: %v", err)
	}

	target := t.TempDir()
	restored, err := a.Restore(result.ArchivePath, RestoreOptions{
		Target: target,
		Policy: archive.PolicyStrict,
	})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !restored.Report.OK {
		t.Errorf("restore report not OK: %+v", restored.Report)
	}

	if got := testutil.ReadTree(t, target); !reflect.DeepEqual(got, files) {
		t.Errorf("restored tree = %v, want %v", got, files)
	}
}

func TestApp_Save_emptyRootFails(t *testing.T) {
	a, _ := newTestApp(t, nil)

	if _, err := a.Save(SaveOptions{}); err == nil {
		t.Fatal("Save() of empty configuration root succeeded, want error")
	}
}

func TestApp_Save_ignoresVolatileState(t *testing.T) {
	a, _ := newTestApp(t, map[string]string{
		"machine.json":    "keep",
		".metadata":       "skip",
		"cache/thumb.png": "skip",
		"logs/run.log":    "skip",
		"temp/scratch":    "skip",
	})

	result, err := a.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if result.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1 (volatile state must be excluded)", result.FileCount)
	}
}

func TestApp_EncryptedSaveRestore(t *testing.T) {
	files := map[string]string{"machine.json": "secret settings"}
	a, _ := newTestApp(t, files)

	result, err := a.Save(SaveOptions{Passphrase: "hunter2"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !result.Encrypted {
		t.Fatal("Encrypted = false with passphrase")
	}

	target := t.TempDir()

	// Without the passphrase the archive is unreadable.
	if _, err := a.Restore(result.ArchivePath, RestoreOptions{Target: target, SkipSafety: true}); err == nil {
		t.Fatal("Restore() of encrypted archive without passphrase succeeded")
	}

	restored, err := a.Restore(result.ArchivePath, RestoreOptions{
		Target:     target,
		Passphrase: "hunter2",
		SkipSafety: true,
	})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !restored.Report.OK {
		t.Errorf("restore report not OK: %+v", restored.Report)
	}
	if got := testutil.ReadTree(t, target); !reflect.DeepEqual(got, files) {
		t.Errorf("restored tree = %v, want %v", got, files)
	}
}

func TestApp_Restore_writesSafetyArchive(t *testing.T) {
	a, root := newTestApp(t, map[string]string{"machine.json": "v1"})

	result, err := a.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Change the live config, then restore the archive over it.
	testutil.WriteTree(t, root, map[string]string{"machine.json": "v2"})

	restored, err := a.Restore(result.ArchivePath, RestoreOptions{})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.SafetyArchive == "" {
		t.Fatal("no safety archive written before restore")
	}
	if _, err := os.Stat(restored.SafetyArchive); err != nil {
		t.Fatalf("safety archive missing: %v", err)
	}

	// The live config was rolled back to the archived state.
	if got := testutil.ReadTree(t, root); got["machine.json"] != "v1" {
		t.Errorf("machine.json = %q, want v1", got["machine.json"])
	}

	// The safety archive holds the pre-restore state.
	snap, err := a.snapshotRef(restored.SafetyArchive, "")
	if err != nil {
		t.Fatalf("reading safety archive: %v", err)
	}
	rec, ok := snap.Get("machine.json")
	if !ok {
		t.Fatal("safety archive missing machine.json")
	}
	if rec.Size != int64(len("v2")) {
		t.Errorf("safety archive size = %d, want %d", rec.Size, len("v2"))
	}
}

func TestApp_Compare(t *testing.T) {
	a, root := newTestApp(t, map[string]string{
		"machine.json":      "v1",
		"filament/pla.json": "pla",
	})

	result, err := a.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutate the live config: modify one, remove one, add one.
	testutil.WriteTree(t, root, map[string]string{
		"machine.json": "v2",
		"added.json":   "new",
	})
	if err := os.Remove(filepath.Join(root, "filament", "pla.json")); err != nil {
		t.Fatal(err)
	}

	// Empty new ref means the live configuration root.
	diff, err := a.Compare(result.ArchivePath, "", "")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if !reflect.DeepEqual(diff.Added, []string{"added.json"}) {
		t.Errorf("Added = %v", diff.Added)
	}
	if !reflect.DeepEqual(diff.Removed, []string{"filament/pla.json"}) {
		t.Errorf("Removed = %v", diff.Removed)
	}
	if len(diff.Modified) != 1 || diff.Modified[0].Path != "machine.json" {
		t.Errorf("Modified = %v", diff.Modified)
	}
}

func TestApp_ArchiveInfo(t *testing.T) {
	a, _ := newTestApp(t, map[string]string{"a.json": "a", "b.json": "b"})

	result, err := a.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	m, err := a.ArchiveInfo(result.ArchivePath, "")
	if err != nil {
		t.Fatalf("ArchiveInfo() error = %v", err)
	}
	if len(m.Files) != 2 {
		t.Errorf("manifest files = %d, want 2", len(m.Files))
	}
	if m.Checksum != result.Checksum {
		t.Errorf("checksum = %s, want %s", m.Checksum, result.Checksum)
	}
}

func TestApp_HistoryRecordsOperations(t *testing.T) {
	a, _ := newTestApp(t, map[string]string{"a.json": "a"})

	if _, err := a.Save(SaveOptions{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := a.Compare("", "", ""); err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	ops, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("got %d operations, want 2", len(ops))
	}

	kinds := map[string]bool{}
	for _, op := range ops {
		kinds[op.Kind] = true
		if op.Status != "success" {
			t.Errorf("operation %s status = %q, want success", op.Kind, op.Status)
		}
	}
	if !kinds["save"] || !kinds["compare"] {
		t.Errorf("kinds = %v, want save and compare", kinds)
	}

	archives, err := a.Archives()
	if err != nil {
		t.Fatalf("Archives() error = %v", err)
	}
	if len(archives) != 1 {
		t.Errorf("got %d catalog archives, want 1", len(archives))
	}
}

func TestApp_PushPull(t *testing.T) {
	a, _ := newTestApp(t, map[string]string{"a.json": "a"})

	result, err := a.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := a.Push(result.ArchivePath); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	remotes, err := a.RemoteArchives()
	if err != nil {
		t.Fatalf("RemoteArchives() error = %v", err)
	}
	if len(remotes) != 1 || remotes[0].Name != filepath.Base(result.ArchivePath) {
		t.Fatalf("remotes = %+v", remotes)
	}

	destDir := t.TempDir()
	pulled, err := a.Pull(remotes[0].Name, destDir)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}

	want, err := os.ReadFile(result.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(pulled)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("pulled archive differs from pushed archive")
	}
}

func TestApp_Restore_missingArchive(t *testing.T) {
	a, _ := newTestApp(t, map[string]string{"a.json": "a"})

	_, err := a.Restore(filepath.Join(t.TempDir(), "absent.zip"), RestoreOptions{
		Target:     t.TempDir(),
		SkipSafety: true,
	})
	if err == nil {
		t.Fatal("Restore() of missing archive succeeded")
	}
}
