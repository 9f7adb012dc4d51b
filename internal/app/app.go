// Package app is the application layer between the CLI and the engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages resource lifecycles on Close.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"slicerbak/internal/archive"
	"slicerbak/internal/catalog"
	"slicerbak/internal/cloud"
	"slicerbak/internal/config"
	"slicerbak/internal/encryption"
	"slicerbak/internal/engine"
	"slicerbak/internal/platform"
)

// App wires together the resolver, snapshot builder, archive reader/writer,
// and operation catalog. The caller must call Close when done.
type App struct {
	cfg      *config.Config
	resolver *platform.Resolver
	cat      *catalog.Catalog
	logger   engine.Logger
	logFile  *os.File
	progress engine.ProgressFunc
	store    cloud.Store // lazily created on first push/pull
}

// cloudStore creates the remote store on first use and caches it.
func (a *App) cloudStore() (cloud.Store, error) {
	if a.store == nil {
		s, err := cloud.NewStoreFromConfig(a.cfg.Cloud)
		if err != nil {
			return nil, err
		}
		a.store = s
	}
	return a.store, nil
}

// New creates a fully wired App from the given config. progress is optional
// and receives per-file updates during long operations.
func New(cfg *config.Config, progress engine.ProgressFunc) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	cat, err := openCatalog(cfg.Catalog)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		resolver: &platform.Resolver{Override: cfg.ConfigRoot, AppName: cfg.AppName},
		cat:      cat,
		logger:   &slogAdapter{l: slogger},
		logFile:  logFile,
		progress: progress,
	}, nil
}

// openCatalog creates the operation catalog from the catalog config section.
func openCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	switch cfg.Type {
	case "memory":
		return catalog.Open(":memory:")
	case "", "sqlite":
		dataDir := cfg.DataDir
		if dataDir == "" {
			defaults, err := GetDefaults()
			if err != nil {
				return nil, fmt.Errorf("resolving catalog directory: %w", err)
			}
			dataDir = defaults["base_dir"]
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
		return catalog.Open(filepath.Join(dataDir, "catalog.db"))
	default:
		return nil, fmt.Errorf("unknown catalog type: %s", cfg.Type)
	}
}

// SaveOptions controls a Save run.
type SaveOptions struct {
	Output     string // archive path; empty means a timestamped name in ArchiveDir
	Passphrase string // non-empty means encrypt the archive
}

// SaveResult summarizes a completed Save.
type SaveResult struct {
	ArchivePath string
	Checksum    string
	FileCount   int
	TotalSize   int64
	Warnings    []engine.Warning
	Encrypted   bool
}

// Save snapshots the configuration root and writes it into an archive.
// An empty configuration root is an error: archiving nothing is almost
// always a misconfigured root, not an intent.
func (a *App) Save(opts SaveOptions) (*SaveResult, error) {
	opDetail := opts.Output
	opID, err := a.cat.BeginOperation("save", opDetail)
	if err != nil {
		return nil, err
	}

	result, err := a.save(opts)
	a.finishOperation(opID, err, func() string { return result.ArchivePath })
	return result, err
}

func (a *App) save(opts SaveOptions) (*SaveResult, error) {
	root, err := a.resolver.ResolveConfigRoot()
	if err != nil {
		return nil, err
	}

	builder := &engine.Builder{
		Ignore:   engine.NewIgnoreMatcher(a.ignorePatterns()...),
		Logger:   a.logger,
		Progress: a.progress,
	}
	snap, err := builder.Build(root)
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, fmt.Errorf("configuration root %s has no files to back up", root)
	}

	dest := opts.Output
	if dest == "" {
		name := fmt.Sprintf("%s_backup_%s.zip", a.cfg.AppName, time.Now().Format("20060102_150405"))
		dest = filepath.Join(a.cfg.ArchiveDir, name)
	}

	writer := &archive.Writer{Logger: a.logger, Progress: a.progress}
	encrypted := opts.Passphrase != ""

	zipPath := dest
	if encrypted {
		// Write the container beside the destination, then encrypt into place.
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %v: %w", err, engine.ErrArchive)
		}
		tmp, err := os.CreateTemp(filepath.Dir(dest), ".save-*.zip")
		if err != nil {
			return nil, fmt.Errorf("creating temp archive: %v: %w", err, engine.ErrArchive)
		}
		zipPath = tmp.Name()
		tmp.Close()
		defer os.Remove(zipPath)
	}

	if err := writer.Write(snap, root, zipPath); err != nil {
		return nil, err
	}

	reader := &archive.Reader{Logger: a.logger}
	manifest, err := reader.ReadManifest(zipPath)
	if err != nil {
		return nil, err
	}

	if encrypted {
		if err := encryption.EncryptFile(zipPath, dest, opts.Passphrase); err != nil {
			return nil, fmt.Errorf("encrypting archive: %w", err)
		}
	}

	if err := a.cat.RecordArchive(dest, manifest.Checksum, snap.Len(), snap.TotalSize(), snap.CreatedAt()); err != nil {
		a.logger.Warn("recording archive in catalog", "error", err)
	}

	return &SaveResult{
		ArchivePath: dest,
		Checksum:    manifest.Checksum,
		FileCount:   snap.Len(),
		TotalSize:   snap.TotalSize(),
		Warnings:    snap.Warnings(),
		Encrypted:   encrypted,
	}, nil
}

// RestoreOptions controls a Restore run.
type RestoreOptions struct {
	Target     string // restore destination; empty means the configuration root
	Policy     archive.Policy
	Passphrase string // required when the archive is encrypted
	SkipSafety bool   // skip the pre-restore safety archive
}

// RestoreResult summarizes a completed Restore.
type RestoreResult struct {
	Target        string
	SafetyArchive string // written before touching the target; empty if skipped
	Report        *archive.RestoreReport
}

// Restore extracts an archive into the target directory, validating every
// entry's digest. Before the first byte is written, the current target
// content is saved to a safety archive so a bad restore is recoverable.
func (a *App) Restore(archivePath string, opts RestoreOptions) (*RestoreResult, error) {
	opID, err := a.cat.BeginOperation("restore", archivePath)
	if err != nil {
		return nil, err
	}

	result, err := a.restore(archivePath, opts)
	a.finishOperation(opID, err, func() string { return result.Target })
	return result, err
}

func (a *App) restore(archivePath string, opts RestoreOptions) (*RestoreResult, error) {
	target := opts.Target
	if target == "" {
		root, err := a.resolver.ResolveConfigRoot()
		if err != nil {
			return nil, err
		}
		target = root
	}

	plainPath, cleanup, err := a.decryptIfNeeded(archivePath, opts.Passphrase)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result := &RestoreResult{Target: target}

	if !opts.SkipSafety {
		safety, err := a.writeSafetyArchive(target)
		if err != nil {
			return nil, fmt.Errorf("writing pre-restore safety archive: %w", err)
		}
		result.SafetyArchive = safety
	}

	reader := &archive.Reader{Logger: a.logger, Progress: a.progress}
	report, err := reader.Restore(plainPath, target, opts.Policy)
	if err != nil {
		return nil, err
	}
	result.Report = report
	return result, nil
}

// writeSafetyArchive snapshots the restore target before it is modified.
// A target that does not exist yet or holds no files needs no safety copy.
func (a *App) writeSafetyArchive(target string) (string, error) {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return "", nil
	}

	builder := &engine.Builder{
		Ignore: engine.NewIgnoreMatcher(a.ignorePatterns()...),
		Logger: a.logger,
	}
	snap, err := builder.Build(target)
	if err != nil {
		return "", err
	}
	if snap.Len() == 0 {
		return "", nil
	}

	name := fmt.Sprintf("pre_restore_%s.zip", time.Now().Format("20060102_150405"))
	dest := filepath.Join(a.cfg.ArchiveDir, name)
	writer := &archive.Writer{Logger: a.logger}
	if err := writer.Write(snap, target, dest); err != nil {
		return "", err
	}
	a.logger.Info("safety archive written", "path", dest)
	return dest, nil
}

// Compare classifies the differences between two references. Each reference
// is an archive path, a directory path, or empty for the configuration root.
func (a *App) Compare(oldRef, newRef, passphrase string) (*engine.ComparisonResult, error) {
	opID, err := a.cat.BeginOperation("compare", oldRef+" -> "+newRef)
	if err != nil {
		return nil, err
	}

	oldSnap, err := a.snapshotRef(oldRef, passphrase)
	if err == nil {
		var newSnap *engine.Snapshot
		newSnap, err = a.snapshotRef(newRef, passphrase)
		if err == nil {
			result := engine.Compare(oldSnap, newSnap)
			a.finishOperation(opID, nil, func() string {
				return fmt.Sprintf("added=%d removed=%d modified=%d",
					len(result.Added), len(result.Removed), len(result.Modified))
			})
			return result, nil
		}
	}
	a.finishOperation(opID, err, nil)
	return nil, err
}

// snapshotRef materializes a snapshot from an archive file, a directory, or
// the configuration root (empty ref).
func (a *App) snapshotRef(ref, passphrase string) (*engine.Snapshot, error) {
	if ref == "" {
		root, err := a.resolver.ResolveConfigRoot()
		if err != nil {
			return nil, err
		}
		ref = root
	}

	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", ref, err, engine.ErrIO)
	}

	if info.IsDir() {
		builder := &engine.Builder{
			Ignore: engine.NewIgnoreMatcher(a.ignorePatterns()...),
			Logger: a.logger,
		}
		return builder.Build(ref)
	}

	plainPath, cleanup, err := a.decryptIfNeeded(ref, passphrase)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	reader := &archive.Reader{Logger: a.logger}
	return reader.Snapshot(plainPath)
}

// ArchiveInfo returns the validated manifest of an archive.
func (a *App) ArchiveInfo(archivePath, passphrase string) (*archive.Manifest, error) {
	plainPath, cleanup, err := a.decryptIfNeeded(archivePath, passphrase)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	reader := &archive.Reader{Logger: a.logger}
	return reader.ReadManifest(plainPath)
}

// decryptIfNeeded returns a readable zip path for the archive, decrypting
// into a temp file when the archive is age-encrypted. The cleanup func
// removes the temp file and is always safe to call.
func (a *App) decryptIfNeeded(archivePath, passphrase string) (string, func(), error) {
	if !encryption.IsEncrypted(archivePath) {
		return archivePath, func() {}, nil
	}
	if passphrase == "" {
		return "", func() {}, fmt.Errorf("archive %s is encrypted: passphrase required", archivePath)
	}

	tmp, err := os.CreateTemp("", "slicerbak-*.zip")
	if err != nil {
		return "", func() {}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := encryption.DecryptFile(archivePath, tmpPath, passphrase); err != nil {
		os.Remove(tmpPath)
		return "", func() {}, err
	}
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}

// History returns up to limit recorded operations, most recent first.
func (a *App) History(limit int) ([]catalog.Operation, error) {
	return a.cat.RecentOperations(limit)
}

// Archives returns all archives known to the catalog, most recent first.
func (a *App) Archives() ([]catalog.Archive, error) {
	return a.cat.Archives()
}

// Push uploads an archive to the configured cloud store under its base name.
func (a *App) Push(archivePath string) error {
	opID, err := a.cat.BeginOperation("push", archivePath)
	if err != nil {
		return err
	}
	err = a.push(archivePath)
	a.finishOperation(opID, err, nil)
	return err
}

func (a *App) push(archivePath string) error {
	store, err := a.cloudStore()
	if err != nil {
		return err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	if err := store.Upload(filepath.Base(archivePath), f, info.Size()); err != nil {
		return fmt.Errorf("uploading archive: %w", err)
	}
	a.logger.Info("archive pushed", "name", filepath.Base(archivePath), "size", info.Size())
	return nil
}

// Pull downloads a named archive from the cloud store into destDir and
// returns its local path.
func (a *App) Pull(name, destDir string) (string, error) {
	opID, err := a.cat.BeginOperation("pull", name)
	if err != nil {
		return "", err
	}
	dest, err := a.pull(name, destDir)
	a.finishOperation(opID, err, func() string { return dest })
	return dest, err
}

func (a *App) pull(name, destDir string) (string, error) {
	store, err := a.cloudStore()
	if err != nil {
		return "", err
	}

	if destDir == "" {
		destDir = a.cfg.ArchiveDir
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating destination directory: %w", err)
	}

	dest := filepath.Join(destDir, name)
	tmp, err := os.CreateTemp(destDir, ".pull-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := store.Download(name, tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("downloading archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("placing archive: %w", err)
	}

	success = true
	a.logger.Info("archive pulled", "name", name, "path", dest)
	return dest, nil
}

// RemoteArchives lists archives in the configured cloud store.
func (a *App) RemoteArchives() ([]cloud.RemoteArchive, error) {
	store, err := a.cloudStore()
	if err != nil {
		return nil, err
	}
	return store.List()
}

// ConfigRoot resolves the active configuration root, for display.
func (a *App) ConfigRoot() (string, error) {
	return a.resolver.ResolveConfigRoot()
}

// ignorePatterns returns the configured exclusions, defaulting to the
// standard volatile-state set when the config names none.
func (a *App) ignorePatterns() []string {
	if len(a.cfg.Ignore) > 0 {
		return a.cfg.Ignore
	}
	return config.DefaultIgnore()
}

// finishOperation closes out a catalog operation record. detail is only
// evaluated on success since the result may be nil on failure.
func (a *App) finishOperation(opID string, opErr error, detail func() string) {
	status := catalog.StatusSuccess
	text := ""
	if opErr != nil {
		status = catalog.StatusFailed
		text = opErr.Error()
	} else if detail != nil {
		text = detail()
	}
	if err := a.cat.FinishOperation(opID, status, text); err != nil {
		a.logger.Warn("recording operation finish", "error", err)
	}
}

// Close releases the catalog and log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.cat.Close(); err != nil {
		firstErr = fmt.Errorf("closing catalog: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
