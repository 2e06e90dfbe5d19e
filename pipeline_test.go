package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
	"github.com/bizzlechizzle/aupat-sub000/config"
	"github.com/bizzlechizzle/aupat-sub000/content"
	"github.com/bizzlechizzle/aupat-sub000/layout"
	"github.com/bizzlechizzle/aupat-sub000/probe"
)

// newTestCommand builds a command rooted in a temp dir. The probe
// binaries do not exist, so every record degrades to the other bucket,
// which keeps the pipeline runnable on any machine.
func newTestCommand(t *testing.T) *command {
	t.Helper()
	workDir := t.TempDir()
	cfg := config.Default(workDir)
	cfg.Probe.Exiftool = "exiftool-missing-for-test"
	cfg.Probe.Ffprobe = "ffprobe-missing-for-test"
	cfg.Probe.TimeoutSec = 2

	cat, err := catalog.New(cfg.CatalogPath)
	require.NoError(t, err)
	t.Cleanup(cat.Close)

	return &command{
		Config:  cfg,
		Catalog: cat,
		Prober: &probe.Prober{
			ExiftoolBin: cfg.Probe.Exiftool,
			FfprobeBin:  cfg.Probe.Ffprobe,
			Timeout:     cfg.ProbeTimeout(),
			Rules:       probeRules(cfg),
		},
	}
}

func newTestLocation(t *testing.T, c *command) *catalog.Location {
	t.Helper()
	loc := &catalog.Location{Name: "Hudson Site", State: "NY", Type: "Industrial"}
	require.NoError(t, c.Catalog.CreateLocation(loc))
	return loc
}

func newTracker(t *testing.T, c *command, loc *catalog.Location, src string) *batchTracker {
	t.Helper()
	tr, err := newBatchTracker(c.Catalog, loc.LocID, src, "")
	require.NoError(t, err)
	return tr
}

func writeSource(t *testing.T, dir string, files map[string][]byte) string {
	t.Helper()
	src := filepath.Join(dir, "source")
	require.NoError(t, os.MkdirAll(src, 0755))
	for name, data := range files {
		path := filepath.Join(src, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, data, 0644))
	}
	return src
}

func runPipeline(t *testing.T, ctx context.Context, c *command, tr *batchTracker, loc *catalog.Location, src string) error {
	t.Helper()
	if err := c.stageStaging(ctx, tr, loc, "", src); err != nil {
		return err
	}
	if err := c.stageOrganize(ctx, tr, loc.LocID); err != nil {
		return err
	}
	if err := c.stageFolders(tr, loc); err != nil {
		return err
	}
	if err := c.stageIngest(ctx, tr, loc); err != nil {
		return err
	}
	return c.stageVerify(ctx, tr, loc, false)
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{
		"a.jpg":          []byte("jpeg bytes"),
		"clips/b.mp4":    []byte("video bytes here"),
		"notes/plan.pdf": []byte("pdf bytes"),
	})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, runPipeline(t, ctx, c, tr, loc, src))
	tr.finish()

	// the example scenario: hashed name, other bucket, staging gone
	sum, _, err := content.HashFile(ctx, filepath.Join(src, "a.jpg"))
	require.NoError(t, err)

	rec, err := c.Catalog.GetMedia(layout.MediaImage, sum)
	require.NoError(t, err)
	wantName := loc.UUID8() + "-" + content.Short(sum, 8) + ".jpg"
	assert.Equal(t, wantName, rec.FileName)
	assert.Equal(t, layout.HardwareOther, rec.Hardware())
	assert.True(t, rec.Verified)
	assert.NotNil(t, rec.VerifiedAt)

	base := filepath.Join(c.Config.ArchiveRoot, loc.Dir())
	assert.Equal(t, filepath.Join(base, "photos", "original_other", wantName), rec.FilePath)
	_, err = os.Stat(rec.FilePath)
	assert.NoError(t, err)

	vid, err := c.Catalog.GetMedia(layout.MediaVideo, mustHash(t, filepath.Join(src, "clips", "b.mp4")))
	require.NoError(t, err)
	assert.True(t, vid.Verified)
	assert.Contains(t, vid.FilePath, filepath.Join("videos", "original_other"))

	doc, err := c.Catalog.GetMedia(layout.MediaDocument, mustHash(t, filepath.Join(src, "notes", "plan.pdf")))
	require.NoError(t, err)
	assert.Contains(t, doc.FilePath, filepath.Join(base, "documents"))

	// verification passed, so the per-location staging area is gone
	_, err = os.Stat(layout.StagingDir(c.Config.StagingRoot, loc.LocID))
	assert.True(t, os.IsNotExist(err))

	// tracked batch completed with the right counters
	b, err := c.Catalog.GetBatch(tr.b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, catalog.BatchCompleted, b.Status)
	assert.Equal(t, int64(3), b.TotalFiles)
	assert.Equal(t, int64(3), b.FilesImported)
	assert.Equal(t, int64(0), b.FilesFailed)
	assert.NotNil(t, b.BatchEnd)

	entries, err := c.Catalog.ListLog(b.BatchID)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func mustHash(t *testing.T, path string) string {
	t.Helper()
	sum, _, err := content.HashFile(context.Background(), path)
	require.NoError(t, err)
	return sum
}

func TestContentAddressingDeduplicates(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	// identical bytes under two different names
	src := writeSource(t, t.TempDir(), map[string][]byte{
		"a.jpg":       []byte("same bytes"),
		"copy of.jpg": []byte("same bytes"),
	})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	tr.finish()

	n, err := c.Catalog.CountMedia(layout.MediaImage, loc.LocID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	b, err := c.Catalog.GetBatch(tr.b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.FilesImported)
	assert.Equal(t, int64(1), b.DuplicatesFound)

	var dupLogged bool
	entries, err := c.Catalog.ListLog(tr.b.BatchID)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Status == catalog.LogDuplicate {
			dupLogged = true
		}
	}
	assert.True(t, dupLogged)
}

func TestSecondImportIsAllDuplicates(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("bytes one")})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, runPipeline(t, ctx, c, tr, loc, src))
	tr.finish()

	tr2 := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr2, loc, "", src))
	tr2.finish()

	b, err := c.Catalog.GetBatch(tr2.b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.FilesImported)
	assert.Equal(t, int64(1), b.DuplicatesFound)

	// still exactly one archive file for those bytes
	n, err := c.Catalog.CountMedia(layout.MediaImage, loc.LocID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStagingSkipsJunkExtensions(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{
		"a.jpg":     []byte("fine"),
		"setup.exe": []byte("junk"),
	})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	tr.finish()

	b, err := c.Catalog.GetBatch(tr.b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.TotalFiles)
	assert.Equal(t, int64(1), b.FilesImported)
	assert.Equal(t, int64(1), b.FilesSkipped)
	assert.Equal(t, int64(0), b.FilesFailed)
}

func TestHardlinkSameInode(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("link me")})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	require.NoError(t, c.stageOrganize(ctx, tr, loc.LocID))
	require.NoError(t, c.stageFolders(tr, loc))
	require.NoError(t, c.stageIngest(ctx, tr, loc))
	tr.finish()

	sum := mustHash(t, filepath.Join(src, "a.jpg"))
	rec, err := c.Catalog.GetMedia(layout.MediaImage, sum)
	require.NoError(t, err)

	stagingFile := filepath.Join(layout.StagingDir(c.Config.StagingRoot, loc.LocID), rec.FileName)
	srcStat, err := os.Stat(stagingFile)
	require.NoError(t, err)
	dstStat, err := os.Stat(rec.FilePath)
	require.NoError(t, err)
	// staging root and archive root share t.TempDir's device
	assert.True(t, os.SameFile(srcStat, dstStat), "expected hardlink, got distinct inodes")
}

func TestIngestIsReentrant(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("once")})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	require.NoError(t, c.stageOrganize(ctx, tr, loc.LocID))
	require.NoError(t, c.stageFolders(tr, loc))
	require.NoError(t, c.stageIngest(ctx, tr, loc))
	// second run finds nothing staged and changes nothing
	require.NoError(t, c.stageIngest(ctx, tr, loc))
	tr.finish()

	assert.Equal(t, int64(0), tr.b.FilesFailed)
}

func TestIngestSkipsUnorganizedRecords(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("too soon")})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	// no organize pass: the mover must leave the record in staging
	require.NoError(t, c.stageIngest(ctx, tr, loc))
	tr.finish()

	sum := mustHash(t, filepath.Join(src, "a.jpg"))
	rec, err := c.Catalog.GetMedia(layout.MediaImage, sum)
	require.NoError(t, err)
	assert.Contains(t, rec.FilePath, c.Config.StagingRoot)
}

func TestVerifyGateBlocksCleanup(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("original bytes")})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	require.NoError(t, c.stageOrganize(ctx, tr, loc.LocID))
	require.NoError(t, c.stageFolders(tr, loc))
	require.NoError(t, c.stageIngest(ctx, tr, loc))

	sum := mustHash(t, filepath.Join(src, "a.jpg"))
	rec, err := c.Catalog.GetMedia(layout.MediaImage, sum)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(rec.FilePath, []byte("corrupted!!"), 0644))

	err = c.stageVerify(ctx, tr, loc, false)
	assert.ErrorIs(t, err, errVerificationFailed)
	tr.finish()

	// the gate held: staging is untouched
	_, err = os.Stat(layout.StagingDir(c.Config.StagingRoot, loc.LocID))
	assert.NoError(t, err)

	rec, err = c.Catalog.GetMedia(layout.MediaImage, sum)
	require.NoError(t, err)
	assert.False(t, rec.Verified)
}

func TestVerifyFailsForRecordsStillInStaging(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("only copy")})

	// partial run: staged but never organized or ingested
	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))

	err := c.stageVerify(ctx, tr, loc, false)
	assert.ErrorIs(t, err, errVerificationFailed)
	tr.finish()

	// the staging copy is the only copy; it must survive unverified
	sum := mustHash(t, filepath.Join(src, "a.jpg"))
	rec, err := c.Catalog.GetMedia(layout.MediaImage, sum)
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	_, err = os.Stat(rec.FilePath)
	assert.NoError(t, err)
	_, err = os.Stat(layout.StagingDir(c.Config.StagingRoot, loc.LocID))
	assert.NoError(t, err)

	var notArchived bool
	entries, err := c.Catalog.ListLog(tr.b.BatchID)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Stage == catalog.StageVerify && e.ErrorMessage == "not archived" {
			notArchived = true
		}
	}
	assert.True(t, notArchived)
}

func TestVerifyMissingFile(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("soon gone")})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	require.NoError(t, c.stageOrganize(ctx, tr, loc.LocID))
	require.NoError(t, c.stageFolders(tr, loc))
	require.NoError(t, c.stageIngest(ctx, tr, loc))

	sum := mustHash(t, filepath.Join(src, "a.jpg"))
	rec, err := c.Catalog.GetMedia(layout.MediaImage, sum)
	require.NoError(t, err)
	require.NoError(t, os.Remove(rec.FilePath))
	// the staging hardlink still holds the inode, remove it too so the
	// archived path is genuinely gone
	stagingFile := filepath.Join(layout.StagingDir(c.Config.StagingRoot, loc.LocID), rec.FileName)
	require.NoError(t, os.Remove(stagingFile))

	err = tr.run(ctx, catalog.StageVerify, func(ctx context.Context) error {
		return c.stageVerify(ctx, tr, loc, false)
	})
	assert.ErrorIs(t, err, errVerificationFailed)
	tr.finish()

	b, err := c.Catalog.GetBatch(tr.b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, catalog.BatchPartial, b.Status)
}

func TestVerifyDryRunKeepsStaging(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("dry run")})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	require.NoError(t, c.stageOrganize(ctx, tr, loc.LocID))
	require.NoError(t, c.stageFolders(tr, loc))
	require.NoError(t, c.stageIngest(ctx, tr, loc))
	require.NoError(t, c.stageVerify(ctx, tr, loc, true))
	tr.finish()

	_, err := os.Stat(layout.StagingDir(c.Config.StagingRoot, loc.LocID))
	assert.NoError(t, err, "dry run must not delete staging")
}

func TestFoldersOnlyForPopulatedCategories(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("image only")})

	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, "", src))
	require.NoError(t, c.stageOrganize(ctx, tr, loc.LocID))
	require.NoError(t, c.stageFolders(tr, loc))
	// idempotent: a second run is a no-op
	require.NoError(t, c.stageFolders(tr, loc))
	tr.finish()

	base := filepath.Join(c.Config.ArchiveRoot, loc.Dir())
	_, err := os.Stat(filepath.Join(base, "photos", "original_other"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(base, "videos"))
	assert.True(t, os.IsNotExist(err), "no videos imported, no videos folder")
	_, err = os.Stat(filepath.Join(base, "documents"))
	assert.True(t, os.IsNotExist(err), "no documents imported, no documents folder")
}

func TestSubLocationFilenames(t *testing.T) {
	ctx := context.Background()
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	sub := &catalog.SubLocation{LocID: loc.LocID, Name: "Power Plant"}
	require.NoError(t, c.Catalog.CreateSubLocation(sub))

	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("sub bytes")})
	tr := newTracker(t, c, loc, src)
	require.NoError(t, c.stageStaging(ctx, tr, loc, sub.SubID, src))
	tr.finish()

	sum := mustHash(t, filepath.Join(src, "a.jpg"))
	rec, err := c.Catalog.GetMedia(layout.MediaImage, sum)
	require.NoError(t, err)

	p, err := layout.ParseFilename(rec.FileName)
	require.NoError(t, err)
	assert.Equal(t, content.Short(loc.LocID, 8), p.LocShort)
	assert.Equal(t, content.Short(sub.SubID, 8), p.SubShort)
	assert.Equal(t, content.Short(sum, 8), p.HashShort)
}

func TestCopyPreservingMtime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("copy payload"), 0644))
	past := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, past, past))

	srcStat, err := os.Stat(src)
	require.NoError(t, err)
	require.NoError(t, copyPreservingMtime(src, dst, srcStat))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("copy payload"), data)

	dstStat, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, dstStat.ModTime().Equal(past))
	assert.False(t, os.SameFile(srcStat, dstStat), "copy must be an independent inode")
}

func TestBatchTrackerMarksPartialOnStageError(t *testing.T) {
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	tr := newTracker(t, c, loc, "/src")

	err := tr.run(context.Background(), catalog.StageStaging, func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	tr.finish()

	b, err := c.Catalog.GetBatch(tr.b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, catalog.BatchPartial, b.Status)
	assert.Contains(t, b.ErrorLog, "staging")
}

func TestBatchTrackerCapturesPanicAsFailed(t *testing.T) {
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	tr := newTracker(t, c, loc, "/src")

	err := tr.run(context.Background(), catalog.StageIngest, func(ctx context.Context) error {
		panic("boom")
	})
	assert.Error(t, err)
	tr.finish()

	b, err := c.Catalog.GetBatch(tr.b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, catalog.BatchFailed, b.Status)
	assert.Contains(t, b.ErrorLog, "boom")
}

func TestPipelineCancellation(t *testing.T) {
	c := newTestCommand(t)
	loc := newTestLocation(t, c)
	src := writeSource(t, t.TempDir(), map[string][]byte{"a.jpg": []byte("never staged")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := newTracker(t, c, loc, src)
	err := tr.run(ctx, catalog.StageStaging, func(ctx context.Context) error {
		return c.stageStaging(ctx, tr, loc, "", src)
	})
	assert.ErrorIs(t, err, context.Canceled)
	tr.finish()

	b, err := c.Catalog.GetBatch(tr.b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, catalog.BatchPartial, b.Status)
}
