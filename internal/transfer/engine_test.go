package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/portico-labs/portico/internal/browser"
	"github.com/portico-labs/portico/internal/config"
	"github.com/portico-labs/portico/internal/diskspace"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/localfs"
	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/session"
)

type fakeTabs struct {
	mu   sync.Mutex
	tabs map[string]session.TabSummary
}

func (f *fakeTabs) Tab(key string) (session.TabSummary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[key]
	return tab, ok
}

type transferCall struct {
	local     string
	remote    string
	overwrite bool
}

// fakeRemoteSession scripts failures per remote path; each scripted error is
// consumed by one attempt so a retry can succeed.
type fakeRemoteSession struct {
	mu          sync.Mutex
	initialDir  string
	listings    map[string][]protocol.FileEntry
	listCalls   []string
	uploads     []transferCall
	downloads   []transferCall
	uploadErrs  map[string][]error
	uploadWait  time.Duration
	madeDirs    []string
	makeDirErrs map[string]error
}

func (f *fakeRemoteSession) ID() string         { return "sub-1" }
func (f *fakeRemoteSession) InitialDir() string { return f.initialDir }

func (f *fakeRemoteSession) List(ctx context.Context, target string) (*protocol.DirListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, target)
	entries := append([]protocol.FileEntry(nil), f.listings[target]...)
	return &protocol.DirListing{CWD: target, Entries: entries}, nil
}

func (f *fakeRemoteSession) MakeFile(ctx context.Context, target string) error { return nil }

func (f *fakeRemoteSession) MakeDir(ctx context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.makeDirErrs[target]; ok {
		return err
	}
	f.madeDirs = append(f.madeDirs, target)
	return nil
}

func (f *fakeRemoteSession) Rename(ctx context.Context, oldPath, newPath string) error { return nil }

func (f *fakeRemoteSession) Delete(ctx context.Context, target string, recursive bool) error {
	return nil
}

func (f *fakeRemoteSession) Upload(ctx context.Context, localPath, remotePath string, overwrite bool) error {
	if f.uploadWait > 0 {
		time.Sleep(f.uploadWait)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, transferCall{local: localPath, remote: remotePath, overwrite: overwrite})
	if errs := f.uploadErrs[remotePath]; len(errs) > 0 {
		f.uploadErrs[remotePath] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeRemoteSession) Download(ctx context.Context, remotePath, localPath string, overwrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, transferCall{local: localPath, remote: remotePath, overwrite: overwrite})
	return nil
}

func (f *fakeRemoteSession) Close(ctx context.Context) error { return nil }

func (f *fakeRemoteSession) uploadCalls() []transferCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transferCall(nil), f.uploads...)
}

func (f *fakeRemoteSession) downloadCalls() []transferCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transferCall(nil), f.downloads...)
}

func (f *fakeRemoteSession) madeDirCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.madeDirs...)
}

func (f *fakeRemoteSession) listCount(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.listCalls {
		if c == target {
			n++
		}
	}
	return n
}

func (f *fakeRemoteSession) scriptUploadErr(remotePath string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErrs == nil {
		f.uploadErrs = map[string][]error{}
	}
	f.uploadErrs[remotePath] = errs
}

type fakeBackend struct {
	session *fakeRemoteSession
}

func (f *fakeBackend) OpenTransfer(ctx context.Context, shellSessionID string) (protocol.TransferSession, error) {
	return f.session, nil
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (o *statusRecorder) Notify(reason string) {}

func (o *statusRecorder) Status(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, message)
}

func (o *statusRecorder) hasStatusContaining(substr string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.statuses {
		if strings.Contains(strings.ToLower(s), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

const remoteHome = "/srv/data"

type engineFixture struct {
	e        *Engine
	b        *browser.Browser
	bus      *events.EventBus
	cfg      *config.Config
	session  *fakeRemoteSession
	obs      *statusRecorder
	localDir string
}

// newEngineFixture opens a browser for a connected tab with the real local
// filesystem service on the local side, then points the local pane at a
// fresh temp directory.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ts := &fakeRemoteSession{initialDir: remoteHome}
	tabs := &fakeTabs{tabs: map[string]session.TabSummary{
		"tab-1": {Key: "tab-1", Kind: session.TabShell, SessionID: "sess-1", State: session.StateConnected, Title: "devbox"},
	}}
	obs := &statusRecorder{}
	bus := events.NewEventBus(64)
	cfg := config.New()

	b := browser.NewBrowser(bus, tabs, &fakeBackend{session: ts}, localfs.NewService(), obs)
	t.Cleanup(b.Stop)
	e := NewEngine(bus, b, cfg, obs)
	t.Cleanup(e.Stop)

	if err := b.OpenFor(context.Background(), "tab-1"); err != nil {
		t.Fatalf("OpenFor() error: %v", err)
	}

	dir := t.TempDir()
	if err := b.Navigate(context.Background(), browser.SideLocal, dir); err != nil {
		t.Fatalf("Navigate(local, %q) error: %v", dir, err)
	}

	return &engineFixture{e: e, b: b, bus: bus, cfg: cfg, session: ts, obs: obs, localDir: dir}
}

func (f *engineFixture) writeLocalFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.localDir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile(%q) error: %v", p, err)
	}
	return p
}

// refreshLocal re-lists the local pane after files were written to disk.
func (f *engineFixture) refreshLocal(t *testing.T) {
	t.Helper()
	if err := f.b.Refresh(context.Background(), browser.SideLocal); err != nil {
		t.Fatalf("Refresh(local) error: %v", err)
	}
}

func (f *engineFixture) selectLocal(t *testing.T, p string) {
	t.Helper()
	if err := f.b.Select(browser.SideLocal, p); err != nil {
		t.Fatalf("Select(local, %q) error: %v", p, err)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSingleUploadHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := f.writeLocalFile(t, "data.bin", "payload")
	f.refreshLocal(t)
	f.selectLocal(t, p)
	listsBefore := f.session.listCount(remoteHome)

	if err := f.e.SingleTransfer(ctx, events.DirectionUpload); err != nil {
		t.Fatalf("SingleTransfer() error: %v", err)
	}

	uploads := f.session.uploadCalls()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploads))
	}
	want := transferCall{local: p, remote: remoteHome + "/data.bin", overwrite: false}
	if uploads[0] != want {
		t.Errorf("upload = %+v, want %+v", uploads[0], want)
	}
	if f.e.InFlight() {
		t.Error("transfer still tracked after completion")
	}
	if !f.obs.hasStatusContaining("Uploaded") {
		t.Errorf("statuses = %v, want an upload confirmation", f.obs.statuses)
	}
	if got := f.session.listCount(remoteHome); got <= listsBefore {
		t.Errorf("remote list count = %d, want a refresh after the transfer", got)
	}
}

func TestSingleDownloadHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	size := int64(100)
	f.session.mu.Lock()
	f.session.listings = map[string][]protocol.FileEntry{
		remoteHome: {{Name: "report.pdf", Path: remoteHome + "/report.pdf", Kind: protocol.KindFile, Size: &size}},
	}
	f.session.mu.Unlock()
	if err := f.b.Refresh(ctx, browser.SideRemote); err != nil {
		t.Fatalf("Refresh(remote) error: %v", err)
	}
	if err := f.b.Select(browser.SideRemote, remoteHome+"/report.pdf"); err != nil {
		t.Fatalf("Select(remote) error: %v", err)
	}

	if err := f.e.SingleTransfer(ctx, events.DirectionDownload); err != nil {
		t.Fatalf("SingleTransfer() error: %v", err)
	}

	downloads := f.session.downloadCalls()
	if len(downloads) != 1 {
		t.Fatalf("downloads = %d, want 1", len(downloads))
	}
	want := transferCall{local: filepath.Join(f.localDir, "report.pdf"), remote: remoteHome + "/report.pdf", overwrite: false}
	if downloads[0] != want {
		t.Errorf("download = %+v, want %+v", downloads[0], want)
	}
	if !f.obs.hasStatusContaining("Downloaded") {
		t.Errorf("statuses = %v, want a download confirmation", f.obs.statuses)
	}
}

func TestSingleDownloadRejectsHostileRemoteName(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	size := int64(10)
	f.session.mu.Lock()
	f.session.listings = map[string][]protocol.FileEntry{
		remoteHome: {{Name: "../outside.sh", Path: remoteHome + "/escape", Kind: protocol.KindFile, Size: &size}},
	}
	f.session.mu.Unlock()
	if err := f.b.Refresh(ctx, browser.SideRemote); err != nil {
		t.Fatalf("Refresh(remote) error: %v", err)
	}
	if err := f.b.Select(browser.SideRemote, remoteHome+"/escape"); err != nil {
		t.Fatalf("Select(remote) error: %v", err)
	}

	err := f.e.SingleTransfer(ctx, events.DirectionDownload)
	if protocol.CodeOf(err) != protocol.CodeInvalidName {
		t.Fatalf("code = %q, want %q", protocol.CodeOf(err), protocol.CodeInvalidName)
	}
	if calls := f.session.downloadCalls(); len(calls) != 0 {
		t.Errorf("downloads = %d, want none", len(calls))
	}
}

func TestSingleTransferRequiresBrowser(t *testing.T) {
	ts := &fakeRemoteSession{initialDir: remoteHome}
	tabs := &fakeTabs{tabs: map[string]session.TabSummary{}}
	bus := events.NewEventBus(64)
	b := browser.NewBrowser(bus, tabs, &fakeBackend{session: ts}, localfs.NewService(), nil)
	t.Cleanup(b.Stop)
	e := NewEngine(bus, b, config.New(), nil)
	t.Cleanup(e.Stop)

	err := e.SingleTransfer(context.Background(), events.DirectionUpload)
	if protocol.CodeOf(err) != protocol.CodeSessionClosed {
		t.Errorf("code = %q, want %q", protocol.CodeOf(err), protocol.CodeSessionClosed)
	}
}

func TestSingleTransferRequiresSelection(t *testing.T) {
	f := newEngineFixture(t)

	err := f.e.SingleTransfer(context.Background(), events.DirectionUpload)
	if protocol.CodeOf(err) != protocol.CodeNotFound {
		t.Errorf("code = %q, want %q", protocol.CodeOf(err), protocol.CodeNotFound)
	}
	if !f.obs.hasStatusContaining("Select a file") {
		t.Errorf("statuses = %v, want a selection hint", f.obs.statuses)
	}
}

func TestSingleTransferRejectsDirectory(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	sub := filepath.Join(f.localDir, "subdir")
	if err := os.Mkdir(sub, 0o700); err != nil {
		t.Fatalf("Mkdir() error: %v", err)
	}
	f.refreshLocal(t)
	f.selectLocal(t, sub)

	err := f.e.SingleTransfer(ctx, events.DirectionUpload)
	if protocol.CodeOf(err) != protocol.CodeInvalidName {
		t.Errorf("code = %q, want %q", protocol.CodeOf(err), protocol.CodeInvalidName)
	}
	if len(f.session.uploadCalls()) != 0 {
		t.Error("directory selection must not start an upload")
	}
}

func TestSingleTransferOverwriteAccepted(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := f.writeLocalFile(t, "data.bin", "payload")
	f.refreshLocal(t)
	f.selectLocal(t, p)
	remotePath := remoteHome + "/data.bin"
	f.session.scriptUploadErr(remotePath,
		protocol.Errorf(protocol.CodeAlreadyExists, "sftp.upload", remotePath, "exists"))

	done := make(chan error, 1)
	go func() { done <- f.e.SingleTransfer(ctx, events.DirectionUpload) }()

	waitUntil(t, time.Second, "overwrite confirm", func() bool {
		_, ok := f.b.PendingConfirm()
		return ok
	})
	confirm, _ := f.b.PendingConfirm()
	if confirm.Side != browser.SideRemote {
		t.Errorf("confirm side = %q, want %q", confirm.Side, browser.SideRemote)
	}
	if !strings.Contains(confirm.Message, "already exists") {
		t.Errorf("confirm message = %q, want an overwrite prompt", confirm.Message)
	}
	f.b.ResolveConfirm(true)

	if err := <-done; err != nil {
		t.Fatalf("SingleTransfer() error: %v", err)
	}
	uploads := f.session.uploadCalls()
	if len(uploads) != 2 {
		t.Fatalf("uploads = %d, want first attempt plus one retry", len(uploads))
	}
	if uploads[0].overwrite || !uploads[1].overwrite {
		t.Errorf("overwrite flags = %v/%v, want false then true", uploads[0].overwrite, uploads[1].overwrite)
	}
	if !f.obs.hasStatusContaining("Uploaded") {
		t.Errorf("statuses = %v, want an upload confirmation", f.obs.statuses)
	}
}

func TestSingleTransferOverwriteDeclinedSkips(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := f.writeLocalFile(t, "data.bin", "payload")
	f.refreshLocal(t)
	f.selectLocal(t, p)
	remotePath := remoteHome + "/data.bin"
	f.session.scriptUploadErr(remotePath,
		protocol.Errorf(protocol.CodeAlreadyExists, "sftp.upload", remotePath, "exists"))

	done := make(chan error, 1)
	go func() { done <- f.e.SingleTransfer(ctx, events.DirectionUpload) }()

	waitUntil(t, time.Second, "overwrite confirm", func() bool {
		_, ok := f.b.PendingConfirm()
		return ok
	})
	f.b.ResolveConfirm(false)

	if err := <-done; err != nil {
		t.Fatalf("SingleTransfer() after decline = %v, want nil", err)
	}
	if got := len(f.session.uploadCalls()); got != 1 {
		t.Errorf("uploads = %d, want no retry after decline", got)
	}
	if !f.obs.hasStatusContaining("Skipped") {
		t.Errorf("statuses = %v, want a skip notice", f.obs.statuses)
	}
}

func TestSecondTransferRefusedWhileInFlight(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := f.writeLocalFile(t, "data.bin", "payload")
	f.refreshLocal(t)
	f.selectLocal(t, p)
	f.session.uploadWait = 150 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- f.e.SingleTransfer(ctx, events.DirectionUpload) }()
	waitUntil(t, time.Second, "first transfer in flight", f.e.InFlight)

	err := f.e.SingleTransfer(ctx, events.DirectionUpload)
	if protocol.CodeOf(err) != protocol.CodeInternal {
		t.Errorf("second transfer code = %q, want %q", protocol.CodeOf(err), protocol.CodeInternal)
	}
	if !f.obs.hasStatusContaining("already in progress") {
		t.Errorf("statuses = %v, want a busy notice", f.obs.statuses)
	}

	if err := <-done; err != nil {
		t.Fatalf("first transfer error: %v", err)
	}
	if f.e.InFlight() {
		t.Error("transfer slot not released")
	}
}

func TestProgressEventsDriveActiveView(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := f.writeLocalFile(t, "data.bin", "payload")
	f.refreshLocal(t)
	f.selectLocal(t, p)
	f.session.uploadWait = 200 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- f.e.SingleTransfer(ctx, events.DirectionUpload) }()
	waitUntil(t, time.Second, "transfer in flight", f.e.InFlight)

	total := int64(1000)
	f.bus.PublishTransferProgress("sub-1", events.DirectionUpload, events.PhaseProgress, p, remoteHome+"/data.bin", 500, &total, nil)

	waitUntil(t, time.Second, "progress to reach the view", func() bool {
		view, ok := f.e.Active()
		if !ok {
			return false
		}
		pct, defined := view.Percent()
		return defined && pct == 50
	})

	if err := <-done; err != nil {
		t.Fatalf("SingleTransfer() error: %v", err)
	}
}

func TestDownloadPreflightRejectsOversizedFile(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// 200TB claimed size should exceed any test machine's free space.
	size := int64(200 * 1024 * 1024 * 1024 * 1024)
	f.session.mu.Lock()
	f.session.listings = map[string][]protocol.FileEntry{
		remoteHome: {{Name: "huge.bin", Path: remoteHome + "/huge.bin", Kind: protocol.KindFile, Size: &size}},
	}
	f.session.mu.Unlock()
	if err := f.b.Refresh(ctx, browser.SideRemote); err != nil {
		t.Fatalf("Refresh(remote) error: %v", err)
	}
	if err := f.b.Select(browser.SideRemote, remoteHome+"/huge.bin"); err != nil {
		t.Fatalf("Select(remote) error: %v", err)
	}

	err := f.e.SingleTransfer(ctx, events.DirectionDownload)
	if !diskspace.IsInsufficientSpaceError(err) {
		t.Fatalf("SingleTransfer() error = %v, want insufficient space", err)
	}
	if got := len(f.session.downloadCalls()); got != 0 {
		t.Errorf("downloads = %d, want the preflight to block the transfer", got)
	}
	if !f.obs.hasStatusContaining("insufficient disk space") {
		t.Errorf("statuses = %v, want the preflight failure surfaced", f.obs.statuses)
	}

	// With the preflight disabled the same download goes through.
	f.cfg.Transfers.CheckDiskSpace = false
	if err := f.e.SingleTransfer(ctx, events.DirectionDownload); err != nil {
		t.Fatalf("SingleTransfer() with preflight disabled error: %v", err)
	}
	if got := len(f.session.downloadCalls()); got != 1 {
		t.Errorf("downloads = %d, want 1 once the preflight is disabled", got)
	}
}

func TestBatchUploadRecreatesTree(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	drop := t.TempDir()
	proj := filepath.Join(drop, "proj")
	if err := os.MkdirAll(filepath.Join(proj, "sub"), 0o700); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(proj, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile() error: %v", err)
		}
	}

	if err := f.e.BatchUpload(ctx, []string{proj}); err != nil {
		t.Fatalf("BatchUpload() error: %v", err)
	}

	wantDirs := []string{remoteHome + "/proj", remoteHome + "/proj/sub"}
	gotDirs := f.session.madeDirCalls()
	if len(gotDirs) != len(wantDirs) {
		t.Fatalf("made dirs = %v, want %v", gotDirs, wantDirs)
	}
	for i := range wantDirs {
		if gotDirs[i] != wantDirs[i] {
			t.Fatalf("made dirs = %v, want %v", gotDirs, wantDirs)
		}
	}

	uploads := f.session.uploadCalls()
	if len(uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(uploads))
	}
	if uploads[0].remote != remoteHome+"/proj/a.txt" || uploads[1].remote != remoteHome+"/proj/b.txt" {
		t.Errorf("upload targets = %q, %q", uploads[0].remote, uploads[1].remote)
	}

	if !f.obs.hasStatusContaining("Uploaded 2 files, created 2 folders, skipped 0, 0 errors") {
		t.Errorf("statuses = %v, want the batch summary", f.obs.statuses)
	}
	if f.e.InFlight() {
		t.Error("transfer still tracked after the batch")
	}
}

func TestBatchUploadExistingDirCountsAsSuccess(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	drop := t.TempDir()
	proj := filepath.Join(drop, "proj")
	if err := os.Mkdir(proj, 0o700); err != nil {
		t.Fatalf("Mkdir() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(proj, "a.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	f.session.mu.Lock()
	f.session.makeDirErrs = map[string]error{
		remoteHome + "/proj": protocol.Errorf(protocol.CodeAlreadyExists, "sftp.mkdir", remoteHome+"/proj", "exists"),
	}
	f.session.mu.Unlock()

	if err := f.e.BatchUpload(ctx, []string{proj}); err != nil {
		t.Fatalf("BatchUpload() error: %v", err)
	}

	if !f.obs.hasStatusContaining("Uploaded 1 files, created 0 folders, skipped 0, 0 errors") {
		t.Errorf("statuses = %v, want an existing dir counted as success, not created", f.obs.statuses)
	}
}

func TestBatchUploadSessionClosedAborts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	drop := t.TempDir()
	proj := filepath.Join(drop, "proj")
	if err := os.Mkdir(proj, 0o700); err != nil {
		t.Fatalf("Mkdir() error: %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(proj, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile() error: %v", err)
		}
	}
	f.session.scriptUploadErr(remoteHome+"/proj/b.txt",
		protocol.Errorf(protocol.CodeSessionClosed, "sftp.upload", remoteHome+"/proj/b.txt", "session closed"))

	err := f.e.BatchUpload(ctx, []string{proj})
	if !protocol.IsSessionClosed(err) {
		t.Fatalf("BatchUpload() error = %v, want session closed", err)
	}

	if !f.obs.hasStatusContaining("Uploaded 1 files, created 1 folders, skipped 0, 0 errors") {
		t.Errorf("statuses = %v, want the partial summary", f.obs.statuses)
	}
	if f.e.InFlight() {
		t.Error("transfer still tracked after the abort")
	}
}

func TestBatchUploadCountsItemErrors(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p1 := f.writeLocalFile(t, "f1.txt", "x")
	p2 := f.writeLocalFile(t, "f2.txt", "x")
	f.session.scriptUploadErr(remoteHome+"/f2.txt",
		protocol.Errorf(protocol.CodePermission, "sftp.upload", remoteHome+"/f2.txt", "denied"))

	if err := f.e.BatchUpload(ctx, []string{p1, p2}); err != nil {
		t.Fatalf("BatchUpload() error = %v, want per-item errors to be absorbed", err)
	}

	if !f.obs.hasStatusContaining("Uploaded 1 files, created 0 folders, skipped 0, 1 errors") {
		t.Errorf("statuses = %v, want one uploaded and one error", f.obs.statuses)
	}
}

func TestBatchUploadPerFileOverwriteDecline(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := f.writeLocalFile(t, "f1.txt", "x")
	f.session.scriptUploadErr(remoteHome+"/f1.txt",
		protocol.Errorf(protocol.CodeAlreadyExists, "sftp.upload", remoteHome+"/f1.txt", "exists"))

	done := make(chan error, 1)
	go func() { done <- f.e.BatchUpload(ctx, []string{p}) }()

	waitUntil(t, time.Second, "overwrite confirm", func() bool {
		_, ok := f.b.PendingConfirm()
		return ok
	})
	f.b.ResolveConfirm(false)

	if err := <-done; err != nil {
		t.Fatalf("BatchUpload() error: %v", err)
	}
	if !f.obs.hasStatusContaining("Uploaded 0 files, created 0 folders, skipped 1, 0 errors") {
		t.Errorf("statuses = %v, want the declined file counted as skipped", f.obs.statuses)
	}
}

func TestBatchUploadDepthCapAborts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.cfg.Transfers.MaxBatchDepth = 1

	drop := t.TempDir()
	proj := filepath.Join(drop, "proj")
	if err := os.MkdirAll(filepath.Join(proj, "sub"), 0o700); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(proj, "sub", "deep.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	err := f.e.BatchUpload(ctx, []string{proj})
	if !errors.Is(err, localfs.ErrMaxDepthExceeded) {
		t.Fatalf("BatchUpload() error = %v, want the depth cap", err)
	}
	if protocol.CodeOf(err) != protocol.CodeInternal {
		t.Errorf("code = %q, want %q", protocol.CodeOf(err), protocol.CodeInternal)
	}
	if got := len(f.session.uploadCalls()); got != 0 {
		t.Errorf("uploads = %d, want none once the cap trips", got)
	}
}

func TestBatchUploadItemCapAborts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.cfg.Transfers.MaxBatchItems = 2

	drop := t.TempDir()
	proj := filepath.Join(drop, "proj")
	if err := os.Mkdir(proj, 0o700); err != nil {
		t.Fatalf("Mkdir() error: %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(proj, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile() error: %v", err)
		}
	}

	err := f.e.BatchUpload(ctx, []string{proj})
	if !errors.Is(err, localfs.ErrMaxItemsExceeded) {
		t.Fatalf("BatchUpload() error = %v, want the item cap", err)
	}
	if got := len(f.session.uploadCalls()); got != 0 {
		t.Errorf("uploads = %d, want none once the cap trips", got)
	}
}

func TestBatchUploadEmptyPathsIsNoOp(t *testing.T) {
	f := newEngineFixture(t)

	if err := f.e.BatchUpload(context.Background(), nil); err != nil {
		t.Fatalf("BatchUpload(nil) error: %v", err)
	}
	if f.e.InFlight() {
		t.Error("empty batch must not claim the transfer slot")
	}
}
