package artifacts

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) billy.Filesystem {
	t.Helper()
	root := memfs.New()
	require.NoError(t, root.MkdirAll("certificates", 0o755))
	fs, err := root.Chroot("certificates")
	require.NoError(t, err)
	return fs
}

func TestStoreSaveOpenStat(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)
	store := NewStore(fs)

	obj, err := store.Save(ctx, "CERT-ev1-01ABC.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	require.Equal(t, "CERT-ev1-01ABC.pdf", obj.Name)
	require.Equal(t, "application/pdf", obj.ContentType)
	require.EqualValues(t, 8, obj.Size)

	rc, opened, err := store.Open(ctx, "CERT-ev1-01ABC.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7", string(body))
	require.Equal(t, obj.Size, opened.Size)

	entries, err := fs.ReadDir("")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not remain after save")
}

func TestStoreSaveNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestFS(t))

	_, err := store.Save(ctx, "CERT-a.html", []byte("<html>one</html>"))
	require.NoError(t, err)

	_, err = store.Save(ctx, "CERT-a.html", []byte("<html>two</html>"))
	require.ErrorIs(t, err, ErrExists)

	rc, _, err := store.Open(ctx, "CERT-a.html")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	require.Equal(t, "<html>one</html>", string(body))
}

func TestStoreRejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestFS(t))

	for _, name := range []string{"../escape.pdf", "a/b.pdf", "", ".hidden", "with space.pdf"} {
		_, err := store.Save(ctx, name, []byte("x"))
		require.ErrorIs(t, err, ErrInvalidName, name)
		_, err = store.Stat(ctx, name)
		require.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestFS(t))

	_, err := store.Save(ctx, "CERT-b.html", []byte("<html></html>"))
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, "CERT-b.html"))

	_, err = store.Stat(ctx, "CERT-b.html")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Remove(ctx, "CERT-b.html"), "removing a missing artifact is a no-op")
	require.ErrorIs(t, store.Remove(ctx, "../CERT-b.html"), ErrInvalidName)
}

func TestStoreFindPrefersFirstExtension(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)
	require.NoError(t, util.WriteFile(fs, "CERT-x.html", []byte("<html></html>"), 0o644))
	store := NewStore(fs)

	obj, err := store.Find(ctx, "CERT-x", ".pdf", ".html")
	require.NoError(t, err)
	require.Equal(t, "CERT-x.html", obj.Name)
	require.Equal(t, "text/html; charset=utf-8", obj.ContentType)

	_, err = store.Find(ctx, "CERT-missing", ".pdf", ".html")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreEnsureWritable(t *testing.T) {
	fs := newTestFS(t)
	store := NewStore(fs)
	require.NoError(t, store.EnsureWritable(context.Background()))

	entries, err := fs.ReadDir("")
	require.NoError(t, err)
	require.Empty(t, entries, "probe file must be removed")
}

func TestContentType(t *testing.T) {
	require.Equal(t, "application/pdf", ContentType("a.PDF"))
	require.Equal(t, "text/html; charset=utf-8", ContentType("a.html"))
	require.Equal(t, "application/octet-stream", ContentType("a.bin"))
}

func TestNewOSStoreCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/certificates"
	store, err := NewOSStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.EnsureWritable(context.Background()))
}
