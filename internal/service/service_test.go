package service_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/FileVault/internal/auth"
	"github.com/PaulBabatuyi/FileVault/internal/database"
	"github.com/PaulBabatuyi/FileVault/internal/observability"
	"github.com/PaulBabatuyi/FileVault/internal/service"
	"github.com/PaulBabatuyi/FileVault/internal/storage"
	"github.com/PaulBabatuyi/FileVault/internal/worker"
)

const (
	aliceToken = "tok-alice"
	bobToken   = "tok-bob"
)

type env struct {
	svc     *service.Service
	store   *database.MemoryStore
	bytes   *storage.MemoryStore
	creds   *auth.MemoryStore
	metrics *observability.Metrics
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store:   database.NewMemoryStore(),
		bytes:   storage.NewMemoryStore(),
		creds:   auth.NewMemoryStore(),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	e.creds.Put(aliceToken, "alice")
	e.creds.Put(bobToken, "bob")
	e.svc = service.New(e.creds, e.store, e.bytes, e.store, zap.NewNop(), e.metrics, 5)
	return e
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func pngData(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadFolder(t *testing.T) {
	e := newEnv(t)

	file, err := e.svc.Upload(context.Background(), aliceToken, service.UploadRequest{
		Name: "Photos",
		Type: "folder",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, file.ID)
	assert.Equal(t, "alice", file.OwnerID)
	assert.Equal(t, database.KindFolder, file.Kind)
	assert.Equal(t, database.RootParent, file.ParentID)
	assert.Empty(t, file.StorageRef, "folders never carry a storage ref")
	assert.False(t, file.IsPublic)
}

func TestUploadValidationOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Identity comes first, even when everything else is wrong too.
	_, err := e.svc.Upload(ctx, "", service.UploadRequest{})
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = e.svc.Upload(ctx, "bad-token", service.UploadRequest{Name: "a"})
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = e.svc.Upload(ctx, aliceToken, service.UploadRequest{Type: "bogus"})
	requireValidation(t, err, "Missing name")

	_, err = e.svc.Upload(ctx, aliceToken, service.UploadRequest{Name: "a", Type: "bogus"})
	requireValidation(t, err, "Missing type")

	_, err = e.svc.Upload(ctx, aliceToken, service.UploadRequest{Name: "a", Type: "file"})
	requireValidation(t, err, "Missing data")

	n, err := e.store.CountFiles(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rejected requests must not persist records")
}

func requireValidation(t *testing.T, err error, reason string) {
	t.Helper()

	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, reason, verr.Reason)
}

func TestUploadParentChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "a.txt", Type: "file", Data: b64("x"), ParentID: "missing-parent",
	})
	requireValidation(t, err, "Parent not found")

	plain, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "notes.txt", Type: "file", Data: b64("x"),
	})
	require.NoError(t, err)

	_, err = e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "a.txt", Type: "file", Data: b64("x"), ParentID: plain.ID,
	})
	requireValidation(t, err, "Parent is not a folder")

	n, err := e.store.CountFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the valid upload persists")
}

func TestUploadFilePersistsBytesAndMetadata(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	file, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "notes.txt", Type: "file", Data: b64("hello world"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, file.StorageRef)

	data, err := e.bytes.Read(file.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)

	assert.Empty(t, e.store.Jobs(), "plain files do not hit the pipeline")
}

func TestUploadImageEnqueuesExactlyOneJob(t *testing.T) {
	e := newEnv(t)

	file, err := e.svc.Upload(context.Background(), aliceToken, service.UploadRequest{
		Name: "a.png", Type: "image", Data: base64.StdEncoding.EncodeToString(pngData(t, 8, 8)),
	})
	require.NoError(t, err)

	jobs := e.store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, file.ID, jobs[0].FileID)
	assert.Equal(t, "alice", jobs[0].OwnerID)
	assert.Equal(t, database.JobPending, jobs[0].Status)
}

func TestUploadInvalidBase64(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Upload(context.Background(), aliceToken, service.UploadRequest{
		Name: "a.txt", Type: "file", Data: "%%% not base64 %%%",
	})
	requireValidation(t, err, "Invalid data")

	n, _ := e.store.CountFiles(context.Background())
	assert.Zero(t, n)
}

type failingByteStore struct{ storage.ByteStore }

func (f failingByteStore) Write(string, []byte) error {
	return errors.New("disk full")
}

func TestUploadByteFailureLeavesNoMetadata(t *testing.T) {
	e := newEnv(t)
	svc := service.New(e.creds, e.store, failingByteStore{e.bytes}, e.store,
		zap.NewNop(), e.metrics, 5)

	_, err := svc.Upload(context.Background(), aliceToken, service.UploadRequest{
		Name: "a.txt", Type: "file", Data: b64("x"),
	})

	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)

	n, _ := e.store.CountFiles(context.Background())
	assert.Zero(t, n, "metadata commit must follow byte persistence")
	assert.Empty(t, e.store.Jobs())
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, string, string) error {
	return errors.New("queue unavailable")
}

func TestUploadSucceedsWhenEnqueueFails(t *testing.T) {
	e := newEnv(t)
	svc := service.New(e.creds, e.store, e.bytes, failingQueue{},
		zap.NewNop(), e.metrics, 5)

	file, err := svc.Upload(context.Background(), aliceToken, service.UploadRequest{
		Name: "a.png", Type: "image", Data: base64.StdEncoding.EncodeToString(pngData(t, 8, 8)),
	})
	require.NoError(t, err, "the file exists; only derivatives are delayed")
	assert.NotEmpty(t, file.ID)
}

func TestGetOneAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	private, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "secret.txt", Type: "file", Data: b64("x"),
	})
	require.NoError(t, err)

	// Owner reads fine.
	got, err := e.svc.GetOne(ctx, aliceToken, private.ID)
	require.NoError(t, err)
	assert.Equal(t, private.ID, got.ID)

	// Another user's private file is indistinguishable from absence,
	// even with a perfectly valid token.
	_, err = e.svc.GetOne(ctx, bobToken, private.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	// No token at all is Unauthorized on this path.
	_, err = e.svc.GetOne(ctx, "", private.ID)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	// Publishing opens the read branch to anyone authenticated.
	_, err = e.svc.Publish(ctx, aliceToken, private.ID)
	require.NoError(t, err)
	got, err = e.svc.GetOne(ctx, bobToken, private.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPublic)
}

func TestPublishUnpublishIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	file, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "a.txt", Type: "file", Data: b64("x"),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := e.svc.Publish(ctx, aliceToken, file.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPublic)
	}

	for i := 0; i < 2; i++ {
		got, err := e.svc.Unpublish(ctx, aliceToken, file.ID)
		require.NoError(t, err)
		assert.False(t, got.IsPublic)
	}
}

func TestPublishForeignFileNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	file, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "a.txt", Type: "file", Data: b64("x"),
	})
	require.NoError(t, err)

	_, err = e.svc.Publish(ctx, bobToken, file.ID)
	assert.ErrorIs(t, err, database.ErrNotFound, "not Unauthorized: existence stays hidden")

	_, err = e.svc.Unpublish(ctx, bobToken, file.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestListPagination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
			Name: "f", Type: "file", Data: b64("x"),
		})
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	var sizes []int
	for page := 0; ; page++ {
		files, err := e.svc.List(ctx, aliceToken, "", page)
		require.NoError(t, err)
		if len(files) == 0 {
			break
		}
		sizes = append(sizes, len(files))
		for _, f := range files {
			assert.False(t, seen[f.ID], "page %d repeats record %s", page, f.ID)
			seen[f.ID] = true
		}
	}
	assert.Equal(t, []int{5, 5, 2}, sizes)
	assert.Len(t, seen, 12, "no record skipped")

	// Same page, same answer.
	first, err := e.svc.List(ctx, aliceToken, "", 0)
	require.NoError(t, err)
	again, err := e.svc.List(ctx, aliceToken, "", 0)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// Out of range is an empty page, never an error.
	far, err := e.svc.List(ctx, aliceToken, "", 99)
	require.NoError(t, err)
	assert.Empty(t, far)
}

func TestListScopedToOwnerAndParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{Name: "Photos", Type: "folder"})
	require.NoError(t, err)
	inFolder, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "a.txt", Type: "file", Data: b64("x"), ParentID: folder.ID,
	})
	require.NoError(t, err)

	files, err := e.svc.List(ctx, aliceToken, folder.ID, 0)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, inFolder.ID, files[0].ID)

	// Bob sees none of it.
	files, err = e.svc.List(ctx, bobToken, folder.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, files)

	// A parent id that matches nothing, malformed included, is just an
	// empty page.
	files, err = e.svc.List(ctx, aliceToken, "###not-an-id###", 0)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGetContent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{Name: "Photos", Type: "folder"})
	require.NoError(t, err)

	_, err = e.svc.GetContent(ctx, aliceToken, folder.ID, 0)
	requireValidation(t, err, "A folder doesn't have content")

	private, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "notes.txt", Type: "file", Data: b64("hello"),
	})
	require.NoError(t, err)

	// Private content: owner yes, anyone else (or nobody) no.
	content, err := e.svc.GetContent(ctx, aliceToken, private.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content.Data)
	assert.Contains(t, content.MIME, "text/plain")

	_, err = e.svc.GetContent(ctx, bobToken, private.ID, 0)
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = e.svc.GetContent(ctx, "", private.ID, 0)
	assert.ErrorIs(t, err, database.ErrNotFound, "anonymous readers get the public branch only")

	// Public content is readable with no identity at all.
	_, err = e.svc.Publish(ctx, aliceToken, private.ID)
	require.NoError(t, err)
	content, err = e.svc.GetContent(ctx, "", private.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content.Data)
}

func TestDerivativeWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	img, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{
		Name: "photo.png", Type: "image",
		Data: base64.StdEncoding.EncodeToString(pngData(t, 400, 300)),
	})
	require.NoError(t, err)

	// Before the pipeline runs, the derivative does not exist and the
	// read does not wait for it.
	_, err = e.svc.GetContent(ctx, aliceToken, img.ID, 100)
	assert.ErrorIs(t, err, database.ErrNotFound)

	runner := worker.NewRunner(worker.RunnerConfig{
		PollInterval: time.Millisecond,
		BaseBackoff:  time.Millisecond,
	}, e.store, e.store, e.bytes, zap.NewNop(), e.metrics, nil)
	claimed, err := runner.ProcessOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	content, err := e.svc.GetContent(ctx, aliceToken, img.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, "image/png", content.MIME)

	expected, err := e.bytes.Read(storage.DerivativeRef(img.StorageRef, 100))
	require.NoError(t, err)
	assert.Equal(t, expected, content.Data)

	// The original is still served without a size selector.
	original, err := e.svc.GetContent(ctx, aliceToken, img.ID, 0)
	require.NoError(t, err)
	assert.NotEqual(t, content.Data, original.Data)
}

func TestStatusAndStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	credsAlive, storeAlive := e.svc.Status(ctx)
	assert.True(t, credsAlive)
	assert.True(t, storeAlive)

	_, err := e.svc.Upload(ctx, aliceToken, service.UploadRequest{Name: "Photos", Type: "folder"})
	require.NoError(t, err)

	n, err := e.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
