package acquisition_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"catalog/internal/acquisition"
	"catalog/internal/blobstore"
	"catalog/internal/validation"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const filesURL = "https://catalog.example.com/files"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func memFile(name string, size int) acquisition.File {
	data := bytes.Repeat([]byte{'x'}, size)
	return acquisition.File{
		Name: name,
		Size: int64(size),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// MockUploader is a mock implementation of acquisition.Uploader
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, onProgress blobstore.ProgressFunc) (string, error) {
	args := m.Called(objectPath, size)
	if onProgress != nil {
		onProgress(size/2, size)
		onProgress(size, size)
	}
	return args.String(0), args.Error(1)
}

func assertMonotonic(t *testing.T, values []int) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress decreased at event %d: %v", i, values)
	}
}

func TestTracker_AggregatesSequentialFiles(t *testing.T) {
	var got []int
	tracker := acquisition.NewTracker(2, func(p int) { got = append(got, p) })

	tracker.Transfer(50, 100)
	tracker.Transfer(100, 100)
	tracker.Complete()
	tracker.Transfer(50, 100)
	tracker.Transfer(100, 100)
	assert.Equal(t, 99, tracker.Percent())
	tracker.Complete()

	assert.Equal(t, []int{25, 50, 50, 75, 99, 100}, got)
	assertMonotonic(t, got)
}

func TestTracker_SingleFileReaches100OnlyOnCompletion(t *testing.T) {
	var got []int
	tracker := acquisition.NewTracker(1, func(p int) { got = append(got, p) })

	tracker.Transfer(10, 10)
	assert.Equal(t, 99, tracker.Percent())

	tracker.Complete()
	assert.Equal(t, []int{99, 100}, got)
}

func TestDirect_UploadsSequentiallyToBlobStorage(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := blobstore.NewStore(fs, filesURL)
	direct := acquisition.NewDirect(store, nil)

	var progress []int
	images := acquisition.Images{Files: []acquisition.File{memFile("front.jpg", 70_000), memFile("my back.jpg", 10)}}
	urls, err := direct.Acquire(context.Background(), "prod-1", images, func(p int) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.Equal(t, []string{
		filesURL + "/products/prod-1/0-front.jpg",
		filesURL + "/products/prod-1/1-my-back.jpg",
	}, urls)
	require.NotEmpty(t, progress)
	assertMonotonic(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	for _, p := range progress[:len(progress)-1] {
		assert.Less(t, p, 100)
	}

	exists, _ := afero.Exists(fs, "/products/prod-1/1-my-back.jpg")
	assert.True(t, exists)
}

func TestDirect_FailureAbortsRemainingQueue(t *testing.T) {
	uploader := new(MockUploader)
	uploader.On("Upload", "products/p/0-a.jpg", int64(4)).Return(filesURL+"/products/p/0-a.jpg", nil).Once()
	uploader.On("Upload", "products/p/1-b.jpg", int64(4)).Return("", errors.New("network down")).Once()

	direct := acquisition.NewDirect(uploader, nil)
	images := acquisition.Images{Files: []acquisition.File{memFile("a.jpg", 4), memFile("b.jpg", 4), memFile("c.jpg", 4)}}

	var progress []int
	urls, err := direct.Acquire(context.Background(), "p", images, func(p int) { progress = append(progress, p) })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
	assert.Nil(t, urls)
	assert.NotContains(t, progress, 100)
	uploader.AssertExpectations(t)
	uploader.AssertNotCalled(t, "Upload", "products/p/2-c.jpg", int64(4))
}

func TestDirect_OpenFailure(t *testing.T) {
	uploader := new(MockUploader)
	direct := acquisition.NewDirect(uploader, nil)
	images := acquisition.Images{Files: []acquisition.File{{
		Name: "broken.jpg",
		Size: 1,
		Open: func() (io.ReadCloser, error) { return nil, errors.New("gone") },
	}}}

	_, err := direct.Acquire(context.Background(), "p", images, nil)

	require.Error(t, err)
	uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestDirect_Inspect(t *testing.T) {
	direct := acquisition.NewDirect(new(MockUploader), nil)

	input := direct.Inspect(acquisition.Images{Files: []acquisition.File{memFile("a.jpg", 12)}})

	assert.Equal(t, []validation.FileMeta{{Name: "a.jpg", Size: 12}}, input.Files)
	assert.Nil(t, input.URLs)
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "products/p/0-photo.png", acquisition.ObjectPath("p", 0, "photo.png"))
	assert.Equal(t, "products/p/2-passwd", acquisition.ObjectPath("p", 2, "../../etc/passwd"))
	assert.Equal(t, "products/p/1-image", acquisition.ObjectPath("p", 1, ""))
}

func TestWidget_ResolvePrefersURL(t *testing.T) {
	widget := acquisition.NewWidget(filesURL + "/")

	u, err := widget.Resolve(acquisition.Descriptor{URL: "https://utfs.example.com/f/abc", Key: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "https://utfs.example.com/f/abc", u)

	u, err = widget.Resolve(acquisition.Descriptor{Key: "uploads/abc.png"})
	require.NoError(t, err)
	assert.Equal(t, filesURL+"/uploads/abc.png", u)

	_, err = widget.Resolve(acquisition.Descriptor{})
	assert.Error(t, err)
}

func TestWidget_AcquireIsBinaryProgressAndBounded(t *testing.T) {
	widget := acquisition.NewWidget(filesURL)
	var progress []int

	images := acquisition.Images{Uploads: []acquisition.Descriptor{{Key: "a"}, {Key: "b"}, {Key: "c"}, {Key: "d"}}}
	urls, err := widget.Acquire(context.Background(), "ignored", images, func(p int) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.Len(t, urls, validation.MaxImages)
	assert.Equal(t, []int{0, 100}, progress)
}

func TestWidget_InspectKeepsUnresolvableEntries(t *testing.T) {
	widget := acquisition.NewWidget(filesURL)

	input := widget.Inspect(acquisition.Images{Uploads: []acquisition.Descriptor{{Key: "a"}, {}}})

	assert.Equal(t, []string{filesURL + "/a", ""}, input.URLs)
}

func TestCollector_Bound(t *testing.T) {
	c := acquisition.NewCollector(3)

	added, full := c.Add("a", "b")
	assert.Equal(t, []string{"a", "b"}, added)
	assert.False(t, full)
	assert.Equal(t, 1, c.Remaining())

	added, full = c.Add("c", "d")
	assert.Equal(t, []string{"c"}, added)
	assert.True(t, full)
	assert.True(t, c.Full())
	assert.Equal(t, []string{"a", "b", "c"}, c.URLs())
}

func TestNew(t *testing.T) {
	acq, err := acquisition.New(acquisition.VariantDirect, new(MockUploader), filesURL, nil)
	require.NoError(t, err)
	assert.Equal(t, acquisition.VariantDirect, acq.Variant())
	assert.Equal(t, validation.ImageFiles, acquisition.SchemaMode(acq.Variant()))

	acq, err = acquisition.New(acquisition.VariantWidget, nil, filesURL, nil)
	require.NoError(t, err)
	assert.Equal(t, validation.ImageURLs, acquisition.SchemaMode(acq.Variant()))

	_, err = acquisition.New(acquisition.VariantDirect, nil, filesURL, nil)
	assert.Error(t, err)

	_, err = acquisition.New("carrier-pigeon", nil, filesURL, nil)
	assert.True(t, strings.Contains(err.Error(), "unknown"))
}
