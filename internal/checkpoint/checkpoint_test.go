package checkpoint

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.RunID != "" || state.LastRowIndex != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}

	want := State{RunID: "run1", LastRowIndex: 42}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore("file://" + filepath.Join(dir, "run.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != (State{}) {
		t.Errorf("expected empty state for missing file, got %+v", state)
	}

	want := State{RunID: "run2", LastRowIndex: 7}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFileStoreRejectsRelativePath(t *testing.T) {
	if _, err := NewFileStore("file://relative/path.json"); err == nil {
		t.Fatal("expected error for relative path")
	}
}

type fakeS3Client struct {
	objects map[string][]byte
}

func (f *fakeS3Client) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3Client) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	client := &fakeS3Client{objects: make(map[string][]byte)}
	store, err := NewS3Store(client, "s3://my-bucket/checkpoints/run3.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != (State{}) {
		t.Errorf("expected empty state for missing object, got %+v", state)
	}

	want := State{RunID: "run3", LastRowIndex: 100}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestS3StoreRejectsNonS3URI(t *testing.T) {
	if _, err := NewS3Store(&fakeS3Client{}, "file:///tmp/x.json"); err == nil {
		t.Fatal("expected error for non-s3 URI")
	}
}
