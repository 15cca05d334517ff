package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
)

type fakeObjects struct {
	exists bool
	made   []string
	bucket string
	key    string
	body   string
	ctype  string
	putErr error
}

func (f *fakeObjects) BucketExists(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	f.exists = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, key string, reader *bytes.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, _ := io.ReadAll(reader)
	f.bucket, f.key, f.body, f.ctype = bucket, key, string(data), opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func TestNewDisabledWithoutEndpoint(t *testing.T) {
	a, err := New(Config{Bucket: "reports"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.Enabled() {
		t.Fatal("expected disabled archiver")
	}
	if err := a.Put(context.Background(), "x.csv", "text/csv", nil); err != nil {
		t.Fatalf("disabled put: %v", err)
	}
}

func TestPutCreatesBucketAndUploads(t *testing.T) {
	objects := &fakeObjects{}
	s := &Store{cfg: Config{Bucket: "reports", Prefix: "/zmooth/"}, objects: objects}

	if err := s.Put(context.Background(), "transactions/2026-03-09.csv", "text/csv", []byte("a,b\n")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(objects.made) != 1 || objects.made[0] != "reports" {
		t.Fatalf("expected bucket creation, got %v", objects.made)
	}
	if objects.key != "zmooth/transactions/2026-03-09.csv" || objects.body != "a,b\n" || objects.ctype != "text/csv" {
		t.Fatalf("unexpected upload %+v", objects)
	}
}

func TestPutWrapsUploadError(t *testing.T) {
	boom := errors.New("denied")
	s := &Store{cfg: Config{Bucket: "reports"}, objects: &fakeObjects{exists: true, putErr: boom}}
	if err := s.Put(context.Background(), "k", "text/csv", nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	cases := map[[2]string]string{
		{"", "a.csv"}:      "a.csv",
		{"p", "/a.csv"}:    "p/a.csv",
		{"/p/q/", "a.csv"}: "p/q/a.csv",
	}
	for in, want := range cases {
		if got := ObjectKey(in[0], in[1]); got != want {
			t.Fatalf("ObjectKey(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}
