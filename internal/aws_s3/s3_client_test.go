package aws_s3

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/IliaW/email-harvester/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	f.contentType = *in.ContentType
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func newTestClient(p objectPutter) *S3BucketClient {
	return &S3BucketClient{
		client: p,
		cfg:    &config.S3Config{BucketName: "harvests", Region: "eu-west-1", KeyPrefix: "runs"},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestUploadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.csv")
	if err := os.WriteFile(path, []byte("Original_URL\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	putter := &fakePutter{}
	url, err := newTestClient(putter).UploadFile(context.Background(), "run-1", path)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if putter.key != "runs/run-1/results.csv" {
		t.Errorf("key = %q", putter.key)
	}
	if string(putter.body) != "Original_URL\n" {
		t.Errorf("body = %q", putter.body)
	}
	if putter.contentType != "text/csv" {
		t.Errorf("content type = %q", putter.contentType)
	}
	if url != "https://harvests.s3.eu-west-1.amazonaws.com/runs/run-1/results.csv" {
		t.Errorf("url = %q", url)
	}
}

func TestUploadFileErrors(t *testing.T) {
	t.Parallel()

	if _, err := newTestClient(&fakePutter{}).UploadFile(context.Background(), "r", "/nonexistent/results.csv"); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "results.xlsx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	denied := errors.New("access denied")
	if _, err := newTestClient(&fakePutter{err: denied}).UploadFile(context.Background(), "r", path); !errors.Is(err, denied) {
		t.Errorf("error = %v, want wrapped access denied", err)
	}
}
