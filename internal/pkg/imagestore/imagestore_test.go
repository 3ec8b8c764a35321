package imagestore

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"testing"

	"papastore/internal/config"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUpload(t *testing.T) {
	putter := &fakePutter{}
	cfg := config.StorageConfig{
		Bucket:        "papastore-media",
		PublicBaseURL: "https://media.example.com",
	}
	store := New(putter, cfg, testLogger())

	url, err := store.Upload(context.Background(), pngBytes(t), "products")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if len(putter.inputs) != 1 {
		t.Fatalf("put calls = %d", len(putter.inputs))
	}
	input := putter.inputs[0]
	if *input.Bucket != "papastore-media" {
		t.Errorf("bucket = %q", *input.Bucket)
	}
	if !strings.HasPrefix(*input.Key, "products/") || !strings.HasSuffix(*input.Key, ".jpg") {
		t.Errorf("key = %q", *input.Key)
	}
	if *input.ContentType != "image/jpeg" {
		t.Errorf("content type = %q", *input.ContentType)
	}
	if !strings.HasPrefix(url, "https://media.example.com/products/") {
		t.Errorf("url = %q", url)
	}
}

func TestUpload_NoFolder(t *testing.T) {
	putter := &fakePutter{}
	store := New(putter, config.StorageConfig{Bucket: "b", PublicBaseURL: "https://cdn"}, testLogger())

	if _, err := store.Upload(context.Background(), pngBytes(t), ""); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if strings.Contains(*putter.inputs[0].Key, "/") {
		t.Errorf("key = %q, want no folder prefix", *putter.inputs[0].Key)
	}
}

func TestUpload_RejectsGarbage(t *testing.T) {
	putter := &fakePutter{}
	store := New(putter, config.StorageConfig{Bucket: "b"}, testLogger())

	if _, err := store.Upload(context.Background(), []byte("not an image"), "products"); err == nil {
		t.Fatal("expected decode error")
	}
	if len(putter.inputs) != 0 {
		t.Error("nothing should be uploaded for undecodable data")
	}
}
