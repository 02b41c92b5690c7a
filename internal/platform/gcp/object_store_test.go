package gcp

import (
	"errors"
	"testing"
)

func TestPublicURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  ObjectStoreConfig
		want string
	}{
		{"cdn", ObjectStoreConfig{Mode: ObjectStorageModeGCS, Bucket: "b", CDNDomain: "cdn.example"}, "https://cdn.example/gen/a.png"},
		{"emulator", ObjectStoreConfig{Mode: ObjectStorageModeGCSEmulator, Bucket: "b", EmulatorHost: "http://fake-gcs:4443"}, "http://fake-gcs:4443/storage/v1/b/b/o/gen%2Fa.png?alt=media"},
		{"emulator public base", ObjectStoreConfig{Mode: ObjectStorageModeGCSEmulator, Bucket: "b", EmulatorHost: "http://fake-gcs:4443", PublicBaseURL: "http://localhost:4443"}, "http://localhost:4443/storage/v1/b/b/o/gen%2Fa.png?alt=media"},
		{"base url", ObjectStoreConfig{Mode: ObjectStorageModeGCS, Bucket: "b", PublicBaseURL: "https://files.example"}, "https://files.example/b/gen/a.png"},
		{"gcs default", ObjectStoreConfig{Mode: ObjectStorageModeGCS, Bucket: "b"}, "https://storage.googleapis.com/b/gen/a.png"},
	}
	for _, tc := range cases {
		if got := PublicURL(tc.cfg, "/gen/a.png"); got != tc.want {
			t.Fatalf("%s: want=%q got=%q", tc.name, tc.want, got)
		}
	}
}

func TestObjectStoreConfigFromEnv(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443/")
	t.Setenv("GENERATED_IMAGE_BUCKET", "images")
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	cfg, err := ObjectStoreConfigFromEnv()
	if err != nil {
		t.Fatalf("ObjectStoreConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if cfg.EmulatorHost != "http://fake-gcs:4443" || !cfg.Enabled() || cfg.Prefix != "generated" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	_, err = ObjectStoreConfigFromEnv()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "OBJECT_STORAGE_MODE" {
		t.Fatalf("want OBJECT_STORAGE_MODE config error, got %v", err)
	}

	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "fake-gcs")
	if _, err := ObjectStoreConfigFromEnv(); err == nil {
		t.Fatalf("want error for relative emulator host")
	}
}

func TestContentTypes(t *testing.T) {
	if got := ContentTypeForKey("a/b.JPG?x=1"); got != "image/jpeg" {
		t.Fatalf("jpg: got %q", got)
	}
	if got := ExtensionForMime("image/webp"); got != ".webp" {
		t.Fatalf("webp: got %q", got)
	}
	if got := ExtensionForMime(""); got != ".png" {
		t.Fatalf("default: got %q", got)
	}
}
