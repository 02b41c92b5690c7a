package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/craftflow-backend/internal/platform/envutil"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

// ObjectStoreConfig selects the bucket generated images are written to.
// An empty Bucket disables uploads.
type ObjectStoreConfig struct {
	Mode          ObjectStorageMode
	EmulatorHost  string
	Bucket        string
	Prefix        string
	CDNDomain     string
	PublicBaseURL string

	// Credentials is inline service-account JSON or a path to one. Empty
	// falls back to application default credentials.
	Credentials string
}

func (c ObjectStoreConfig) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

func (c ObjectStoreConfig) IsEmulatorMode() bool { return c.Mode == ObjectStorageModeGCSEmulator }

type ConfigError struct {
	Field string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid object storage config %s=%q", e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// ObjectStoreConfigFromEnv reads OBJECT_STORAGE_*, GENERATED_IMAGE_* and
// STORAGE_EMULATOR_HOST. Without an explicit mode an emulator host selects
// emulator mode.
func ObjectStoreConfigFromEnv() (ObjectStoreConfig, error) {
	cfg := ObjectStoreConfig{
		EmulatorHost:  strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
		Bucket:        envutil.String("GENERATED_IMAGE_BUCKET", ""),
		Prefix:        strings.Trim(envutil.String("GENERATED_IMAGE_PREFIX", "generated"), "/"),
		CDNDomain:     envutil.String("GENERATED_IMAGE_CDN_DOMAIN", ""),
		PublicBaseURL: strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""), "/"),
		Credentials:   envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")),
	}
	switch mode := ObjectStorageMode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", ""))); mode {
	case "":
		cfg.Mode = ObjectStorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
		}
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, &ConfigError{Field: "OBJECT_STORAGE_MODE", Value: string(mode)}
	}
	return cfg, cfg.Validate()
}

func (c ObjectStoreConfig) Validate() error {
	switch c.Mode {
	case ObjectStorageModeGCS:
	case ObjectStorageModeGCSEmulator:
		if c.EmulatorHost == "" {
			return &ConfigError{Field: "STORAGE_EMULATOR_HOST", Value: ""}
		}
		if err := absoluteURL(c.EmulatorHost); err != nil {
			return &ConfigError{Field: "STORAGE_EMULATOR_HOST", Value: c.EmulatorHost, Cause: err}
		}
	default:
		return &ConfigError{Field: "OBJECT_STORAGE_MODE", Value: string(c.Mode)}
	}
	if c.PublicBaseURL != "" {
		if err := absoluteURL(c.PublicBaseURL); err != nil {
			return &ConfigError{Field: "OBJECT_STORAGE_PUBLIC_BASE_URL", Value: c.PublicBaseURL, Cause: err}
		}
	}
	return nil
}

func absoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("expected absolute URL like http://fake-gcs:4443")
	}
	return nil
}
