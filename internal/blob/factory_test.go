package blob

import (
	"bytes"
	"cellenics/internal/errs"
	"context"
	"errors"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	fs, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil || fs.Driver() != DriverFilesystem {
		t.Fatalf("fs: %v %v", fs, err)
	}
	mem, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("memory: %v %v", mem, err)
	}
	if _, err := Open(ctx, Config{Driver: "bogus"}); !errors.Is(err, errs.ErrUnknownDriver) {
		t.Fatalf("expected unknown driver, got %v", err)
	}
}

func TestOpenEnvFallsBackToFilesystem(t *testing.T) {
	t.Setenv("CELLENICS_BLOB_DRIVER", "fs")
	t.Setenv("CELLENICS_BLOB_FS_ROOT", t.TempDir())
	store, err := OpenEnv(context.Background())
	if err != nil {
		t.Fatalf("open env: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestDriversAgreeOnMatches(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	s3, _ := NewMockS3ForTests()
	for _, store := range []Store{NewMemory(), fs, s3} {
		info, err := store.Put(ctx, "src", "e1/r.h5", bytes.NewReader([]byte("payload")), PutOptions{})
		if err != nil {
			t.Fatalf("%s put: %v", store.Driver(), err)
		}
		if _, err := store.Copy(ctx, "src", "e1/r.h5", "dst", "ns-e1/r.h5"); err != nil {
			t.Fatalf("%s copy: %v", store.Driver(), err)
		}
		ok, err := store.Matches(ctx, "dst", "ns-e1/r.h5", info.ETag)
		if err != nil || !ok {
			t.Fatalf("%s: copy should match source fingerprint, ok=%v err=%v", store.Driver(), ok, err)
		}
		if ok, _ := store.Matches(ctx, "dst", "ns-e1/absent", info.ETag); ok {
			t.Fatalf("%s: absent target must not match", store.Driver())
		}
		if _, err := store.Head(ctx, "dst", "ns-e1/absent"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected not found, got %v", store.Driver(), err)
		}
	}
}
