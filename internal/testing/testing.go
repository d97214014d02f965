// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/desertthunder/umx/internal/device"
	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
	"github.com/go-routeros/routeros/v3"
	"github.com/go-routeros/routeros/v3/proto"
)

// FakeCaller is a test double for [device.Caller] backed by an in-memory user collection.
//
// Reads return Entries. Creates are recorded in Creates; CreateErrs, keyed by the value of the
// "name" parameter, makes a create fail. DropAfter > 0 turns every create after that many into a
// connection failure, and Unreachable fails every call that way.
type FakeCaller struct {
	Addr        string
	Entries     []models.Entry
	ReadErr     error
	CreateErrs  map[string]error
	DropAfter   int
	Unreachable bool

	Reads   int
	Creates []models.Entry
	Closes  int
}

func (f *FakeCaller) Address() string {
	if f.Addr == "" {
		return "fake:8728"
	}
	return f.Addr
}

func (f *FakeCaller) Call(ctx context.Context, path string, op device.Op, params models.Entry) (*device.Result, error) {
	if f.Closes > 0 {
		return nil, &device.Error{Kind: shared.ErrSessionClosed, Op: string(op), Address: f.Address(), Path: path}
	}
	if f.Unreachable {
		return nil, ConnectionError(f.Address(), path)
	}

	switch op {
	case device.Read:
		f.Reads++
		if f.ReadErr != nil {
			return nil, f.ReadErr
		}
		entries := make([]models.Entry, len(f.Entries))
		copy(entries, f.Entries)
		return &device.Result{Entries: entries}, nil
	case device.Create:
		if f.DropAfter > 0 && len(f.Creates) >= f.DropAfter {
			return nil, ConnectionError(f.Address(), path)
		}
		f.Creates = append(f.Creates, params)
		if err, ok := f.CreateErrs[params["name"]]; ok && err != nil {
			return nil, err
		}
		return &device.Result{ID: "*" + params["name"]}, nil
	default:
		return nil, &device.Error{Kind: shared.ErrCommunication, Op: string(op), Address: f.Address(), Path: path}
	}
}

// Close marks the caller closed; later calls fail with [shared.ErrSessionClosed].
func (f *FakeCaller) Close() error {
	f.Closes++
	return nil
}

// Trap builds the error a session returns for a !trap reply with the given message.
func Trap(message string) error {
	return &device.Error{
		Kind: shared.ErrDevice,
		Op:   string(device.Create),
		Err:  &routeros.DeviceError{Sentence: &proto.Sentence{Word: "!trap", Map: map[string]string{"message": message}}},
	}
}

// ConnectionError builds a transport failure as returned by a dropped session.
func ConnectionError(address, path string) error {
	return &device.Error{Kind: shared.ErrConnection, Op: "call", Address: address, Path: path, Err: io.EOF}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// FReader simulates a failure when reading input
type FReader struct{}

func (f *FReader) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileMode(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat %s: %v", path, err)
	}
	if got := info.Mode().Perm(); got != want {
		t.Errorf("Expected mode %o for %s, got %o", want, path, got)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
