package tasks

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/umx/internal/device"
	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
	th "github.com/desertthunder/umx/internal/testing"
)

// fakeDevices hands out fake sessions by address and records every open.
type fakeDevices struct {
	callers map[string]*th.FakeCaller
	openErr map[string]error
	opened  []string
}

func (d *fakeDevices) open(ctx context.Context, cfg device.Config) (Session, error) {
	addr := cfg.HostPort()
	d.opened = append(d.opened, addr)
	if err := d.openErr[addr]; err != nil {
		return nil, err
	}
	c, ok := d.callers[addr]
	if !ok {
		return nil, &device.Error{Kind: shared.ErrConnection, Op: "dial", Address: addr, Err: io.EOF}
	}
	c.Addr = addr
	return c, nil
}

type memoryRuns struct {
	runs      map[string]*models.Run
	failures  map[string][]models.RunFailure
	createErr error
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: map[string]*models.Run{}, failures: map[string][]models.RunFailure{}}
}

func (m *memoryRuns) Create(run *models.Run) error {
	if m.createErr != nil {
		return m.createErr
	}
	run.SetID(shared.GenerateID())
	m.runs[run.ID()] = run
	return nil
}

func (m *memoryRuns) Update(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	m.runs[run.ID()] = run
	return nil
}

func (m *memoryRuns) AddFailures(runID string, failures []models.RunFailure) error {
	m.failures[runID] = append(m.failures[runID], failures...)
	return nil
}

const (
	srcAddr = "10.0.0.1:8728"
	dstAddr = "10.0.0.2:8728"
)

func scenarioEntries() []models.Entry {
	return []models.Entry{
		{".id": "*1", "username": "alice", "password": "p1", "email": "a@x.com"},
		{".id": "*2", "username": "bob", "password": "p2"},
	}
}

func newTestEngine(devs *fakeDevices) *MigrationEngine {
	cfg := EngineConfig{
		Source:       device.Config{Address: srcAddr},
		Target:       device.Config{Address: dstAddr},
		SourceSchema: models.SourceSchemaV6(),
		TargetSchema: models.TargetSchemaV7(),
	}
	return NewMigrationEngine(cfg, devs.open, log.New(io.Discard))
}

func TestMigrationEngineRun(t *testing.T) {
	t.Run("scenario with export", func(t *testing.T) {
		src := &th.FakeCaller{Entries: scenarioEntries()}
		dst := &th.FakeCaller{}
		devs := &fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src, dstAddr: dst}}
		engine := newTestEngine(devs)
		rec := newCountingRecorder()
		engine.SetRecorder(rec)

		path := filepath.Join(t.TempDir(), "exported_users.csv")
		progress := make(chan ProgressUpdate, 64)

		result, err := engine.Run(context.Background(), progress, RunOptions{ExportPath: path})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		content := th.MustReadFile(t, path)
		if content != "Username,Password,Email\nalice,p1,a@x.com\nbob,p2,none\n" {
			t.Errorf("unexpected export:\n%s", content)
		}
		if result.ExportPath != path || result.ExportErr != nil {
			t.Errorf("unexpected export result %q %v", result.ExportPath, result.ExportErr)
		}

		if len(dst.Creates) != 2 || dst.Creates[0]["comment"] != "Email: a@x.com" || dst.Creates[1]["comment"] != "Email: none" {
			t.Errorf("unexpected creates %v", dst.Creates)
		}
		if result.Batch.Succeeded != 2 || len(result.Records) != 2 {
			t.Errorf("unexpected result %+v", result.Batch)
		}

		if src.Closes != 1 || dst.Closes != 1 {
			t.Errorf("sessions not released: source %d, target %d", src.Closes, dst.Closes)
		}
		if strings.Join(devs.opened, ",") != srcAddr+","+dstAddr {
			t.Errorf("unexpected open order %v", devs.opened)
		}

		if rec.imported != 2 || rec.created != 2 || !rec.finished {
			t.Errorf("unexpected recorder %+v", rec)
		}

		close(progress)
		var phases []Phase
		for u := range progress {
			if len(phases) == 0 || phases[len(phases)-1] != u.Phase {
				phases = append(phases, u.Phase)
			}
		}
		want := []Phase{ConnectSource, FetchUsers, WriteExport, ConnectTarget, CreateUsers, Complete}
		if len(phases) != len(want) {
			t.Fatalf("unexpected phases %v", phases)
		}
		for i := range want {
			if phases[i] != want[i] {
				t.Errorf("phase %d: expected %s, got %s", i, want[i], phases[i])
			}
		}
	})

	t.Run("order and cardinality preserved", func(t *testing.T) {
		var entries []models.Entry
		for _, r := range makeRecords(25) {
			entries = append(entries, models.Entry{"username": r.Username, "password": r.Password})
		}
		src := &th.FakeCaller{Entries: entries}
		dst := &th.FakeCaller{}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src, dstAddr: dst}})
		path := filepath.Join(t.TempDir(), "out.csv")

		result, err := engine.Run(context.Background(), nil, RunOptions{ExportPath: path})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		exported, err := readLines(path)
		if err != nil {
			t.Fatalf("failed to read export: %v", err)
		}
		if len(exported) != 26 || len(dst.Creates) != 25 || len(result.Records) != 25 {
			t.Fatalf("cardinality mismatch: export %d, creates %d, records %d", len(exported)-1, len(dst.Creates), len(result.Records))
		}
		for i, e := range entries {
			if !strings.HasPrefix(exported[i+1], e["username"]+",") {
				t.Errorf("export row %d: expected %s, got %s", i, e["username"], exported[i+1])
			}
			if dst.Creates[i]["name"] != e["username"] {
				t.Errorf("create %d: expected %s, got %s", i, e["username"], dst.Creates[i]["name"])
			}
		}
	})

	t.Run("export failure does not stop replication", func(t *testing.T) {
		src := &th.FakeCaller{Entries: scenarioEntries()}
		dst := &th.FakeCaller{}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src, dstAddr: dst}})

		path := filepath.Join(t.TempDir(), "missing", "out.csv")
		result, err := engine.Run(context.Background(), nil, RunOptions{ExportPath: path})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !errors.Is(result.ExportErr, shared.ErrExport) {
			t.Errorf("expected ErrExport, got %v", result.ExportErr)
		}
		if result.ExportPath != "" {
			t.Errorf("expected no export path, got %q", result.ExportPath)
		}
		if len(dst.Creates) != 2 {
			t.Errorf("expected replication to proceed, got %d creates", len(dst.Creates))
		}
	})

	t.Run("source unreachable", func(t *testing.T) {
		dst := &th.FakeCaller{}
		devs := &fakeDevices{callers: map[string]*th.FakeCaller{dstAddr: dst}}
		engine := newTestEngine(devs)

		result, err := engine.Run(context.Background(), nil, RunOptions{})
		if !errors.Is(err, shared.ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
		if result.Batch != nil {
			t.Errorf("expected no batch, got %+v", result.Batch)
		}
		if len(devs.opened) != 1 {
			t.Errorf("target should not be opened, opened %v", devs.opened)
		}
	})

	t.Run("import failure releases source", func(t *testing.T) {
		src := &th.FakeCaller{ReadErr: th.Trap("no such command prefix")}
		dst := &th.FakeCaller{}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src, dstAddr: dst}})

		_, err := engine.Run(context.Background(), nil, RunOptions{})
		if !errors.Is(err, shared.ErrImport) {
			t.Fatalf("expected ErrImport, got %v", err)
		}
		if src.Closes != 1 {
			t.Errorf("source not closed")
		}
		if dst.Closes != 0 || len(dst.Creates) != 0 {
			t.Errorf("target should not be touched")
		}
	})

	t.Run("target unreachable", func(t *testing.T) {
		src := &th.FakeCaller{Entries: scenarioEntries()}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src}})

		result, err := engine.Run(context.Background(), nil, RunOptions{})
		if !errors.Is(err, shared.ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
		if result.Batch != nil {
			t.Errorf("expected zero item results, got %+v", result.Batch)
		}
		if src.Closes != 1 {
			t.Errorf("source not closed")
		}
	})

	t.Run("dry run never opens target", func(t *testing.T) {
		src := &th.FakeCaller{Entries: scenarioEntries()}
		devs := &fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src}}
		engine := newTestEngine(devs)

		result, err := engine.Run(context.Background(), nil, RunOptions{DryRun: true})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(devs.opened) != 1 {
			t.Errorf("expected only source to be opened, got %v", devs.opened)
		}
		if !result.Batch.DryRun || result.Batch.Succeeded != 2 {
			t.Errorf("unexpected batch %+v", result.Batch)
		}
	})

	t.Run("replay records skips source", func(t *testing.T) {
		dst := &th.FakeCaller{}
		devs := &fakeDevices{callers: map[string]*th.FakeCaller{dstAddr: dst}}
		engine := newTestEngine(devs)
		rec := newCountingRecorder()
		engine.SetRecorder(rec)

		records := []models.UserRecord{{Username: "carol", Password: "p3"}}
		result, err := engine.Run(context.Background(), nil, RunOptions{Records: records, RecordsSrc: "users.csv", ExportPath: "unused.csv"})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if strings.Join(devs.opened, ",") != dstAddr {
			t.Errorf("expected only target to be opened, got %v", devs.opened)
		}
		if result.ExportPath != "" {
			t.Errorf("replay should not export, got %q", result.ExportPath)
		}
		if len(dst.Creates) != 1 || dst.Creates[0]["name"] != "carol" {
			t.Errorf("unexpected creates %v", dst.Creates)
		}
		if rec.imported != 0 || rec.created != 1 {
			t.Errorf("replayed rows must not count as imported, got %+v", rec)
		}
	})

	t.Run("history", func(t *testing.T) {
		src := &th.FakeCaller{Entries: append(scenarioEntries(), models.Entry{"username": "nopass"})}
		dst := &th.FakeCaller{CreateErrs: map[string]error{"bob": th.Trap("failure: user with the same name already exists")}}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src, dstAddr: dst}})
		runs := newMemoryRuns()
		engine.SetRunStore(runs)

		result, err := engine.Run(context.Background(), nil, RunOptions{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		run := runs.runs[result.RunID]
		if run == nil {
			t.Fatalf("run %q not recorded", result.RunID)
		}
		if run.Status() != models.RunCompleted || run.UsersTotal() != 3 || run.UsersCreated() != 1 || run.UsersFailed() != 2 {
			t.Errorf("unexpected run state: status=%s total=%d created=%d failed=%d",
				run.Status(), run.UsersTotal(), run.UsersCreated(), run.UsersFailed())
		}

		failures := runs.failures[result.RunID]
		if len(failures) != 2 || failures[0].Username != "bob" || failures[0].Reason != models.ReasonAlreadyExists {
			t.Errorf("unexpected failures %+v", failures)
		}
		for _, f := range failures {
			if strings.Contains(f.Message, "p2") {
				t.Errorf("failure message leaks password: %q", f.Message)
			}
		}
	})

	t.Run("history of failed run", func(t *testing.T) {
		engine := newTestEngine(&fakeDevices{})
		runs := newMemoryRuns()
		engine.SetRunStore(runs)

		result, err := engine.Run(context.Background(), nil, RunOptions{})
		if err == nil {
			t.Fatal("expected error")
		}
		run := runs.runs[result.RunID]
		if run == nil || run.Status() != models.RunFailed || run.ErrorMessage() == "" {
			t.Errorf("expected failed run, got %+v", run)
		}
	})

	t.Run("history store failure is not fatal", func(t *testing.T) {
		src := &th.FakeCaller{Entries: scenarioEntries()}
		dst := &th.FakeCaller{}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src, dstAddr: dst}})
		runs := newMemoryRuns()
		runs.createErr = errors.New("disk full")
		engine.SetRunStore(runs)

		result, err := engine.Run(context.Background(), nil, RunOptions{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if result.RunID != "" {
			t.Errorf("expected no run ID, got %q", result.RunID)
		}
	})
}

func TestMigrationEngineExport(t *testing.T) {
	t.Run("writes artifact", func(t *testing.T) {
		src := &th.FakeCaller{Entries: scenarioEntries()}
		devs := &fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src}}
		engine := newTestEngine(devs)
		path := filepath.Join(t.TempDir(), "users.csv")

		result, err := engine.Export(context.Background(), nil, path)
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if result.Count != 2 || result.Path != path {
			t.Errorf("unexpected result %+v", result)
		}
		th.AssertFileExists(t, path)
		if src.Closes != 1 || len(devs.opened) != 1 {
			t.Errorf("expected one source session, opened %v closed %d", devs.opened, src.Closes)
		}
	})

	t.Run("write failure is returned", func(t *testing.T) {
		src := &th.FakeCaller{Entries: scenarioEntries()}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src}})

		_, err := engine.Export(context.Background(), nil, filepath.Join(t.TempDir(), "nope", "users.csv"))
		if !errors.Is(err, shared.ErrExport) {
			t.Errorf("expected ErrExport, got %v", err)
		}
	})
}

func TestMigrationEngineList(t *testing.T) {
	t.Run("source", func(t *testing.T) {
		src := &th.FakeCaller{Entries: scenarioEntries()}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{srcAddr: src}})

		records, err := engine.List(context.Background(), Source)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 2 || records[0].Email != "a@x.com" || records[1].HasEmail {
			t.Errorf("unexpected records %+v", records)
		}
		if src.Closes != 1 {
			t.Error("session not closed")
		}
	})

	t.Run("target recovers email from comment", func(t *testing.T) {
		dst := &th.FakeCaller{Entries: []models.Entry{
			{"name": "alice", "password": "p1", "comment": "Email: a@x.com"},
			{"name": "bob", "password": "p2", "comment": "Email: none"},
			{"name": "local", "password": "p3"},
		}}
		engine := newTestEngine(&fakeDevices{callers: map[string]*th.FakeCaller{dstAddr: dst}})

		records, err := engine.List(context.Background(), Target)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		if records[0].Username != "alice" || records[0].Email != "a@x.com" || !records[0].HasEmail {
			t.Errorf("unexpected first record %+v", records[0])
		}
		if records[1].HasEmail || records[2].HasEmail {
			t.Errorf("expected no email for %+v and %+v", records[1], records[2])
		}
	})
}

func TestParseSide(t *testing.T) {
	for _, s := range []string{"source", "target"} {
		if _, err := ParseSide(s); err != nil {
			t.Errorf("ParseSide(%q) error = %v", s, err)
		}
	}
	if _, err := ParseSide("both"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPhaseString(t *testing.T) {
	for p := ConnectSource; p <= Complete; p++ {
		if p.String() == "" {
			t.Errorf("phase %d has no name", p)
		}
	}
	if Phase(99).String() != "" {
		t.Error("unknown phase should have no name")
	}
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), nil
}
