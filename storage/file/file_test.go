package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-systems/vigil/audit"
)

func testEvent(t *testing.T) *audit.AuditEvent {
	t.Helper()
	e := audit.NewEvent()
	e.Action = audit.ActionContext{
		Type:      "READ",
		Category:  "DATABASE",
		Operation: "select_users",
	}
	e.Actor = &audit.ActorContext{Username: "svc-reporting", IPAddress: "10.0.0.5"}
	return e
}

func newTestBackend(t *testing.T, format string) *Backend {
	t.Helper()
	b, err := New(Config{
		Directory: t.TempDir(),
		Format:    format,
		AppName:   "testapp",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNew(t *testing.T) {
	t.Run("rejects unsupported format", func(t *testing.T) {
		_, err := New(Config{Directory: t.TempDir(), Format: "xml"})
		require.Error(t, err)

		var cfgErr *audit.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("creates directory with restrictive permissions", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("posix permissions")
		}
		dir := filepath.Join(t.TempDir(), "audit")
		b, err := New(Config{Directory: dir})
		require.NoError(t, err)
		defer b.Close()

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	})

	t.Run("applies defaults", func(t *testing.T) {
		b, err := New(Config{Directory: t.TempDir()})
		require.NoError(t, err)
		defer b.Close()

		assert.Equal(t, FormatJSON, b.format)
		assert.Equal(t, DefaultFilenamePattern, b.pattern)
	})
}

func TestStoreJSONL(t *testing.T) {
	b := newTestBackend(t, FormatJSONL)

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, b.Store(context.Background(), testEvent(t)))
	}
	require.NoError(t, b.Close())

	data := readOnlyFile(t, b.directory)
	lines := nonEmptyLines(data)
	require.Len(t, lines, n)

	for _, line := range lines {
		var e audit.AuditEvent
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		assert.NotEmpty(t, e.EventID)
		assert.Equal(t, "READ", e.Action.Type)
	}
}

func TestStoreFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix permissions")
	}
	b := newTestBackend(t, FormatJSONL)
	require.NoError(t, b.Store(context.Background(), testEvent(t)))

	info, err := os.Stat(b.currentPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStoreFilenamePattern(t *testing.T) {
	dir := t.TempDir()
	b, err := New(Config{
		Directory:       dir,
		Format:          FormatJSONL,
		AppName:         "payments",
		FilenamePattern: "{app_name}_{category}_{date}.log",
	})
	require.NoError(t, err)
	defer b.Close()

	e := testEvent(t)
	e.Timestamp = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.Store(context.Background(), e))

	_, statErr := os.Stat(filepath.Join(dir, "payments_database_2026-03-14.log"))
	assert.NoError(t, statErr)
}

func TestStoreRotatesOnDateChange(t *testing.T) {
	b := newTestBackend(t, FormatJSONL)

	day1 := testEvent(t)
	day1.Timestamp = time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)
	require.NoError(t, b.Store(context.Background(), day1))

	day2 := testEvent(t)
	day2.Timestamp = time.Date(2026, 5, 2, 0, 1, 0, 0, time.UTC)
	require.NoError(t, b.Store(context.Background(), day2))

	entries, err := os.ReadDir(b.directory)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	names := []string{entries[0].Name(), entries[1].Name()}
	assert.Contains(t, names, "testapp_audit_2026-05-01.log")
	assert.Contains(t, names, "testapp_audit_2026-05-02.log")
}

func TestStoreCSV(t *testing.T) {
	b := newTestBackend(t, FormatCSV)

	e := testEvent(t)
	duration := 12.5
	e.Performance = &audit.PerformanceMetrics{DurationMS: &duration}
	e.Error = &audit.ErrorInfo{Occurred: true, Type: "Timeout", Message: "query timed out"}
	require.NoError(t, b.Store(context.Background(), e))
	require.NoError(t, b.Close())

	f, err := os.Open(onlyFilePath(t, b.directory))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, csvHeader, records[0])
	row := records[1]
	assert.Equal(t, e.EventID, row[0])
	assert.Equal(t, "DATABASE", row[2])
	assert.Equal(t, "READ", row[3])
	assert.Equal(t, "select_users", row[4])
	assert.Equal(t, "svc-reporting", row[5])
	assert.Equal(t, "12.5", row[7])
	assert.Equal(t, "true", row[9])
	assert.Equal(t, "Timeout", row[10])
}

func TestStoreCSVHeaderSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	open := func() *Backend {
		b, err := New(Config{Directory: dir, Format: FormatCSV, AppName: "testapp"})
		require.NoError(t, err)
		return b
	}

	b := open()
	e := testEvent(t)
	e.Timestamp = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, b.Store(context.Background(), e))
	require.NoError(t, b.Close())

	b = open()
	e2 := testEvent(t)
	e2.Timestamp = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.Store(context.Background(), e2))
	require.NoError(t, b.Close())

	headers := 0
	for _, line := range nonEmptyLines(readOnlyFile(t, dir)) {
		if strings.HasPrefix(line, "event_id,") {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}

func TestStoreText(t *testing.T) {
	b := newTestBackend(t, FormatText)

	e := testEvent(t)
	require.NoError(t, b.Store(context.Background(), e))
	require.NoError(t, b.Close())

	content := readOnlyFile(t, b.directory)
	assert.Contains(t, content, "Event ID: "+e.EventID)
	assert.Contains(t, content, "Category: DATABASE")
	assert.Contains(t, content, "Action: select_users")
	assert.Contains(t, content, "User: svc-reporting")
}

func TestStoreConcurrent(t *testing.T) {
	const (
		goroutines       = 10
		eventsPerRoutine = 20
	)

	for _, format := range []string{FormatJSONL, FormatCSV} {
		t.Run(format, func(t *testing.T) {
			b := newTestBackend(t, format)
			ts := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

			var wg sync.WaitGroup
			errs := make(chan error, goroutines*eventsPerRoutine)
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < eventsPerRoutine; i++ {
						e := testEvent(t)
						e.Timestamp = ts
						e.Action.Operation = fmt.Sprintf("op_%d_%d", g, i)
						if err := b.Store(context.Background(), e); err != nil {
							errs <- err
						}
					}
				}(g)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Errorf("store failed: %v", err)
			}
			require.NoError(t, b.Close())

			lines := nonEmptyLines(readOnlyFile(t, b.directory))
			if format == FormatCSV {
				require.Len(t, lines, goroutines*eventsPerRoutine+1)
				headers := 0
				for _, line := range lines {
					if strings.HasPrefix(line, "event_id,") {
						headers++
					}
				}
				assert.Equal(t, 1, headers)
			} else {
				require.Len(t, lines, goroutines*eventsPerRoutine)
			}
		})
	}
}

func TestClose(t *testing.T) {
	b := newTestBackend(t, FormatJSONL)
	require.NoError(t, b.Store(context.Background(), testEvent(t)))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	err := b.Store(context.Background(), testEvent(t))
	require.Error(t, err)

	var storeErr *audit.StorageError
	assert.ErrorAs(t, err, &storeErr)
}

func TestStoreContextCanceled(t *testing.T) {
	b := newTestBackend(t, FormatJSONL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Store(ctx, testEvent(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func onlyFilePath(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return filepath.Join(dir, entries[0].Name())
}

func readOnlyFile(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(onlyFilePath(t, dir))
	require.NoError(t, err)
	return string(data)
}

func nonEmptyLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
