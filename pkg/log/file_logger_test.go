package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(StateChange(ModelAsset, 0, "IDLE", "REPEATING", "set state"))
	if logger.Written() != 1 {
		t.Errorf("Written: got %d, want 1", logger.Written())
	}
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if got.StateChange == nil || got.StateChange.NewState != "REPEATING" {
		t.Errorf("StateChange: got %+v", got.StateChange)
	}
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	logger.Log(Event{SessionID: "late"})

	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if logger.Written() != 0 {
		t.Errorf("Written: got %d, want 0", logger.Written())
	}
}

func TestFileLoggerConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(Event{Timestamp: time.Now(), DeviceID: uint16(id + 1)})
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	n := 0
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		n++
	}
	if n != 200 {
		t.Errorf("read %d events, want 200", n)
	}
}
