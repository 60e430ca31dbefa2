package statuslog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/asoos/domain-sync/pkg/model"
)

func TestAppendIsConcurrencySafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verification.log")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				status := model.Status{
					Domain:       fmt.Sprintf("d%d-%d.example", w, i),
					Timestamp:    time.Now().UTC(),
					OverallState: model.StateLive,
					HTTPStatus:   200,
				}
				if err := log.Append(status); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var status model.Status
		if err := json.Unmarshal(scanner.Bytes(), &status); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if status.Domain == "" || status.OverallState == "" {
			t.Errorf("line %d is incomplete: %s", lines, scanner.Text())
		}
	}
	if lines != writers*perWriter {
		t.Errorf("expected %d lines, got %d", writers*perWriter, lines)
	}
}

func TestAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verification.log")

	for i := 0; i < 2; i++ {
		log, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := log.Append(model.Status{Domain: "asoos.2100.cool", OverallState: model.StateLive}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := log.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("reopening must append, not truncate: got %d lines in %q", lines, string(data))
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "verification.log")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file was not created: %v", err)
	}
}
