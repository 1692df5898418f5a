// Package logging mirrors the standard logger to stdout and a log file that
// the console's server-log endpoints can tail and clear.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gluk-w/claworc/console/internal/config"
)

const defaultLogPath = "/app/data/console.log"

var (
	logFile *os.File
	mu      sync.Mutex
)

func logPath() string {
	if config.Cfg.LogPath == "" {
		return defaultLogPath
	}
	return config.Cfg.LogPath
}

// Init sets up dual logging to stdout and the configured log file.
// Must be called after config.Load(). Failures only disable the file copy.
func Init() {
	setup(os.Stdout)
}

// InitFileOnly logs to the file alone. The local console uses it so log
// lines do not draw over the terminal UI; without a file logging is
// discarded.
func InitFileOnly() {
	log.SetOutput(io.Discard)
	setup(nil)
}

func setup(console io.Writer) {
	path := logPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}

	mu.Lock()
	logFile = f
	mu.Unlock()
	if console != nil {
		log.SetOutput(io.MultiWriter(console, f))
	} else {
		log.SetOutput(f)
	}
	log.Printf("Logging to file: %s", path)
}

// Close detaches the log file and restores stdout-only logging.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stdout)
	err := logFile.Close()
	logFile = nil
	return err
}

// ReadTail returns the last n lines of the log file. A missing file reads
// as empty.
func ReadTail(n int) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(logPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	// Ring of the last n lines; the file may be much larger than n.
	tail := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(tail) == n {
			tail = tail[1:]
		}
		tail = append(tail, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}
	return strings.Join(tail, "\n"), nil
}

// Clear truncates the log file.
func Clear() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		if err := logFile.Truncate(0); err != nil {
			return fmt.Errorf("truncate log file: %w", err)
		}
		if _, err := logFile.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek log file: %w", err)
		}
		return nil
	}
	if err := os.Truncate(logPath(), 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate log file: %w", err)
	}
	return nil
}
