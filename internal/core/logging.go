package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns the logger shared by every component of the server. Output goes
// to cfg.LogFile(), which is also one of the paths GameLift uploads at session end.
func NewLogger(cfg *Config) (*logrus.Logger, error) {
	logLvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	logFile := cfg.LogFile()
	if err := os.MkdirAll(filepath.Dir(logFile), fs.ModePerm); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	return &logrus.Logger{
		Out: &logOutput{
			Logger: &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    cfg.LogMaxSizeMB,
				MaxBackups: cfg.LogMaxBackups,
			},
			streams: standardStreams,
		},
		Formatter: &logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			DisableSorting:  true,
			DisableColors:   true,
		},
		Hooks: make(logrus.LevelHooks),
		Level: logLvl,
	}, nil
}

// logOutput is the rotating log file. lumberjack rotates by renaming the file,
// so after each write stdout and stderr are moved to the new file if they were
// redirected to the old one.
type logOutput struct {
	*lumberjack.Logger
	streams *streamRedirect
}

func (o *logOutput) Write(p []byte) (int, error) {
	n, err := o.Logger.Write(p)
	if ferr := o.streams.follow(o.Filename); ferr != nil {
		fmt.Fprintf(o.Logger, "failed to follow log rotation: %v\n", ferr)
	}
	return n, err
}

// streamRedirect remembers which file stdout and stderr were pointed at.
type streamRedirect struct {
	mu    sync.Mutex
	path  string
	info  os.FileInfo
	apply func(f *os.File) error
}

var standardStreams = &streamRedirect{apply: redirectStandardStreams}

// RedirectStandardStreams sends the process's stdout and stderr to path so output
// from the GameLift SDK and the runtime lands in the uploaded log file. The
// logger returned by NewLogger for the same path keeps them on it across rotations.
func RedirectStandardStreams(path string) error {
	return standardStreams.redirect(path)
}

func (r *streamRedirect) redirect(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirectLocked(path)
}

func (r *streamRedirect) redirectLocked(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), fs.ModePerm); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := r.apply(f); err != nil {
		return err
	}

	r.path = path
	r.info = info
	return nil
}

// follow redirects again if path no longer names the file the streams write to.
func (r *streamRedirect) follow(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.info == nil || r.path != path {
		return nil
	}
	current, err := os.Stat(path)
	if err != nil || os.SameFile(current, r.info) {
		return nil
	}
	return r.redirectLocked(path)
}
