package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
	"github.com/mahdiidarabi/keyladder/internal/affine"
	"github.com/mahdiidarabi/keyladder/internal/bruteforce"
	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
	"github.com/mahdiidarabi/keyladder/internal/keystore"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
	"github.com/mahdiidarabi/keyladder/pkg/keyladder"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem.  A single backend logger is created and all subsystem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file.  This must be performed early during application startup by
// calling initLogRotator.
var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	kldrLog = backendLog.Logger("KLDR")
	affnLog = backendLog.Logger("AFFN")
	vrfyLog = backendLog.Logger("VRFY")
	srchLog = backendLog.Logger("SRCH")
	ckptLog = backendLog.Logger("CKPT")
	kstrLog = backendLog.Logger("KSTR")
	clntLog = backendLog.Logger("CLNT")
)

// Initialize package-global logger variables.
func init() {
	affine.UseLogger(affnLog)
	verifier.UseLogger(vrfyLog)
	bruteforce.UseLogger(srchLog)
	checkpoint.UseLogger(ckptLog)
	keystore.UseLogger(kstrLog)
	keyladder.UseLogger(clntLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"KLDR": kldrLog,
	"AFFN": affnLog,
	"VRFY": vrfyLog,
	"SRCH": srchLog,
	"CKPT": ckptLog,
	"KSTR": kstrLog,
	"CLNT": clntLog,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotater variables are used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	logRotator = r
	return nil
}

// setLogLevels sets the logging level of every subsystem.  It returns an
// error for an unknown level.
func setLogLevels(logLevel string) error {
	level, ok := slog.LevelFromString(logLevel)
	if !ok {
		return fmt.Errorf("invalid debug level %q; supported levels are "+
			"trace, debug, info, warn, error, critical and off", logLevel)
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}
