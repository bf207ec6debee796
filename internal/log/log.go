// Package log provides the process-wide zap logger.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

var (
	base *zap.Logger
	log  *zap.SugaredLogger
)

// Init initializes the package-level logger. Must be called before any other
// function in this package.
func Init(debug bool) error {
	var logger *zap.Logger
	var err error

	if debug {
		logger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		logger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	base = logger
	log = logger.Sugar()
	return nil
}

// GetZapLogger returns the base zap logger for integrations that need it.
func GetZapLogger() *zap.Logger {
	if base == nil {
		base, _ = zap.NewProduction(zap.AddCallerSkip(1))
		log = base.Sugar()
	}
	return base
}

// GetSugaredLogger returns the sugared logger instance.
func GetSugaredLogger() *zap.SugaredLogger {
	if log == nil {
		base, _ = zap.NewProduction(zap.AddCallerSkip(1))
		log = base.Sugar()
	}
	return log
}

// Sync flushes any buffered log entries.
func Sync() {
	if log != nil {
		log.Sync()
	}
}

func Debug(args ...interface{})                       { log.Debug(args...) }
func Debugf(template string, args ...interface{})     { log.Debugf(template, args...) }
func Debugw(msg string, keysAndValues ...interface{}) { log.Debugw(msg, keysAndValues...) }
func Info(args ...interface{})                        { log.Info(args...) }
func Infof(template string, args ...interface{})      { log.Infof(template, args...) }
func Infow(msg string, keysAndValues ...interface{})  { log.Infow(msg, keysAndValues...) }
func Warn(args ...interface{})                        { log.Warn(args...) }
func Warnf(template string, args ...interface{})      { log.Warnf(template, args...) }
func Error(args ...interface{})                       { log.Error(args...) }
func Errorf(template string, args ...interface{})     { log.Errorf(template, args...) }
func Errorw(msg string, keysAndValues ...interface{}) { log.Errorw(msg, keysAndValues...) }

func Fatal(args ...interface{}) {
	log.Fatal(args...)
	os.Exit(1)
}

func Fatalf(template string, args ...interface{}) {
	log.Fatalf(template, args...)
	os.Exit(1)
}
