package session

import "time"

// Observer is notified of refresh activity.
type Observer interface {
	RefreshStarted()
	RefreshFinished(err error, elapsed time.Duration)
	RequestQueued()
}

type nopObserver struct{}

func (nopObserver) RefreshStarted()                      {}
func (nopObserver) RefreshFinished(error, time.Duration) {}
func (nopObserver) RequestQueued()                       {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
