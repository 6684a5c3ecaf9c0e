package session

import "github.com/sirupsen/logrus"

// WithLogger sets a logger
func WithLogger(logger *logrus.Logger) func(*Session) {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDataService overrides the data service and its notification characteristic
func WithDataService(service, characteristic string) func(*Session) {
	return func(s *Session) {
		if service != "" {
			s.dataService = service
		}
		if characteristic != "" {
			s.dataCharacteristic = characteristic
		}
	}
}

// WithStateChangeHandler defines a handler function that is called upon state change
func WithStateChangeHandler(fn func(status Status)) func(*Session) {
	return func(s *Session) {
		s.stateChangeHandler = fn
	}
}

// WithStateChangeChannel defines a channel that receives state changes without blocking
func WithStateChangeChannel(ch chan Status) func(*Session) {
	return func(s *Session) {
		s.stateChangeChan = ch
	}
}
