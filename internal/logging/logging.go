package logging

import "go.uber.org/zap"

// New builds the process logger: JSON at info level in production, console
// output at debug level in development.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Must is New for main functions.
func Must(dev bool) *zap.Logger {
	log, err := New(dev)
	if err != nil {
		panic(err)
	}
	return log
}
