package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure with the offending key.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures of the YAML file and env providers.
	ErrLoadConfig = errors.New("load config failed")
)
