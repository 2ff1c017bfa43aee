package router

import (
	"errors"
	"fmt"
)

// State is a lifecycle phase of the engine.
type State int32

const (
	Starting State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNoRules is returned by Run when the route table is empty.
var ErrNoRules = errors.New("there are no routing rules defined")

// ConfigError reports a configuration problem detected before consumption.
type ConfigError struct {
	Setting string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Setting, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidateConsumerConfig requires enable.auto.commit to be present and set to
// the literal "false".
func ValidateConsumerConfig(config map[string]string) error {
	value, ok := config["enable.auto.commit"]
	if !ok {
		return &ConfigError{
			Setting: "consumer",
			Err:     errors.New("enable.auto.commit is not set; set KAFKA_CONSUMER_ENABLE_AUTO_COMMIT to \"false\""),
		}
	}
	if value != "false" {
		return &ConfigError{
			Setting: "consumer",
			Err:     fmt.Errorf("enable.auto.commit is %q; set KAFKA_CONSUMER_ENABLE_AUTO_COMMIT to \"false\"", value),
		}
	}
	return nil
}
