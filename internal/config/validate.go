package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return describeValidation(err)
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if filepath.Clean(c.Paths.GridRoot) == filepath.Clean(c.Paths.StateDir) {
		return errors.New("paths.grid_root must differ from paths.state_dir")
	}
	if c.Paths.FlowSpecDir != "" && filepath.Clean(c.Paths.FlowSpecDir) == filepath.Clean(c.Paths.GridRoot) {
		return errors.New("paths.flow_spec_dir must differ from paths.grid_root")
	}
	return nil
}

// describeValidation turns validator field errors into section.key messages.
func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("config: %w", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := tomlKey(fe.StructNamespace())
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s fails %s=%s", key, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s fails %s", key, fe.Tag()))
		}
	}
	return fmt.Errorf("config: %s", strings.Join(parts, "; "))
}

var tomlKeys = map[string]string{
	"Paths.StateDir":                 "paths.state_dir",
	"Paths.LogDir":                   "paths.log_dir",
	"Paths.GridRoot":                 "paths.grid_root",
	"Conveyor.MaxErrorsBeforeCancel": "conveyor.max_errors_before_cancel",
	"Conveyor.RecentQueueSize":       "conveyor.recent_queue_size",
	"Conveyor.QueuePollInterval":     "conveyor.queue_poll_interval",
	"Vault.HashMemoryKiB":            "vault.hash_memory_kib",
	"Vault.HashIterations":           "vault.hash_iterations",
	"Vault.HashParallelism":          "vault.hash_parallelism",
	"Vault.KDFMemoryKiB":             "vault.kdf_memory_kib",
	"Vault.KDFIterations":            "vault.kdf_iterations",
	"Synch.SchedulerInterval":        "synch.scheduler_interval",
	"Metrics.Bind":                   "metrics.bind",
	"Notifications.NtfyTopic":        "notifications.ntfy_topic",
	"Notifications.RequestTimeout":   "notifications.request_timeout",
	"Logging.Format":                 "logging.format",
	"Logging.Level":                  "logging.level",
	"Logging.RetentionDays":          "logging.retention_days",
}

func tomlKey(namespace string) string {
	namespace = strings.TrimPrefix(namespace, "Config.")
	if key, ok := tomlKeys[namespace]; ok {
		return key
	}
	return strings.ToLower(namespace)
}
