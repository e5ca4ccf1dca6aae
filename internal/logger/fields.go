package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
	FieldJobID    = "job_id"
	FieldPlatform = "ats_platform"
	FieldAttempt  = "attempt_id"
	FieldTier     = "resolution_tier"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts key/value pairs into zap fields, dropping entries whose
// key or value is blank after trimming.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}
	return result
}

// WithFields attaches fields to logger. A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// CommonFields describes the generative-text provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// ApplicationFields describes one application attempt.
func ApplicationFields(jobID, platform, attemptID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldJobID, Value: jobID},
		StringField{Key: FieldPlatform, Value: platform},
		StringField{Key: FieldAttempt, Value: attemptID},
	)
}
