package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Structured log keys shared by every component.
const (
	FieldRequestID   = "request_id"
	FieldDirection   = "direction"
	FieldQueryID     = "query_id"
	FieldCandidateID = "candidate_id"
	FieldJobID       = "job_id"
	FieldProvider    = "ai_provider"
	FieldModel       = "ai_model"
)

// StringField is a key/value pair that is dropped when either side is blank.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the pairs into zap fields, trimming both sides and
// skipping blank ones so entries stay compact when an ID is unknown.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key, value := strings.TrimSpace(field.Key), strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}
	return result
}

// WithFields attaches the fields to the logger. A nil logger becomes a no-op one.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// PairFields identify a (candidate, job) pair.
func PairFields(candidateID, jobID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldCandidateID, Value: candidateID},
		StringField{Key: FieldJobID, Value: jobID},
	)
}

// WithRequest scopes the logger to one recommendation call.
func WithRequest(logger *zap.Logger, requestID, direction, queryID string) *zap.Logger {
	return WithFields(logger, StringFields(
		StringField{Key: FieldRequestID, Value: requestID},
		StringField{Key: FieldDirection, Value: direction},
		StringField{Key: FieldQueryID, Value: queryID},
	)...)
}

// WithService attaches the provider and model of an external AI service.
func WithService(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)...)
}
