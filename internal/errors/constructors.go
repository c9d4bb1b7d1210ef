package errors

// ParseFailure marks a malformed or incomplete store record. Scanners skip
// the record and continue.
func ParseFailure(message string) *EngineError {
	return New(CategoryParse, SeverityWarning, message)
}

// WrapParseFailure wraps a decode error as a parse failure.
func WrapParseFailure(err error, message string) *EngineError {
	return Wrap(err, CategoryParse, SeverityWarning, message)
}

// ToolUnavailable marks a missing or unopenable query database. Extractors
// advance to the next fallback strategy.
func ToolUnavailable(message string) *EngineError {
	return New(CategoryTool, SeverityWarning, message)
}

// WrapToolUnavailable wraps an open/exec error as tool unavailability.
func WrapToolUnavailable(err error, message string) *EngineError {
	return Wrap(err, CategoryTool, SeverityWarning, message)
}

// TargetMissing marks a workspace whose target path vanished.
func TargetMissing(uri string) *EngineError {
	return New(CategoryTarget, SeverityWarning, "workspace target missing").
		WithContext("uri", uri)
}

// StoreWriteFailure wraps a failed archive, delete, or rewrite of an
// on-disk store record.
func StoreWriteFailure(err error, message string) *EngineError {
	return Wrap(err, CategoryStore, SeverityError, message)
}

// ResolutionFailure marks that no active editor could be determined.
func ResolutionFailure(message string) *EngineError {
	return New(CategoryResolution, SeverityError, message)
}

// ValidationError creates a new validation error.
func ValidationError(message string) *EngineError {
	return New(CategoryValidation, SeverityWarning, message)
}

// ConfigError wraps a configuration load or save failure.
func ConfigError(err error, message string) *EngineError {
	return Wrap(err, CategoryConfig, SeverityError, message)
}

// InternalError creates a new internal error.
func InternalError(message string) *EngineError {
	return New(CategoryInternal, SeverityError, message)
}
