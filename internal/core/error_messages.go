package core

// error_messages.go maps technical errors to coded, operator friendly
// messages. Operators quote the code to support.
//
//	IMP001-IMP009  import flow (validation, unresolved, incomplete lookup)
//	LKP001         duplicate lookup failed
//	SES001-SES004  session state
//	PRF001         unknown profile
//	FILE001-FILE006 uploaded file problems
//	DB001-DB007    database errors
//	RATE001        throttling
//	ERR000         anything else; check the logs for the technical error
//
// Sentinel errors are matched with errors.Is first. Anything else falls
// back to case-insensitive substring patterns, first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage is an error as shown to an operator.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrValidationFailed, UserMessage{
		Message: "The file has validation errors",
		Action:  "Fix the listed rows and upload the file again",
		Code:    "IMP001",
	}},
	{ErrUnresolved, UserMessage{
		Message: "Some duplicates have no decision yet",
		Action:  "Choose skip or overwrite for every duplicate before committing",
		Code:    "IMP002",
	}},
	{ErrClassificationIncomplete, UserMessage{
		Message: "Duplicate check has not completed",
		Action:  "Retry the duplicate check before committing",
		Code:    "IMP003",
	}},
	{ErrInvalidAction, UserMessage{
		Message: "Unknown duplicate action",
		Action:  "Use skip or overwrite",
		Code:    "IMP004",
	}},
	{ErrResolutionLocked, UserMessage{
		Message: "Decisions cannot change once the commit has started",
		Action:  "Wait for the commit to finish",
		Code:    "IMP005",
	}},
	{ErrNothingToReview, UserMessage{
		Message: "There are no more duplicates to review",
		Action:  "Commit the import or change a decision with apply-all",
		Code:    "IMP006",
	}},
	{ErrNoIdenticalPolicy, UserMessage{
		Message: "No default is configured for identical duplicates",
		Action:  "Choose skip or overwrite for identical duplicates",
		Code:    "IMP007",
	}},
	{ErrNoRecords, UserMessage{
		Message: "The file has no rows to import",
		Action:  "Check that the key column is present and filled in",
		Code:    "IMP008",
	}},
	{ErrTooManyCommits, UserMessage{
		Message: "The system is busy with other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP009",
	}},
	{ErrLookupFailed, UserMessage{
		Message: "Could not check existing records for duplicates",
		Action:  "Retry the duplicate check; nothing has been written",
		Code:    "LKP001",
	}},
	{ErrSessionNotFound, UserMessage{
		Message: "Import session not found",
		Action:  "The session may have expired. Please upload the file again",
		Code:    "SES001",
	}},
	{ErrSessionInFlight, UserMessage{
		Message: "You already have an import in progress",
		Action:  "Finish or discard the current import first",
		Code:    "SES002",
	}},
	{ErrSessionBusy, UserMessage{
		Message: "This import is being committed",
		Action:  "Wait for the commit to finish",
		Code:    "SES003",
	}},
	{ErrSessionCommitted, UserMessage{
		Message: "This import has already been committed",
		Action:  "Upload a new file to import again",
		Code:    "SES004",
	}},
	{ErrUnknownProfile, UserMessage{
		Message: "Unknown import type",
		Action:  "Pick one of the listed import profiles",
		Code:    "PRF001",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is ordered: specific patterns before general ones.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "A record with this key already exists",
		Action:  "Run the import again so the duplicate can be resolved",
		Code:    "DB001",
	}},
	{"violates unique", UserMessage{
		Message: "A value must be unique but already exists",
		Action:  "Check the file for duplicate values",
		Code:    "DB002",
	}},
	{"violates foreign key", UserMessage{
		Message: "A referenced record does not exist",
		Action:  "Import the referenced records first",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB006",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB006",
	}},
	{"file too large", UserMessage{
		Message: "File exceeds the maximum size",
		Action:  "Split the file into smaller parts",
		Code:    "FILE001",
	}},
	{"unsupported file type", UserMessage{
		Message: "Unsupported file type",
		Action:  "Upload a .csv or .xlsx file",
		Code:    "FILE002",
	}},
	{"invalid csv", UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with consistent columns",
		Code:    "FILE003",
	}},
	{"invalid xlsx", UserMessage{
		Message: "File is not a valid Excel workbook",
		Action:  "Re-save the file as .xlsx",
		Code:    "FILE004",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a file to upload",
		Code:    "FILE005",
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a file with a header row and data rows",
		Code:    "FILE006",
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }

func (e *UserError) Unwrap() error { return e.Technical }

// NewUserError maps err; it returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
