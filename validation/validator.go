// Package validation checks operation inputs field by field and phrases the
// messages used to ask a caller for corrected values.
package validation

import (
	"context"
	"strconv"
	"strings"
)

// Field identifies which validator applies to a raw input value.
type Field string

const (
	MessageID      Field = "MessageId"
	ToAddresses    Field = "ToAddresses"
	CcAddresses    Field = "CcAddresses"
	BccAddresses   Field = "BccAddresses"
	ReplyToAddress Field = "ReplyToAddress"
	FolderName     Field = "FolderName"
	Label          Field = "Label"
	PageNumber     Field = "PageNumber"
	PageSize       Field = "PageSize"
	Query          Field = "Query"
)

// Values holds the raw text of every field an operation supplies.
type Values map[Field]string

// Check is the result of validating one value. It belongs to a single call.
type Check struct {
	Valid bool
	// Invalid lists the rejected parts of a multi-valued input.
	Invalid []string
	// Data carries anything the validator derived that execution can reuse.
	Data any
}

// Validator checks one kind of field.
//
// Validate returns an error only when the check itself could not be carried
// out, for example because the account needs authorization. A malformed value
// is reported through Check.Valid.
type Validator interface {
	Validate(ctx context.Context, raw string, others Values) (Check, error)
	// FetchPrompt is shown before the caller supplies a corrected value.
	FetchPrompt() string
	// Confirmation explains why raw was rejected.
	Confirmation(raw string, c Check) string
	// ErrorMessage is the terminal message used when no retry happens.
	ErrorMessage(raw string, c Check) string
}

// FormatNumber prints raw as a number without trailing zeros when it parses,
// and unchanged otherwise.
func FormatNumber(raw string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
