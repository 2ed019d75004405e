package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"

	"github.com/rgabriel/mcp-gmail/mailbox"
)

const (
	minPage = 1
	maxPage = 15
)

// MessageIDValidator accepts ids of messages that exist in the account.
type MessageIDValidator struct {
	Reader mailbox.Reader
}

func (v MessageIDValidator) Validate(ctx context.Context, raw string, _ Values) (Check, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return Check{}, nil
	}
	ok, err := v.Reader.MessageExists(ctx, id)
	if err != nil {
		if errors.Is(err, mailbox.ErrNotFound) || errors.Is(err, mailbox.ErrRejected) {
			return Check{}, nil
		}
		return Check{}, fmt.Errorf("failed to look up message %s: %w", id, err)
	}
	return Check{Valid: ok}, nil
}

func (MessageIDValidator) FetchPrompt() string {
	return "Please enter the ID of an existing message."
}

func (MessageIDValidator) Confirmation(raw string, _ Check) string {
	if strings.TrimSpace(raw) == "" {
		return "No message ID was provided. Would you like to enter one?"
	}
	return fmt.Sprintf("The message ID '%s' does not match any message in the mailbox. Would you like to enter a different message ID?", raw)
}

func (MessageIDValidator) ErrorMessage(raw string, _ Check) string {
	if strings.TrimSpace(raw) == "" {
		return "Message ID is required."
	}
	return fmt.Sprintf("Invalid message ID '%s'.", raw)
}

// AddressListValidator accepts a comma separated list of email addresses.
type AddressListValidator struct {
	// Name is how the field is referred to in messages, e.g. "To".
	Name     string
	Required bool
}

func (v AddressListValidator) Validate(_ context.Context, raw string, _ Values) (Check, error) {
	valid, invalid := SplitAddresses(raw)
	if v.Required && len(valid) == 0 && len(invalid) == 0 {
		return Check{}, nil
	}
	return Check{Valid: len(invalid) == 0, Invalid: invalid, Data: valid}, nil
}

func (v AddressListValidator) FetchPrompt() string {
	return fmt.Sprintf("Please enter the %s email addresses, separated by commas.", v.Name)
}

func (v AddressListValidator) Confirmation(_ string, c Check) string {
	if len(c.Invalid) == 0 {
		return fmt.Sprintf("No email address was provided in the %s field. Would you like to enter one?", v.Name)
	}
	return fmt.Sprintf("The following email addresses in the %s field are invalid: %s. Would you like to re-enter them?", v.Name, strings.Join(c.Invalid, ", "))
}

func (v AddressListValidator) ErrorMessage(_ string, c Check) string {
	if len(c.Invalid) == 0 {
		return fmt.Sprintf("The %s field requires at least one email address.", v.Name)
	}
	return fmt.Sprintf("Invalid email addresses in the %s field: %s.", v.Name, strings.Join(c.Invalid, ", "))
}

// SplitAddresses splits raw on commas and sorts the non-blank segments into
// valid and invalid addresses, preserving input order.
func SplitAddresses(raw string) (valid, invalid []string) {
	for _, seg := range strings.Split(raw, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if validAddress(seg) {
			valid = append(valid, seg)
		} else {
			invalid = append(invalid, seg)
		}
	}
	return valid, invalid
}

func validAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 {
		return false
	}
	domain := addr.Address[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// NameLister returns the names a NameValidator accepts.
type NameLister func(ctx context.Context) ([]string, error)

// NameValidator accepts the exact name of an existing folder or label.
type NameValidator struct {
	// Kind is "folder" or "label".
	Kind string
	List NameLister
}

func (v NameValidator) Validate(ctx context.Context, raw string, _ Values) (Check, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return Check{}, nil
	}
	names, err := v.List(ctx)
	if err != nil {
		return Check{}, fmt.Errorf("failed to list %ss: %w", v.Kind, err)
	}
	for _, n := range names {
		if n == name {
			return Check{Valid: true, Data: name}, nil
		}
	}
	return Check{Data: names}, nil
}

func (v NameValidator) FetchPrompt() string {
	return fmt.Sprintf("Please enter the name of an existing %s.", v.Kind)
}

func (v NameValidator) Confirmation(raw string, _ Check) string {
	if strings.TrimSpace(raw) == "" {
		return fmt.Sprintf("No %s name was provided. Would you like to enter one?", v.Kind)
	}
	return fmt.Sprintf("The %s '%s' does not exist in the mailbox. Would you like to enter a different %s?", v.Kind, strings.TrimSpace(raw), v.Kind)
}

func (v NameValidator) ErrorMessage(raw string, _ Check) string {
	if strings.TrimSpace(raw) == "" {
		return fmt.Sprintf("A %s name is required.", v.Kind)
	}
	return fmt.Sprintf("Invalid %s '%s'.", v.Kind, strings.TrimSpace(raw))
}

// RangeValidator accepts numbers within the paging bounds.
type RangeValidator struct {
	// Name is how the field is referred to in messages, e.g. "page number".
	Name string
}

func (v RangeValidator) Validate(_ context.Context, raw string, _ Values) (Check, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return Check{}, nil
	}
	return Check{Valid: n >= minPage && n <= maxPage, Data: n}, nil
}

func (v RangeValidator) FetchPrompt() string {
	return fmt.Sprintf("Please enter a %s between %d and %d.", v.Name, minPage, maxPage)
}

func (v RangeValidator) Confirmation(raw string, _ Check) string {
	return fmt.Sprintf("The %s '%s' is not valid. It must be a number between %d and %d. Would you like to enter a different %s?", v.Name, FormatNumber(raw), minPage, maxPage, v.Name)
}

func (v RangeValidator) ErrorMessage(raw string, _ Check) string {
	return fmt.Sprintf("Invalid %s '%s': must be between %d and %d.", v.Name, FormatNumber(raw), minPage, maxPage)
}

// QueryValidator accepts a non-blank query that the account can execute. The
// results of that search are returned in Check.Data.
type QueryValidator struct {
	Reader mailbox.Reader
	// EmptyIsInvalid rejects queries that match nothing.
	EmptyIsInvalid bool
}

func (v QueryValidator) Validate(ctx context.Context, raw string, others Values) (Check, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return Check{}, nil
	}
	page := PageFrom(others)
	mails, err := v.Reader.Search(ctx, q, page)
	if err != nil {
		if errors.Is(err, mailbox.ErrRejected) {
			return Check{}, nil
		}
		return Check{}, fmt.Errorf("failed to search: %w", err)
	}
	if len(mails) == 0 && v.EmptyIsInvalid {
		return Check{Data: SearchResult{Page: page}}, nil
	}
	return Check{Valid: true, Data: SearchResult{Page: page, Mails: mails}}, nil
}

func (QueryValidator) FetchPrompt() string {
	return "Please enter a search query, for example 'from:alice subject:invoice'."
}

func (QueryValidator) Confirmation(raw string, _ Check) string {
	if strings.TrimSpace(raw) == "" {
		return "No search query was provided. Would you like to enter one?"
	}
	return fmt.Sprintf("The search query '%s' did not match any messages. Would you like to try a different query?", raw)
}

func (QueryValidator) ErrorMessage(raw string, _ Check) string {
	if strings.TrimSpace(raw) == "" {
		return "A search query is required."
	}
	return fmt.Sprintf("No messages found for query '%s'.", raw)
}

// SearchResult is the search a QueryValidator already ran.
type SearchResult struct {
	Page  mailbox.Page
	Mails []mailbox.Email
}

// PageFrom reads the paging fields from values, falling back to
// mailbox.DefaultPage for anything missing or out of range.
func PageFrom(values Values) mailbox.Page {
	page := mailbox.DefaultPage
	if n, ok := pageValue(values, PageNumber); ok {
		page.Number = n
	}
	if n, ok := pageValue(values, PageSize); ok {
		page.Size = n
	}
	return page
}

func pageValue(values Values, f Field) (int, bool) {
	raw, ok := values[f]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || n < minPage || n > maxPage {
		return 0, false
	}
	return int(n), true
}
