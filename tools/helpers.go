package tools

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
)

// argText renders an argument the way a caller would have typed it. Arrays
// are joined with commas.
func argText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := argText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	default:
		return fmt.Sprint(t)
	}
}

func stringArg(args map[string]any, key string) string {
	return strings.TrimSpace(argText(args[key]))
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// listArg splits a comma separated argument into its non-blank entries. No
// address validation happens here.
func listArg(args map[string]any, key string) []string {
	var out []string
	for _, seg := range strings.Split(argText(args[key]), ",") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// messageMissing reports whether a lookup by message id failed because the
// id names no message. Gmail rejects malformed ids instead of reporting them
// missing.
func messageMissing(err error) bool {
	return errors.Is(err, mailbox.ErrNotFound) || errors.Is(err, mailbox.ErrRejected)
}

func noMessage(run Run, id string) catalog.Result {
	return run.Miss(fmt.Sprintf("No message found with ID '%s'.", id))
}

// pageArg reads a paging argument, returning def when it is absent.
func pageArg(args map[string]any, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil || argText(raw) == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(argText(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return int(v), nil
}

func pageArgs(args map[string]any) (mailbox.Page, error) {
	number, err := pageArg(args, argPageNumber, mailbox.DefaultPage.Number)
	if err != nil {
		return mailbox.Page{}, err
	}
	size, err := pageArg(args, argPageSize, mailbox.DefaultPage.Size)
	if err != nil {
		return mailbox.Page{}, err
	}
	return mailbox.Page{Number: number, Size: size}, nil
}

// attachmentsArg decodes [{filename, mime_type, content_base64}] entries.
func attachmentsArg(args map[string]any) ([]mailbox.Attachment, error) {
	val, ok := args[argAttachments]
	if !ok || val == nil {
		return nil, nil
	}
	items, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of objects", argAttachments)
	}

	var total int
	out := make([]mailbox.Attachment, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", argAttachments, i)
		}
		name := argText(m["filename"])
		if err := validateFilename(name); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", argAttachments, i, err)
		}
		content, err := base64.StdEncoding.DecodeString(argText(m["content_base64"]))
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: content_base64 is not valid base64", argAttachments, i)
		}
		total += len(content)
		if err := validateAttachmentSize(total); err != nil {
			return nil, err
		}
		out = append(out, mailbox.Attachment{
			Filename: name,
			MIMEType: argText(m["mime_type"]),
			Size:     int64(len(content)),
			Content:  content,
		})
	}
	return out, nil
}
