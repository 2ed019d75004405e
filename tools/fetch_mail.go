package tools

import (
	"context"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
)

// FetchMailByID returns one message with its body.
func FetchMailByID(p mailbox.Provider) Operation[string] {
	return Operation[string]{
		Name:        "fetch-mail-by-id",
		Description: "Fetch a single message by id, including its body and attachment metadata.",
		ReadOnly:    true,
		Args:        []Arg{messageIDArg(p)},
		Decode: func(args map[string]any) (string, error) {
			return stringArg(args, argMessageID), nil
		},
		Execute: func(ctx context.Context, id string, run Run) (catalog.Result, error) {
			mail, err := p.GetMessage(ctx, id)
			if messageMissing(err) {
				return noMessage(run, id), nil
			}
			if err != nil {
				return catalog.Result{}, err
			}
			return catalog.Success(map[string]any{"MailDetails": Details(*mail, true)}), nil
		},
	}
}
