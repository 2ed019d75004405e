package tools

import (
	"context"
	"fmt"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
)

type forwardInput struct {
	MessageID   string
	To, CC, BCC []string
	Note        string
}

func decodeForward(args map[string]any) (forwardInput, error) {
	in := forwardInput{
		MessageID: stringArg(args, argMessageID),
		To:        listArg(args, argTo),
		CC:        listArg(args, argCC),
		BCC:       listArg(args, argBCC),
		Note:      argText(args[argMessage]),
	}
	return in, validateBodySize(in.Note)
}

// ForwardMail forwards an existing message, attachments included.
func ForwardMail(p mailbox.Provider) Operation[forwardInput] {
	return Operation[forwardInput]{
		Name:        "forward-mail",
		Description: "Forward an existing message, including its attachments, with an optional note placed above it.",
		Args: []Arg{
			messageIDArg(p),
			toArg(true),
			ccArg(),
			bccArg(),
			{Name: argMessage, Kind: StringArg, Description: "Note placed above the forwarded message."},
		},
		Decode: decodeForward,
		Execute: func(ctx context.Context, in forwardInput, run Run) (catalog.Result, error) {
			raw, err := p.GetRaw(ctx, in.MessageID)
			if messageMissing(err) {
				return noMessage(run, in.MessageID), nil
			}
			if err != nil {
				return catalog.Result{}, err
			}
			original, err := mailbox.ParseRaw(raw)
			if err != nil {
				return catalog.Result{}, fmt.Errorf("failed to parse message %s: %w", in.MessageID, err)
			}
			return send(ctx, p, run, mailbox.Forward(original, p.Address(), in.To, in.CC, in.BCC, in.Note))
		},
	}
}
