package tools

import (
	"context"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
)

type replyInput struct {
	MessageID   string
	CC, BCC     []string
	Body        string
	HTML        bool
	All         bool
	Attachments []mailbox.Attachment
}

func decodeReply(args map[string]any) (replyInput, error) {
	in := replyInput{
		MessageID: stringArg(args, argMessageID),
		CC:        listArg(args, argCC),
		BCC:       listArg(args, argBCC),
		Body:      argText(args[argMessage]),
		HTML:      boolArg(args, argHTML),
		All:       boolArg(args, "reply_all"),
	}
	if err := validateBodySize(in.Body); err != nil {
		return in, err
	}
	var err error
	in.Attachments, err = attachmentsArg(args)
	return in, err
}

// ReplyToMail replies to an existing message in its thread.
func ReplyToMail(p mailbox.Provider) Operation[replyInput] {
	return Operation[replyInput]{
		Name:        "reply-to-mail",
		Description: "Reply to an existing message. The reply goes to the original sender, or to everyone on the message with reply_all, and stays in the same thread.",
		Args: []Arg{
			messageIDArg(p),
			ccArg(),
			bccArg(),
			{Name: argMessage, Kind: StringArg, Description: "Reply body."},
			htmlArg(),
			{Name: "reply_all", Kind: BoolArg, Description: "Also reply to every other recipient of the original message."},
			attachmentsParam(),
		},
		Decode: decodeReply,
		Execute: func(ctx context.Context, in replyInput, run Run) (catalog.Result, error) {
			original, err := p.GetMessage(ctx, in.MessageID)
			if messageMissing(err) {
				return noMessage(run, in.MessageID), nil
			}
			if err != nil {
				return catalog.Result{}, err
			}

			msg := mailbox.Reply(original, p.Address(), in.Body, in.All)
			msg.CC = append(msg.CC, in.CC...)
			msg.BCC = in.BCC
			msg.HTML = in.HTML
			msg.Attachments = in.Attachments
			return send(ctx, p, run, msg)
		},
	}
}
