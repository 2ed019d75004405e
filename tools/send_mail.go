package tools

import (
	"context"
	"errors"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/rgabriel/mcp-gmail/validation"
)

type sendInput struct {
	To, CC, BCC, ReplyTo []string
	Subject, Body        string
	HTML                 bool
	Attachments          []mailbox.Attachment
}

func decodeSend(args map[string]any) (sendInput, error) {
	in := sendInput{
		To:      listArg(args, argTo),
		CC:      listArg(args, argCC),
		BCC:     listArg(args, argBCC),
		ReplyTo: listArg(args, argReplyTo),
		Subject: argText(args[argSubject]),
		Body:    argText(args[argMessage]),
		HTML:    boolArg(args, argHTML),
	}
	if err := validateSubjectSize(in.Subject); err != nil {
		return in, err
	}
	if err := validateBodySize(in.Body); err != nil {
		return in, err
	}
	var err error
	in.Attachments, err = attachmentsArg(args)
	return in, err
}

// SendMail sends a new message from the account.
func SendMail(p mailbox.Provider) Operation[sendInput] {
	return Operation[sendInput]{
		Name:        "send-mail",
		Description: "Send a new email from the connected Gmail account. Recipients may be given as a comma separated string or an array. Returns the Gmail id of the sent message.",
		Args: []Arg{
			toArg(true),
			ccArg(),
			bccArg(),
			{
				Name: argReplyTo, Kind: StringArg,
				Description: "Address replies should go to.",
				Field:       validation.ReplyToAddress,
				Validator:   validation.AddressListValidator{Name: "Reply To"},
			},
			{Name: argSubject, Kind: StringArg, Description: "Subject line."},
			{Name: argMessage, Kind: StringArg, Description: "Message body."},
			htmlArg(),
			attachmentsParam(),
		},
		Decode: decodeSend,
		Execute: func(ctx context.Context, in sendInput, run Run) (catalog.Result, error) {
			return send(ctx, p, run, mailbox.Outgoing{
				From:        p.Address(),
				To:          in.To,
				CC:          in.CC,
				BCC:         in.BCC,
				ReplyTo:     in.ReplyTo,
				Subject:     in.Subject,
				Body:        in.Body,
				HTML:        in.HTML,
				Attachments: in.Attachments,
			})
		},
	}
}

// send submits msg and maps a provider rejection to a business miss.
func send(ctx context.Context, p mailbox.Sender, run Run, msg mailbox.Outgoing) (catalog.Result, error) {
	id, err := p.Send(ctx, msg)
	if errors.Is(err, mailbox.ErrRejected) {
		return run.Miss("Gmail rejected the message. Check the recipients and content."), nil
	}
	if err != nil {
		return catalog.Result{}, err
	}
	return catalog.Success(map[string]any{"Response": "success", "MessageId": id}), nil
}

func toArg(required bool) Arg {
	return Arg{
		Name: argTo, Kind: StringArg, Required: required,
		Description: "Recipient addresses, comma separated.",
		Field:       validation.ToAddresses,
		Validator:   validation.AddressListValidator{Name: "To", Required: required},
	}
}

func ccArg() Arg {
	return Arg{
		Name: argCC, Kind: StringArg,
		Description: "CC addresses, comma separated.",
		Field:       validation.CcAddresses,
		Validator:   validation.AddressListValidator{Name: "Cc"},
	}
}

func bccArg() Arg {
	return Arg{
		Name: argBCC, Kind: StringArg,
		Description: "BCC addresses, comma separated.",
		Field:       validation.BccAddresses,
		Validator:   validation.AddressListValidator{Name: "Bcc"},
	}
}

func htmlArg() Arg {
	return Arg{Name: argHTML, Kind: BoolArg, Description: "Treat the message as HTML."}
}

func attachmentsParam() Arg {
	return Arg{
		Name: argAttachments, Kind: AttachmentsArg,
		Description: "Files to attach, each with filename, mime_type and content_base64.",
	}
}

func messageIDArg(r mailbox.Reader) Arg {
	return Arg{
		Name: argMessageID, Kind: StringArg, Required: true,
		Description: "Gmail message id, as returned by search-mails or the fetch operations.",
		Field:       validation.MessageID,
		Validator:   validation.MessageIDValidator{Reader: r},
	}
}
