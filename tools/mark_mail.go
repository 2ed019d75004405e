package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
)

type markInput struct {
	MessageID string
	Mark      mailbox.Mark
}

func markNames() []string {
	names := make([]string, 0, len(mailbox.Marks))
	for _, m := range mailbox.Marks {
		names = append(names, string(m))
	}
	return names
}

// MarkMail changes the read, starred or importance state of a message.
func MarkMail(p mailbox.Provider) Operation[markInput] {
	return Operation[markInput]{
		Name:        "mark-mail",
		Description: "Mark a message as read, unread, starred, unstarred, important or not-important.",
		Args: []Arg{
			messageIDArg(p),
			{Name: "mark_as", Kind: StringArg, Required: true, Enum: markNames(), Description: "State to apply."},
		},
		Decode: func(args map[string]any) (markInput, error) {
			in := markInput{MessageID: stringArg(args, argMessageID)}
			mark, ok := mailbox.ParseMark(strings.ToLower(stringArg(args, "mark_as")))
			if !ok {
				return in, fmt.Errorf("mark_as must be one of: %s", strings.Join(markNames(), ", "))
			}
			in.Mark = mark
			return in, nil
		},
		Execute: func(ctx context.Context, in markInput, run Run) (catalog.Result, error) {
			err := p.Mark(ctx, in.MessageID, in.Mark)
			if messageMissing(err) {
				return noMessage(run, in.MessageID), nil
			}
			if err != nil {
				return catalog.Result{}, err
			}
			return catalog.Success(map[string]any{"Response": "success"}), nil
		},
	}
}
