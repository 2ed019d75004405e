package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
)

type moveInput struct {
	MessageID string
	Folder    string
}

// MoveMessage moves a message to another folder or label. A destination that
// does not exist is reported in the response, not as an error.
func MoveMessage(p mailbox.Provider) Operation[moveInput] {
	return Operation[moveInput]{
		Name:        "move-message",
		Description: "Move a message to a folder or label. Response is \"success\", or \"failed.\" when the destination does not exist.",
		Args: []Arg{
			messageIDArg(p),
			{Name: argFolderName, Kind: StringArg, Required: true, Description: "Destination folder or label name."},
		},
		Decode: func(args map[string]any) (moveInput, error) {
			in := moveInput{MessageID: stringArg(args, argMessageID), Folder: stringArg(args, argFolderName)}
			if in.Folder == "" {
				return in, fmt.Errorf("%s is required", argFolderName)
			}
			return in, nil
		},
		Execute: func(ctx context.Context, in moveInput, run Run) (catalog.Result, error) {
			err := p.Move(ctx, in.MessageID, in.Folder)
			switch {
			case errors.Is(err, mailbox.ErrFolderNotFound):
				return catalog.Success(map[string]any{"Response": "failed."}), nil
			case messageMissing(err):
				return noMessage(run, in.MessageID), nil
			case err != nil:
				return catalog.Result{}, err
			}
			return catalog.Success(map[string]any{"Response": "success"}), nil
		},
	}
}
