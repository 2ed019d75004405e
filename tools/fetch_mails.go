package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/rgabriel/mcp-gmail/validation"
)

type listInput struct {
	Name string
	Page mailbox.Page
}

// FetchMailsByLabel lists one page of messages under a user label.
func FetchMailsByLabel(p mailbox.Provider) Operation[listInput] {
	return fetchMails(p, "fetch-mails-by-label", argLabel, "label", validation.Label, p.Labels)
}

// FetchMailsByFolder lists one page of messages in a system folder such as
// INBOX or SPAM.
func FetchMailsByFolder(p mailbox.Provider) Operation[listInput] {
	return fetchMails(p, "fetch-mails-by-folder", argFolderName, "folder", validation.FolderName, p.Folders)
}

func fetchMails(p mailbox.Provider, name, arg, kind string, field validation.Field, list validation.NameLister) Operation[listInput] {
	return Operation[listInput]{
		Name:        name,
		Description: fmt.Sprintf("List the newest messages in a %s, one page at a time.", kind),
		ReadOnly:    true,
		Args: []Arg{
			{
				Name: arg, Kind: StringArg, Required: true,
				Description: fmt.Sprintf("Exact %s name.", kind),
				Field:       field,
				Validator:   validation.NameValidator{Kind: kind, List: list},
			},
			pageNumberArg(),
			pageSizeArg(),
		},
		Decode: func(args map[string]any) (listInput, error) {
			page, err := pageArgs(args)
			return listInput{Name: stringArg(args, arg), Page: page}, err
		},
		Execute: func(ctx context.Context, in listInput, run Run) (catalog.Result, error) {
			mails, err := p.ListByLabel(ctx, in.Name, in.Page)
			if errors.Is(err, mailbox.ErrFolderNotFound) {
				return run.Miss(fmt.Sprintf("No %s named '%s' exists.", kind, in.Name)), nil
			}
			if err != nil {
				return catalog.Result{}, err
			}
			return catalog.Success(map[string]any{"Mails": mailList(mails)}), nil
		},
	}
}
