package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/rgabriel/mcp-gmail/validation"
)

type searchInput struct {
	Query string
	Page  mailbox.Page
}

// SearchOptions tunes search-mails.
type SearchOptions struct {
	// EmptyIsInvalid treats a query with no matches as invalid input.
	EmptyIsInvalid bool
}

func pageNumberArg() Arg {
	return Arg{
		Name: argPageNumber, Kind: NumberArg,
		Description: "Page to return, from 1 to 15. Defaults to 1.",
		Field:       validation.PageNumber,
		Validator:   validation.RangeValidator{Name: "page number"},
	}
}

func pageSizeArg() Arg {
	return Arg{
		Name: argPageSize, Kind: NumberArg,
		Description: "Messages per page, from 1 to 15. Defaults to 10.",
		Field:       validation.PageSize,
		Validator:   validation.RangeValidator{Name: "page size"},
	}
}

// SearchMails runs a Gmail search query.
func SearchMails(p mailbox.Provider, opts SearchOptions) Operation[searchInput] {
	return Operation[searchInput]{
		Name:        "search-mails",
		Description: "Search the mailbox with Gmail search syntax, for example 'from:alice has:attachment'. Returns one page of matching messages.",
		ReadOnly:    true,
		Args: []Arg{
			{
				Name: argQuery, Kind: StringArg, Required: true,
				Description: "Gmail search query.",
				Field:       validation.Query,
				Validator:   validation.QueryValidator{Reader: p, EmptyIsInvalid: opts.EmptyIsInvalid},
			},
			pageNumberArg(),
			pageSizeArg(),
		},
		Decode: func(args map[string]any) (searchInput, error) {
			page, err := pageArgs(args)
			return searchInput{Query: stringArg(args, argQuery), Page: page}, err
		},
		Execute: func(ctx context.Context, in searchInput, run Run) (catalog.Result, error) {
			if c, ok := run.Report.Check(validation.Query); ok {
				if cached, ok := c.Data.(validation.SearchResult); ok && cached.Page == in.Page {
					return catalog.Success(map[string]any{"Mails": mailList(cached.Mails)}), nil
				}
			}
			mails, err := p.Search(ctx, in.Query, in.Page)
			if errors.Is(err, mailbox.ErrRejected) {
				return run.Miss(fmt.Sprintf("Gmail could not run the search query '%s'.", in.Query)), nil
			}
			if err != nil {
				return catalog.Result{}, err
			}
			return catalog.Success(map[string]any{"Mails": mailList(mails)}), nil
		},
	}
}
