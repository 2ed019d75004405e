package tools

import "github.com/rgabriel/mcp-gmail/mailbox"

// Catalog returns every operation served for p, in listing order.
func Catalog(p mailbox.Provider, search SearchOptions) []Registrar {
	return []Registrar{
		SendMail(p),
		ReplyToMail(p),
		ForwardMail(p),
		MoveMessage(p),
		MarkMail(p),
		SearchMails(p, search),
		FetchMailByID(p),
		FetchMailsByLabel(p),
		FetchMailsByFolder(p),
	}
}
