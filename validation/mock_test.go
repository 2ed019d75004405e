package validation

import (
	"context"

	"github.com/rgabriel/mcp-gmail/mailbox"
)

// mockReader implements mailbox.Reader for testing.
type mockReader struct {
	// Return values
	IDs          map[string]bool
	FolderNames  []string
	LabelNames   []string
	SearchResult []mailbox.Email

	// Error injection
	Err error

	// Call tracking
	ExistsCalls int
	SearchCalls int
	LastPage    mailbox.Page
}

func (m *mockReader) MessageExists(ctx context.Context, id string) (bool, error) {
	m.ExistsCalls++
	if m.Err != nil {
		return false, m.Err
	}
	return m.IDs[id], nil
}

func (m *mockReader) Folders(ctx context.Context) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.FolderNames, nil
}

func (m *mockReader) Labels(ctx context.Context) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.LabelNames, nil
}

func (m *mockReader) Search(ctx context.Context, query string, page mailbox.Page) ([]mailbox.Email, error) {
	m.SearchCalls++
	m.LastPage = page
	if m.Err != nil {
		return nil, m.Err
	}
	return m.SearchResult, nil
}

func (m *mockReader) ListByLabel(ctx context.Context, name string, page mailbox.Page) ([]mailbox.Email, error) {
	return nil, m.Err
}

func (m *mockReader) GetMessage(ctx context.Context, id string) (*mailbox.Email, error) {
	return nil, m.Err
}

func (m *mockReader) GetRaw(ctx context.Context, id string) ([]byte, error) {
	return nil, m.Err
}
