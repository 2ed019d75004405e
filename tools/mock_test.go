package tools

import (
	"context"
	"sync"
	"time"

	"github.com/rgabriel/mcp-gmail/mailbox"
)

// MockProvider implements mailbox.Provider for testing.
type MockProvider struct {
	// Return values
	Messages     map[string]*mailbox.Email
	Raw          map[string][]byte
	FolderNames  []string
	LabelNames   []string
	SearchResult []mailbox.Email
	ListResult   []mailbox.Email
	SentID       string

	// Error injection
	Err       error
	SendErr   error
	SendDelay time.Duration

	// Call tracking
	mu          sync.Mutex
	LastMethod  string
	LastQuery   string
	LastPage    mailbox.Page
	LastName    string
	LastMark    mailbox.Mark
	LastSent    mailbox.Outgoing
	SearchCalls int
	SendCalls   int
	CallCount   int
}

func (m *MockProvider) track(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastMethod = method
	m.CallCount++
}

func (m *MockProvider) Address() string { return "me@example.com" }

func (m *MockProvider) MessageExists(ctx context.Context, id string) (bool, error) {
	m.track("MessageExists")
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.Messages[id]
	return ok, nil
}

func (m *MockProvider) Folders(ctx context.Context) ([]string, error) {
	m.track("Folders")
	if m.Err != nil {
		return nil, m.Err
	}
	return m.FolderNames, nil
}

func (m *MockProvider) Labels(ctx context.Context) ([]string, error) {
	m.track("Labels")
	if m.Err != nil {
		return nil, m.Err
	}
	return m.LabelNames, nil
}

func (m *MockProvider) Search(ctx context.Context, query string, page mailbox.Page) ([]mailbox.Email, error) {
	m.track("Search")
	m.mu.Lock()
	m.SearchCalls++
	m.LastQuery = query
	m.LastPage = page
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.SearchResult, nil
}

func (m *MockProvider) ListByLabel(ctx context.Context, name string, page mailbox.Page) ([]mailbox.Email, error) {
	m.track("ListByLabel")
	m.LastName = name
	m.LastPage = page
	if m.Err != nil {
		return nil, m.Err
	}
	if !m.knownName(name) {
		return nil, mailbox.ErrFolderNotFound
	}
	return m.ListResult, nil
}

func (m *MockProvider) GetMessage(ctx context.Context, id string) (*mailbox.Email, error) {
	m.track("GetMessage")
	if m.Err != nil {
		return nil, m.Err
	}
	mail, ok := m.Messages[id]
	if !ok {
		return nil, mailbox.ErrMessageNotFound
	}
	return mail, nil
}

func (m *MockProvider) GetRaw(ctx context.Context, id string) ([]byte, error) {
	m.track("GetRaw")
	if m.Err != nil {
		return nil, m.Err
	}
	raw, ok := m.Raw[id]
	if !ok {
		return nil, mailbox.ErrMessageNotFound
	}
	return raw, nil
}

func (m *MockProvider) Move(ctx context.Context, id, folder string) error {
	m.track("Move")
	m.LastName = folder
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Messages[id]; !ok {
		return mailbox.ErrMessageNotFound
	}
	if !m.knownName(folder) {
		return mailbox.ErrFolderNotFound
	}
	return nil
}

func (m *MockProvider) Mark(ctx context.Context, id string, mark mailbox.Mark) error {
	m.track("Mark")
	m.LastMark = mark
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Messages[id]; !ok {
		return mailbox.ErrMessageNotFound
	}
	return nil
}

func (m *MockProvider) Send(ctx context.Context, msg mailbox.Outgoing) (string, error) {
	m.track("Send")
	m.mu.Lock()
	m.SendCalls++
	m.LastSent = msg
	m.mu.Unlock()
	if m.SendDelay > 0 {
		time.Sleep(m.SendDelay)
	}
	if m.SendErr != nil {
		return "", m.SendErr
	}
	return m.SentID, nil
}

func (m *MockProvider) knownName(name string) bool {
	for _, n := range append(append([]string{}, m.FolderNames...), m.LabelNames...) {
		if n == name {
			return true
		}
	}
	return false
}

func newMock() *MockProvider {
	return &MockProvider{
		Messages: map[string]*mailbox.Email{
			"18c2a": {
				ID:        "18c2a",
				ThreadID:  "t-1",
				From:      "Alice <alice@example.com>",
				To:        []string{"me@example.com", "dave@example.com"},
				Subject:   "Quarterly numbers",
				BodyPlain: "See attached.",
				MessageID: "<abc@mail.example.com>",
			},
		},
		FolderNames: []string{"INBOX", "SPAM", "TRASH"},
		LabelNames:  []string{"Work", "Receipts"},
		SentID:      "sent-1",
	}
}
