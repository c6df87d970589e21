package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/trial-balance-export/internal/service"
)

// MockUploader is a mock implementation of service.Uploader for testing.
type MockUploader struct {
	UploadFunc      func(ctx context.Context, file service.UploadFile) (*service.UploadedFile, error)
	UploadCalls     []UploadCall
	UploadCallCount int
	mu              sync.Mutex
}

// UploadCall represents a single call to Upload.
type UploadCall struct {
	Error error
	File  service.UploadFile
}

// NewMockUploader creates a new mock uploader.
func NewMockUploader() *MockUploader {
	return &MockUploader{
		UploadCalls: make([]UploadCall, 0),
	}
}

// Upload implements the Uploader interface. Without UploadFunc it returns
// a sequential id.
func (m *MockUploader) Upload(ctx context.Context, file service.UploadFile) (*service.UploadedFile, error) {
	m.mu.Lock()
	m.UploadCallCount++
	n := m.UploadCallCount
	fn := m.UploadFunc
	m.mu.Unlock()

	var (
		out *service.UploadedFile
		err error
	)
	if fn != nil {
		out, err = fn(ctx, file)
	} else {
		out = &service.UploadedFile{
			ID:       fmt.Sprintf("mock-%d", n),
			Name:     file.Name,
			MIMEType: file.MIMEType,
			Link:     "https://drive.example/" + file.Name,
		}
	}

	m.mu.Lock()
	m.UploadCalls = append(m.UploadCalls, UploadCall{File: file, Error: err})
	m.mu.Unlock()

	return out, err
}

// GetUploadCalls returns a copy of all upload calls.
func (m *MockUploader) GetUploadCalls() []UploadCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]UploadCall, len(m.UploadCalls))
	copy(calls, m.UploadCalls)
	return calls
}

// Names returns the uploaded file names in call order.
func (m *MockUploader) Names() []string {
	calls := m.GetUploadCalls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.File.Name
	}
	return names
}

// SetUploadError configures the mock to fail every upload.
func (m *MockUploader) SetUploadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UploadFunc = func(_ context.Context, _ service.UploadFile) (*service.UploadedFile, error) {
		return nil, err
	}
}
