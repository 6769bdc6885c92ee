package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/filesmile/backend/internal/models"
)

// UploadCall records one upload made against FakeERP.
type UploadCall struct {
	Form         string
	FormKey      string
	ExtFilesForm string
	UserLogin    string
	Attachment   models.Attachment
}

// FakeERP is an in-memory ERP serving the prefix catalog, document search and
// uploads. Documents are keyed by form entity name and document number.
type FakeERP struct {
	mu sync.Mutex

	Prefixes  []models.FormPrefixInfo
	Documents map[string]models.MatchedDocument

	ListErr   error
	SearchErr error
	// UploadErr fails uploads whose file name contains the map key.
	UploadErr map[string]error

	Searches    []string
	Attachments []UploadCall
	Exports     []UploadCall
}

// NewFakeERP creates an empty fake.
func NewFakeERP() *FakeERP {
	return &FakeERP{
		Documents: make(map[string]models.MatchedDocument),
		UploadErr: make(map[string]error),
	}
}

// AddDocument registers a document for SearchDocuments.
func (f *FakeERP) AddDocument(form, docNumber string, doc models.MatchedDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Documents[form+"|"+docNumber] = doc
}

func (f *FakeERP) ListFormPrefixes(ctx context.Context) ([]models.FormPrefixInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]models.FormPrefixInfo(nil), f.Prefixes...), nil
}

func (f *FakeERP) SearchDocuments(ctx context.Context, form models.FormPrefixInfo, docNumber string) ([]models.MatchedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches = append(f.Searches, form.EntityName+"|"+docNumber)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if doc, ok := f.Documents[form.EntityName+"|"+docNumber]; ok {
		return []models.MatchedDocument{doc}, nil
	}
	return nil, nil
}

func (f *FakeERP) uploadErr(name string) error {
	for k, err := range f.UploadErr {
		if strings.Contains(name, k) {
			return err
		}
	}
	return nil
}

func (f *FakeERP) UploadAttachment(ctx context.Context, form, formKey, extFilesForm string, att models.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr(att.FileName); err != nil {
		return err
	}
	f.Attachments = append(f.Attachments, UploadCall{Form: form, FormKey: formKey, ExtFilesForm: extFilesForm, Attachment: att})
	return nil
}

func (f *FakeERP) UploadExport(ctx context.Context, userLogin string, att models.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr(att.FileName); err != nil {
		return err
	}
	f.Exports = append(f.Exports, UploadCall{UserLogin: userLogin, Attachment: att})
	return nil
}

// Uploads returns the number of successful attachment and export uploads.
func (f *FakeERP) Uploads() (attachments, exports int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Attachments), len(f.Exports)
}
