package erp

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/filesmile/backend/internal/models"
)

const exportEntity = "EXTFILESFILESMILE"

func suffix(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "bin"
	}
	return ext
}

// UploadAttachment adds a file to a document's attachments subform.
func (c *Client) UploadAttachment(ctx context.Context, form, formKey, extFilesForm string, att models.Attachment) error {
	if extFilesForm == "" {
		extFilesForm = models.DefaultExtFilesForm
	}
	body := map[string]string{
		"EXTFILEDES":  att.Description,
		"EXTFILENAME": EncodeDataURL(att.Data, MimeTypeFor(att.FileName)),
		"SUFFIX":      "." + suffix(att.FileName),
	}
	path := form + FormatKey(formKey) + "/" + extFilesForm + "_SUBFORM"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("attach %s to %s%s: %w", att.FileName, form, formKey, err)
	}
	c.log.Info().Str("form", form).Str("key", formKey).Str("file", att.FileName).Int("bytes", len(att.Data)).Msg("attachment uploaded")
	return nil
}

// UploadExport places a file in the export staging form for userLogin.
func (c *Client) UploadExport(ctx context.Context, userLogin string, att models.Attachment) error {
	body := map[string]string{
		"EXTFILEDES":  att.Description,
		"EXTFILENAME": EncodeDataURL(att.Data, MimeTypeFor(att.FileName)),
		"SUFFIX":      suffix(att.FileName),
		"MAILFROM":    c.cfg.SourceID,
		"USERLOGIN":   userLogin,
	}
	if err := c.do(ctx, http.MethodPost, exportEntity, body, nil); err != nil {
		return fmt.Errorf("export %s: %w", att.FileName, err)
	}
	c.log.Info().Str("user", userLogin).Str("file", att.FileName).Msg("export uploaded")
	return nil
}
