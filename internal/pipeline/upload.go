package pipeline

import (
	"context"
	"fmt"

	"github.com/filesmile/backend/internal/models"
)

// UploadMode selects the upload target.
type UploadMode string

const (
	// UploadAttach attaches matched files to their ERP documents.
	UploadAttach UploadMode = "attach"
	// UploadExport sends unmatched files to the export staging form.
	UploadExport UploadMode = "export"
)

// ParseUploadMode validates a mode name; empty means attach.
func ParseUploadMode(s string) (UploadMode, error) {
	switch m := UploadMode(s); m {
	case "":
		return UploadAttach, nil
	case UploadAttach, UploadExport:
		return m, nil
	}
	return "", fmt.Errorf("unknown upload mode %q", s)
}

// UploadSummary counts the outcome of an upload run.
type UploadSummary struct {
	Total    int `json:"total"`
	Uploaded int `json:"uploaded"`
	Failed   int `json:"failed"`
}

// Uploadable returns the files an upload in mode would send.
func (p *Processor) Uploadable(mode UploadMode) []models.BarcodeFile {
	s := p.Store.Snapshot()
	if mode == UploadExport {
		return s.filter(models.FileStatusPending, models.FileStatusError)
	}
	return s.filter(models.FileStatusMatched)
}

// UploadAll uploads every eligible file in order, updating the batch upload
// progress after each one. Per-file failures are recorded on the files.
func (p *Processor) UploadAll(ctx context.Context, mode UploadMode, onProgress func(done, total int)) (UploadSummary, error) {
	files := p.Uploadable(mode)
	sum := UploadSummary{Total: len(files)}
	p.Store.Dispatch(SetUploadProgress{Percent: 0})

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := p.UploadFile(ctx, f.ID, mode); err != nil {
			sum.Failed++
			p.log.Warn().Err(err).Str("file", f.ID).Msg("upload failed")
		} else {
			sum.Uploaded++
		}
		p.Store.Dispatch(SetUploadProgress{Percent: float64(i+1) * 100 / float64(len(files))})
		if onProgress != nil {
			onProgress(i+1, len(files))
		}
	}
	p.log.Info().Str("mode", string(mode)).Int("uploaded", sum.Uploaded).Int("failed", sum.Failed).Msg("upload finished")
	return sum, nil
}

// UploadFile uploads one file. A rejected upload is recorded on the file and
// also returned.
func (p *Processor) UploadFile(ctx context.Context, id string, mode UploadMode) error {
	if _, err := p.Store.Dispatch(BeginUpload{ID: id, Export: mode == UploadExport}); err != nil {
		return err
	}
	file, ok := p.Store.File(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	err := p.upload(ctx, file, mode)
	if err != nil {
		p.dispatchLate(UploadFailed{ID: id, Message: fmt.Sprintf("upload failed: %v", err)})
		return err
	}
	p.dispatchLate(UploadSucceeded{ID: id})
	return nil
}

func (p *Processor) upload(ctx context.Context, file models.BarcodeFile, mode UploadMode) error {
	data, err := p.Payloads.Read(file.FileData)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	att := models.Attachment{FileName: file.FileName, Description: file.FileName, Data: data}
	if file.Barcode != "" {
		att.Description = file.Barcode
	}

	if mode == UploadExport {
		return p.Uploader.UploadExport(ctx, p.cfg.UserLogin, att)
	}
	doc := file.MatchedDocument
	if doc == nil {
		return fmt.Errorf("file %s has no matched document", file.ID)
	}
	return p.Uploader.UploadAttachment(ctx, doc.Form, doc.FormKey, doc.ExtFilesForm, att)
}
