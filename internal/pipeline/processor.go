package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/filesmile/backend/internal/barcode"
	"github.com/filesmile/backend/internal/models"
	"github.com/filesmile/backend/internal/pdf"
	"github.com/filesmile/backend/internal/prefix"
)

// PayloadStore reads file payloads by handle.
type PayloadStore interface {
	Read(id string) ([]byte, error)
}

// ImageDetector detects barcodes in plain images.
type ImageDetector interface {
	DetectFromImage(src barcode.ImageSource) *models.BarcodeResult
}

// PDFExtractor detects barcodes in PDF payloads.
type PDFExtractor interface {
	ExtractBarcode(ctx context.Context, data []byte, onProgress pdf.ProgressFunc) (pdf.Result, error)
}

// DocumentSearcher finds ERP records by form and document number.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, form models.FormPrefixInfo, docNumber string) ([]models.MatchedDocument, error)
}

// Uploader sends payloads to the ERP.
type Uploader interface {
	UploadAttachment(ctx context.Context, form, formKey, extFilesForm string, att models.Attachment) error
	UploadExport(ctx context.Context, userLogin string, att models.Attachment) error
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Store     *Store
	Cache     *prefix.Cache
	Payloads  PayloadStore
	Detector  ImageDetector
	Extractor PDFExtractor
	Searcher  DocumentSearcher
	Uploader  Uploader
}

// Config tunes a Processor.
type Config struct {
	MaxConcurrent    int           // files detected at once; 1 when unset
	DetectionTimeout time.Duration // per file; none when zero
	UserLogin        string        // ERP login for export uploads
}

// Processor drives files through detection, matching and upload. A file's
// status is its lock: a second detection of an in-flight file is rejected.
type Processor struct {
	Deps
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	progress map[string]pdf.Progress
}

// NewProcessor creates a Processor.
func NewProcessor(deps Deps, cfg Config, log zerolog.Logger) *Processor {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Processor{
		Deps:     deps,
		cfg:      cfg,
		log:      log,
		progress: make(map[string]pdf.Progress),
	}
}

// Progress returns the last PDF progress reported for an in-flight file.
func (p *Processor) Progress(id string) (pdf.Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.progress[id]
	return pr, ok
}

func (p *Processor) setProgress(id string, pr *pdf.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr == nil {
		delete(p.progress, id)
		return
	}
	p.progress[id] = *pr
}

// ProcessPending detects and matches every pending file, at most
// MaxConcurrent at a time. Item failures are recorded on the files.
func (p *Processor) ProcessPending(ctx context.Context) error {
	if err := p.Cache.Ready(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheNotReady, err)
	}

	pending := p.Store.Snapshot().PendingFiles()
	if len(pending) == 0 {
		return nil
	}
	p.log.Info().Int("files", len(pending)).Int("concurrency", p.cfg.MaxConcurrent).Msg("processing pending files")

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrent)
	for _, f := range pending {
		id := f.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := p.ProcessFile(ctx, id); err != nil {
				p.log.Debug().Err(err).Str("file", id).Msg("file skipped")
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

type detection struct {
	barcode *models.BarcodeResult
	method  string
	page    int
	err     error
}

// ProcessFile detects the barcode of one file and matches it to an ERP record.
// The returned error only reports why processing could not start; detection
// and matching failures are recorded on the file.
func (p *Processor) ProcessFile(ctx context.Context, id string) (err error) {
	if err := p.Cache.Ready(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheNotReady, err)
	}
	st, err := p.Store.Dispatch(BeginDetection{ID: id})
	if err != nil {
		return err
	}
	file, ok := st.Find(id)
	if !ok {
		return nil
	}
	attempt := file.Attempt
	defer p.setProgress(id, nil)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("file", id).Interface("panic", r).Msg("detection panicked")
			p.fail(id, attempt, fmt.Sprintf("internal error: %v", r))
			err = nil
		}
	}()

	log := p.log.With().Str("file", id).Str("name", file.FileName).Int("attempt", attempt).Logger()

	data, err := p.Payloads.Read(file.FileData)
	if err != nil {
		p.fail(id, attempt, fmt.Sprintf("read file: %v", err))
		return nil
	}

	start := time.Now()
	det := p.detect(ctx, file, data)
	switch {
	case errors.Is(det.err, context.DeadlineExceeded):
		p.fail(id, attempt, fmt.Sprintf("detection timed out after %s", p.cfg.DetectionTimeout))
		return nil
	case det.err != nil:
		p.fail(id, attempt, fmt.Sprintf("detection failed: %v", det.err))
		return nil
	case det.barcode == nil:
		log.Info().Dur("took", time.Since(start)).Msg("no barcode found")
		p.dispatchLate(DetectionNotFound{ID: id, Attempt: attempt})
		return nil
	}

	bc := *det.barcode
	log.Info().Str("barcode", bc.Value).Str("method", det.method).Int("page", det.page).
		Dur("took", time.Since(start)).Msg("barcode detected")
	if !p.dispatchLate(DetectionSucceeded{ID: id, Attempt: attempt, Barcode: bc, Method: det.method, PageNumber: det.page}) {
		return nil
	}

	form, ok := p.Cache.Get(bc.Prefix)
	if !ok {
		p.fail(id, attempt, fmt.Sprintf("no form registered for prefix %s", bc.Prefix))
		return nil
	}

	docs, err := p.Searcher.SearchDocuments(ctx, form, bc.CanonicalID())
	if err != nil {
		p.fail(id, attempt, fmt.Sprintf("document lookup failed: %v", err))
		return nil
	}
	if len(docs) == 0 {
		p.fail(id, attempt, fmt.Sprintf("document %s not found in %s", bc.CanonicalID(), form.Title))
		return nil
	}

	doc := docs[0]
	if doc.Form == "" {
		doc.Form = form.EntityName
	}
	if doc.FormDesc == "" {
		doc.FormDesc = form.Title
	}
	if doc.ExtFilesForm == "" {
		doc.ExtFilesForm = form.AttachmentsForm()
	}
	p.dispatchLate(MatchSucceeded{ID: id, Attempt: attempt, Document: doc})
	return nil
}

// detect runs detection under the configured timeout. If the timeout fires
// first the detection goroutine finishes on its own and its result is dropped.
func (p *Processor) detect(ctx context.Context, file models.BarcodeFile, data []byte) detection {
	if p.cfg.DetectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.DetectionTimeout)
		defer cancel()
	}

	done := make(chan detection, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- detection{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		done <- p.runDetection(ctx, file, data)
	}()

	select {
	case d := <-done:
		return d
	case <-ctx.Done():
		return detection{err: ctx.Err()}
	}
}

func (p *Processor) runDetection(ctx context.Context, file models.BarcodeFile, data []byte) detection {
	if file.FileType == models.FileTypePDF {
		res, err := p.Extractor.ExtractBarcode(ctx, data, func(pr pdf.Progress) {
			p.setProgress(file.ID, &pr)
		})
		return detection{barcode: res.Barcode, method: string(res.Method), page: res.PageNumber, err: err}
	}
	bc := p.Detector.DetectFromImage(barcode.EncodedImage{Data: data})
	return detection{barcode: bc, method: string(pdf.MethodImage)}
}

func (p *Processor) fail(id string, attempt int, msg string) {
	p.dispatchLate(DetectionFailed{ID: id, Attempt: attempt, Message: msg})
}

// dispatchLate applies a result action; results for files that were removed,
// moved on or begun again meanwhile are dropped.
func (p *Processor) dispatchLate(a Action) bool {
	if _, err := p.Store.Dispatch(a); err != nil {
		p.log.Debug().Err(err).Msgf("discarding %T", a)
		return false
	}
	return true
}
