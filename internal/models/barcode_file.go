package models

import (
	"bytes"
	"path/filepath"
	"strings"
	"time"
)

// FileType distinguishes plain images from PDF payloads.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypePDF   FileType = "pdf"
)

// FileStatus is the pipeline state of a single file.
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusDetecting FileStatus = "detecting"
	FileStatusDetected  FileStatus = "detected"
	FileStatusMatched   FileStatus = "matched"
	FileStatusNotFound  FileStatus = "not_found"
	FileStatusUploading FileStatus = "uploading"
	FileStatusUploaded  FileStatus = "uploaded"
	FileStatusError     FileStatus = "error"
)

// InFlight reports whether a task currently owns the file.
func (s FileStatus) InFlight() bool {
	return s == FileStatusDetecting || s == FileStatusUploading
}

// Terminal reports whether the status ends the pipeline for the file.
func (s FileStatus) Terminal() bool {
	switch s {
	case FileStatusMatched, FileStatusUploaded, FileStatusError, FileStatusNotFound:
		return true
	}
	return false
}

// BarcodeFile is one item of a batch.
type BarcodeFile struct {
	ID              string           `json:"id" msgpack:"id"`
	FileName        string           `json:"fileName" msgpack:"fileName"`
	FileData        string           `json:"fileData" msgpack:"fileData"` // payload handle in the session store
	FileType        FileType         `json:"fileType" msgpack:"fileType"`
	Size            int64            `json:"size" msgpack:"size"`
	Status          FileStatus       `json:"status" msgpack:"status"`
	Barcode         string           `json:"barcode,omitempty" msgpack:"barcode,omitempty"`
	Prefix          string           `json:"prefix,omitempty" msgpack:"prefix,omitempty"`
	DocNumber       string           `json:"docNumber,omitempty" msgpack:"docNumber,omitempty"`
	Method          string           `json:"method,omitempty" msgpack:"method,omitempty"`
	PageNumber      int              `json:"pageNumber,omitempty" msgpack:"pageNumber,omitempty"`
	MatchedDocument *MatchedDocument `json:"matchedDocument,omitempty" msgpack:"matchedDocument,omitempty"`
	Error           string           `json:"error,omitempty" msgpack:"error,omitempty"`
	Attempt         int              `json:"attempt" msgpack:"attempt"` // detection attempts begun
	Timestamp       time.Time        `json:"timestamp" msgpack:"timestamp"`
}

var pdfMagic = []byte("%PDF-")

// DetectFileType classifies a payload by its magic bytes, falling back to the file extension.
func DetectFileType(name string, head []byte) FileType {
	if bytes.HasPrefix(bytes.TrimLeft(head, "\x00\t\r\n "), pdfMagic) {
		return FileTypePDF
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") && len(head) == 0 {
		return FileTypePDF
	}
	return FileTypeImage
}

// Attachment is a file payload sent to the ERP.
type Attachment struct {
	FileName    string
	Description string
	Data        []byte
}
