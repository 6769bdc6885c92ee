// Package models contains domain types for the FileSmile barcode pipeline.
package models

// Detection method / symbology tags carried in BarcodeResult.Format.
const (
	FormatText = "TEXT"
)

// BarcodeResult is a decoded barcode value split by the rule that accepted it.
// Prefix and DocNumber always come from the same rule that matched Value.
type BarcodeResult struct {
	Value     string `json:"value" msgpack:"value"`
	Prefix    string `json:"prefix" msgpack:"prefix"`
	DocNumber string `json:"docNumber" msgpack:"docNumber"` // separators stripped
	Format    string `json:"format" msgpack:"format"`
}

// CanonicalID returns prefix and document number joined without separators.
func (b BarcodeResult) CanonicalID() string {
	return b.Prefix + b.DocNumber
}

// FormPrefixInfo describes which ERP form a barcode prefix identifies.
type FormPrefixInfo struct {
	EntityName    string `json:"entityName" msgpack:"entityName"`
	Title         string `json:"title" msgpack:"title"`
	SubEntityName string `json:"subEntityName,omitempty" msgpack:"subEntityName,omitempty"`
	Prefix        string `json:"prefix" msgpack:"prefix"`
}

// AttachmentsForm returns the subform that holds attachments for this entity.
func (f FormPrefixInfo) AttachmentsForm() string {
	if f.SubEntityName == "" {
		return DefaultExtFilesForm
	}
	return f.SubEntityName
}

// DefaultExtFilesForm is the attachments subform used when a form does not name one.
const DefaultExtFilesForm = "EXTFILES"

// MatchedDocument references the ERP record a file was matched to.
type MatchedDocument struct {
	Form         string `json:"form" msgpack:"form"`
	FormDesc     string `json:"formDescription,omitempty" msgpack:"formDescription,omitempty"`
	FormKey      string `json:"formKey" msgpack:"formKey"`
	DocNo        string `json:"docNo,omitempty" msgpack:"docNo,omitempty"`
	DocDate      string `json:"docDate,omitempty" msgpack:"docDate,omitempty"`
	CustName     string `json:"custName,omitempty" msgpack:"custName,omitempty"`
	Details      string `json:"details,omitempty" msgpack:"details,omitempty"`
	ExtFilesForm string `json:"extFilesForm" msgpack:"extFilesForm"`
}
