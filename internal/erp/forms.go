package erp

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/filesmile/backend/internal/models"
)

const formsEntity = "SOF_FSFORMS"

// Column describes one field of a searchable form.
type Column struct {
	Name        string `json:"SOF_NAME"`
	Type        string `json:"TYPE"`
	KeyNum      int    `json:"KNUM"`
	DocFlag     string `json:"DOC_FLAG"`
	DateFlag    string `json:"DATE_FLAG"`
	CustFlag    string `json:"CS_FLAG"`
	DetailsFlag string `json:"DET_FLAG"`
	SearchFlag  string `json:"SEARCH_FLAG"`
	SearchFlagB string `json:"SEARCH_FLAG_B"`
}

// FormMetadata describes a form configured for document search.
type FormMetadata struct {
	Name      string   `json:"ENAME"`
	Title     string   `json:"TITLE"`
	SubEntity string   `json:"SUBENAME"`
	Prefix    string   `json:"PREFIX"`
	Columns   []Column `json:"SOF_FSCLMNS_SUBFORM"`
}

// KeyFields returns the key columns ordered by key number.
func (m *FormMetadata) KeyFields() []string {
	cols := make([]Column, 0, len(m.Columns))
	for _, c := range m.Columns {
		if c.KeyNum > 0 {
			cols = append(cols, c)
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].KeyNum < cols[j].KeyNum })
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// fieldBy returns the first column whose flag is set.
func (m *FormMetadata) fieldBy(flag func(Column) string) string {
	for _, c := range m.Columns {
		if flag(c) == "Y" {
			return c.Name
		}
	}
	return ""
}

func (m *FormMetadata) DocField() string {
	return m.fieldBy(func(c Column) string { return c.DocFlag })
}

func (m *FormMetadata) extFilesForm() string {
	if m.SubEntity == "" {
		return models.DefaultExtFilesForm
	}
	return m.SubEntity
}

func (m *FormMetadata) title() string {
	if m.Title == "" {
		return m.Name
	}
	return m.Title
}

// ListFormPrefixes returns every configured form that has a barcode prefix.
func (c *Client) ListFormPrefixes(ctx context.Context) ([]models.FormPrefixInfo, error) {
	recs, err := c.list(ctx, formsEntity, query{Select: []string{"ENAME", "TITLE", "SUBENAME", "PREFIX"}})
	if err != nil {
		return nil, fmt.Errorf("list form prefixes: %w", err)
	}

	out := make([]models.FormPrefixInfo, 0, len(recs))
	for _, r := range recs {
		p := strings.TrimSpace(r.str("PREFIX"))
		if p == "" {
			continue
		}
		out = append(out, models.FormPrefixInfo{
			EntityName:    r.str("ENAME"),
			Title:         r.str("TITLE"),
			SubEntityName: r.str("SUBENAME"),
			Prefix:        p,
		})
	}
	c.log.Info().Int("forms", len(recs)).Int("prefixes", len(out)).Msg("loaded form prefixes")
	return out, nil
}

// FormMetadata loads a form's search configuration. Results are cached per client.
func (c *Client) FormMetadata(ctx context.Context, form string) (*FormMetadata, error) {
	c.mu.Lock()
	m, ok := c.meta[form]
	c.mu.Unlock()
	if ok {
		return m, nil
	}

	var out struct {
		Value []FormMetadata `json:"value"`
	}
	q := query{Filter: "ENAME eq " + quote(form), Expand: []string{"SOF_FSCLMNS_SUBFORM"}}
	if err := c.do(ctx, http.MethodGet, formsEntity+q.encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("form metadata %s: %w", form, err)
	}
	if len(out.Value) == 0 {
		return nil, fmt.Errorf("form %s: %w", form, ErrNotFound)
	}

	m = &out.Value[0]
	c.mu.Lock()
	c.meta[form] = m
	c.mu.Unlock()
	return m, nil
}

// SearchDocuments looks up a document by its number in the form. No match is
// an empty result, not an error.
func (c *Client) SearchDocuments(ctx context.Context, form models.FormPrefixInfo, docNumber string) ([]models.MatchedDocument, error) {
	meta, err := c.FormMetadata(ctx, form.EntityName)
	if err != nil {
		return nil, err
	}
	docField := meta.DocField()
	if docField == "" {
		return nil, fmt.Errorf("form %s has no document number field", meta.Name)
	}
	return c.search(ctx, meta, docField+" eq "+quote(docNumber), 1)
}

// FindDocument returns the document with the given number, or ErrNotFound.
func (c *Client) FindDocument(ctx context.Context, form models.FormPrefixInfo, docNumber string) (*models.MatchedDocument, error) {
	docs, err := c.SearchDocuments(ctx, form, docNumber)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("document %s in %s: %w", docNumber, form.EntityName, ErrNotFound)
	}
	return &docs[0], nil
}

// Search runs a free-text search over the form's search fields. Text fields
// match by wildcard and numeric fields match exactly when term is numeric.
func (c *Client) Search(ctx context.Context, form, term string) ([]models.MatchedDocument, error) {
	meta, err := c.FormMetadata(ctx, form)
	if err != nil {
		return nil, err
	}
	filter := searchFilter(meta.Columns, strings.TrimSpace(term))
	if filter == "" {
		return nil, fmt.Errorf("form %s has no searchable fields for %q", meta.Name, term)
	}
	return c.search(ctx, meta, filter, 100)
}

func searchFilter(cols []Column, term string) string {
	if term == "" {
		return ""
	}
	numeric := isInteger(term) && !strings.HasPrefix(term, "-")
	var filters []string
	for _, col := range cols {
		if col.SearchFlag != "Y" && col.SearchFlagB != "Y" {
			continue
		}
		switch col.Type {
		case "REAL", "INT":
			if numeric {
				filters = append(filters, col.Name+" eq "+term)
			}
		default:
			filters = append(filters, col.Name+" eq "+quote("*"+term+"*"))
		}
	}
	return strings.Join(filters, " or ")
}

func (c *Client) search(ctx context.Context, meta *FormMetadata, filter string, top int) ([]models.MatchedDocument, error) {
	keys := meta.KeyFields()
	docField := meta.DocField()
	dateField := meta.fieldBy(func(c Column) string { return c.DateFlag })
	custField := meta.fieldBy(func(c Column) string { return c.CustFlag })
	detField := meta.fieldBy(func(c Column) string { return c.DetailsFlag })

	var sel []string
	seen := map[string]bool{}
	for _, f := range append(append([]string{}, keys...), docField, dateField, custField, detField) {
		if f != "" && !seen[f] {
			seen[f] = true
			sel = append(sel, f)
		}
	}

	recs, err := c.list(ctx, meta.Name, query{Select: sel, Filter: filter, Top: top})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", meta.Name, err)
	}

	docs := make([]models.MatchedDocument, 0, len(recs))
	for _, r := range recs {
		doc := models.MatchedDocument{
			Form:         meta.Name,
			FormDesc:     meta.title(),
			FormKey:      FormatKey(buildKey(keys, r)),
			ExtFilesForm: meta.extFilesForm(),
		}
		if docField != "" {
			doc.DocNo = r.str(docField)
		}
		if dateField != "" {
			doc.DocDate = r.str(dateField)
		}
		if custField != "" {
			doc.CustName = r.str(custField)
		}
		if detField != "" {
			doc.Details = r.str(detField)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
