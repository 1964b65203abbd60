package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/vinayprograms/taskapi/task"
)

// Index fields.
const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldSearch      = "search"
	fieldTitleKey    = "title_key"
	fieldStatus      = "status"
	fieldPriority    = "priority"
	fieldAssignee    = "assignee"
	fieldTags        = "tags"
	fieldDueDate     = "due_date"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	fieldID          = "_id"
)

// SortFields maps API sort names to index fields.
var SortFields = map[string]string{
	"id":        fieldID,
	"title":     fieldTitleKey,
	"status":    fieldStatus,
	"priority":  fieldPriority,
	"dueDate":   fieldDueDate,
	"assignee":  fieldAssignee,
	"createdAt": fieldCreatedAt,
	"updatedAt": fieldUpdatedAt,
}

var dateFields = map[string]bool{
	fieldDueDate:   true,
	fieldCreatedAt: true,
	fieldUpdatedAt: true,
}

// Index is the phase-one identifier index.
type Index struct {
	idx bleve.Index
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// buildIndexMapping creates the task document mapping.
func buildIndexMapping() mapping.IndexMapping {
	taskMapping := bleve.NewDocumentMapping()
	taskMapping.Dynamic = false

	// Analyzed with stemming for free text.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = en.AnalyzerName
	textFieldMapping.Store = false

	// Exact match and sort.
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.Store = false

	dateFieldMapping := bleve.NewDateTimeFieldMapping()
	dateFieldMapping.Store = false

	taskMapping.AddFieldMappingsAt(fieldTitle, textFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldDescription, textFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldSearch, textFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldTitleKey, keywordFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldStatus, keywordFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldPriority, keywordFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldAssignee, keywordFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldTags, keywordFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldDueDate, dateFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldCreatedAt, dateFieldMapping)
	taskMapping.AddFieldMappingsAt(fieldUpdatedAt, dateFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = taskMapping
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	return indexMapping
}

// document flattens a task into index fields. Absent values are omitted so
// they never match a filter and sort last.
func document(t *task.Task) map[string]interface{} {
	doc := map[string]interface{}{
		fieldTitle:       t.Title,
		fieldDescription: t.Description,
		fieldSearch:      strings.TrimSpace(t.Title + " " + t.Description),
		fieldTitleKey:    t.Title,
		fieldStatus:      string(t.Status),
		fieldPriority:    string(t.Priority),
		fieldCreatedAt:   t.CreatedAt,
		fieldUpdatedAt:   t.UpdatedAt,
	}
	if t.Assignee != "" {
		doc[fieldAssignee] = t.Assignee
	}
	if len(t.Tags) > 0 {
		doc[fieldTags] = append([]string(nil), t.Tags...)
	}
	if t.DueDate != nil {
		doc[fieldDueDate] = *t.DueDate
	}
	return doc
}

// Put indexes or re-indexes a task.
func (i *Index) Put(t *task.Task) error {
	if err := i.idx.Index(t.ID, document(t)); err != nil {
		return fmt.Errorf("failed to index task %s: %w", t.ID, err)
	}
	return nil
}

// Remove drops a task from the index. Unknown ids are ignored.
func (i *Index) Remove(id string) error {
	if err := i.idx.Delete(id); err != nil {
		return fmt.Errorf("failed to remove task %s: %w", id, err)
	}
	return nil
}

// Count returns the number of indexed tasks.
func (i *Index) Count() (uint64, error) {
	return i.idx.DocCount()
}

// Close releases the index.
func (i *Index) Close() error {
	return i.idx.Close()
}

// Search returns the ordered ids of the page c selects and the total number
// of matches. c must already be normalized.
func (i *Index) Search(ctx context.Context, c task.Criteria) ([]string, int64, error) {
	size := c.Size
	from, ok := task.Offset(c.Page, c.Size)
	if !ok {
		// Count only.
		size = 0
	}
	req := bleve.NewSearchRequestOptions(buildQuery(c), size, from, false)
	req.SortByCustom(sortOrder(c.Sort, c.Direction))

	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, int64(res.Total), nil
}

// buildQuery turns criteria into a conjunction of exact predicates.
func buildQuery(c task.Criteria) bquery.Query {
	var conjuncts []bquery.Query

	term := func(field, value string) {
		q := bleve.NewTermQuery(value)
		q.SetField(field)
		conjuncts = append(conjuncts, q)
	}
	if c.Status != "" {
		term(fieldStatus, string(c.Status))
	}
	if c.Priority != "" {
		term(fieldPriority, string(c.Priority))
	}
	if c.Assignee != "" {
		term(fieldAssignee, c.Assignee)
	}
	if c.Tag != "" {
		term(fieldTags, c.Tag)
	}

	if c.DueAfter != nil || c.DueBefore != nil {
		var start, end time.Time
		if c.DueAfter != nil {
			start = *c.DueAfter
		}
		if c.DueBefore != nil {
			end = *c.DueBefore
		}
		inclusive := true
		q := bleve.NewDateRangeInclusiveQuery(start, end, &inclusive, &inclusive)
		q.SetField(fieldDueDate)
		conjuncts = append(conjuncts, q)
	}

	if text := strings.TrimSpace(c.Text); text != "" {
		q := bleve.NewMatchQuery(text)
		q.SetField(fieldSearch)
		q.SetOperator(bquery.MatchQueryOperatorAnd)
		conjuncts = append(conjuncts, q)
	}

	if len(conjuncts) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

// sortOrder resolves a sort name and direction. A known field sorts
// descending only when direction is "desc"; a blank or unknown field sorts
// by creation time, newest first. The id is always the final tiebreaker.
func sortOrder(field, direction string) search.SortOrder {
	name, ok := SortFields[field]
	desc := strings.EqualFold(direction, task.SortDesc)
	if !ok {
		name, desc = fieldCreatedAt, true
	}

	if name == fieldID {
		return search.SortOrder{&search.SortDocID{Desc: desc}}
	}

	typ := search.SortFieldAsString
	if dateFields[name] {
		typ = search.SortFieldAsDate
	}
	return search.SortOrder{
		&search.SortField{
			Field:   name,
			Desc:    desc,
			Type:    typ,
			Mode:    search.SortFieldDefault,
			Missing: search.SortFieldMissingLast,
		},
		&search.SortDocID{},
	}
}
