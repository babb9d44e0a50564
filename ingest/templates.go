package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/space-cap/alimgen/model"
	"github.com/space-cap/alimgen/retrieval"
)

// templateFile is the on-disk catalog shape.
type templateFile struct {
	Templates []templateRecord `json:"templates"`
}

type templateRecord struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata struct {
		Category1      string `json:"category_1"`
		Category2      string `json:"category_2"`
		BusinessType   string `json:"business_type"`
		ServiceType    string `json:"service_type"`
		TargetAudience string `json:"target_audience"`
		Tone           string `json:"tone"`
		ApprovalStatus string `json:"approval_status"`
	} `json:"metadata"`
}

// TemplateStore holds the approved template catalog used for few-shot
// examples. Read-only after load.
type TemplateStore struct {
	templates []model.ApprovedTemplate
	statuses  map[string]string
}

// LoadTemplates reads the catalog JSON. A missing or malformed file yields
// an empty store and a warning rather than an error: the pipeline degrades
// to example-free prompts.
func LoadTemplates(path string, logger *slog.Logger) *TemplateStore {
	if logger == nil {
		logger = slog.Default()
	}
	store := &TemplateStore{statuses: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Approved template catalog unavailable", "path", path, "error", err)
		return store
	}

	var parsed templateFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		logger.Warn("Failed to parse approved template catalog", "path", path, "error", err)
		return store
	}

	for i, rec := range parsed.Templates {
		id := rec.ID
		if id == "" {
			id = fmt.Sprintf("template_%d", i)
		}
		bt, _ := model.ParseBusinessType(rec.Metadata.BusinessType)
		st, _ := model.ParseServiceType(rec.Metadata.ServiceType)

		store.templates = append(store.templates, model.ApprovedTemplate{
			ID:        id,
			Text:      rec.Text,
			Variables: model.ExtractVariables(rec.Text),
			Metadata: model.TemplateMetadata{
				Category1:      rec.Metadata.Category1,
				Category2:      rec.Metadata.Category2,
				BusinessType:   bt,
				ServiceType:    st,
				TargetAudience: rec.Metadata.TargetAudience,
				Tone:           model.Tone(rec.Metadata.Tone),
			},
		})
		store.statuses[id] = rec.Metadata.ApprovalStatus
	}

	logger.Info("Loaded approved template catalog", "path", path, "count", len(store.templates))
	return store
}

// NewTemplateStore builds a store from in-memory templates; every template
// is treated as approved. Used by tests and embedded deployments.
func NewTemplateStore(templates []model.ApprovedTemplate) *TemplateStore {
	statuses := make(map[string]string, len(templates))
	for _, t := range templates {
		statuses[t.ID] = "approved"
	}
	return &TemplateStore{templates: templates, statuses: statuses}
}

// Len reports the catalog size.
func (s *TemplateStore) Len() int {
	return len(s.templates)
}

// Approved returns the templates with approved status.
func (s *TemplateStore) Approved() []model.ApprovedTemplate {
	var out []model.ApprovedTemplate
	for _, t := range s.templates {
		if s.statuses[t.ID] == "approved" {
			out = append(out, t)
		}
	}
	return out
}

// ByBusinessType returns templates for one business type.
func (s *TemplateStore) ByBusinessType(bt model.BusinessType) []model.ApprovedTemplate {
	var out []model.ApprovedTemplate
	for _, t := range s.templates {
		if t.Metadata.BusinessType == bt {
			out = append(out, t)
		}
	}
	return out
}

// ByCategory returns templates matching the given categories; empty
// arguments match everything.
func (s *TemplateStore) ByCategory(category1, category2 string) []model.ApprovedTemplate {
	var out []model.ApprovedTemplate
	for _, t := range s.templates {
		if category1 != "" && t.Metadata.Category1 != category1 {
			continue
		}
		if category2 != "" && t.Metadata.Category2 != category2 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FindSimilar returns up to k approved templates whose business type or
// service type matches.
func (s *TemplateStore) FindSimilar(bt model.BusinessType, st model.ServiceType, k int) []model.ApprovedTemplate {
	var out []model.ApprovedTemplate
	for _, t := range s.templates {
		if s.statuses[t.ID] != "approved" {
			continue
		}
		if t.Metadata.BusinessType == bt || t.Metadata.ServiceType == st {
			out = append(out, t)
			if len(out) == k {
				break
			}
		}
	}
	return out
}

// Documents converts the catalog into retrieval documents (doc_type
// "template") so templates participate in sparse search.
func (s *TemplateStore) Documents() []retrieval.Document {
	docs := make([]retrieval.Document, 0, len(s.templates))
	for _, t := range s.templates {
		docs = append(docs, retrieval.Document{
			ID:      "template_" + t.ID,
			DocType: "template",
			Content: t.Text,
			Metadata: map[string]any{
				"doc_type":      "template",
				"category_1":    t.Metadata.Category1,
				"category_2":    t.Metadata.Category2,
				"business_type": string(t.Metadata.BusinessType),
				"service_type":  string(t.Metadata.ServiceType),
			},
		})
	}
	return docs
}
