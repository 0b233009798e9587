// Package review pushes businesses that the pipeline parked for a human into
// a Notion review queue.
package review

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/pkg/notion"
)

// Sink receives results that need human attention.
type Sink interface {
	// Notify records a manual-review item. Called only for results whose next
	// state is manual_review.
	Notify(ctx context.Context, b model.Business, res *model.CompleteValidationResult) error
}

// NotionSink implements Sink on a Notion database.
type NotionSink struct {
	client notion.Client
	dbID   string
}

// NewNotionSink creates a sink writing into the given review database.
func NewNotionSink(client notion.Client, dbID string) *NotionSink {
	return &NotionSink{client: client, dbID: dbID}
}

func (s *NotionSink) Notify(ctx context.Context, b model.Business, res *model.CompleteValidationResult) error {
	reasoning := res.Reasoning
	if len(reasoning) > 2000 {
		reasoning = reasoning[:2000]
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.dbID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: b.Name}}},
			},
			"Business ID": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: b.ID}}},
			},
			"Candidate URL": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: b.URL}}},
			},
			"Verdict": notionapi.SelectProperty{
				Select: notionapi.Option{Name: string(res.Verdict)},
			},
			"Confidence": notionapi.NumberProperty{
				Number: res.Confidence,
			},
			"Reasoning": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: reasoning}}},
			},
			"Run ID": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: res.RunID}}},
			},
		},
	}

	page, err := s.client.CreatePage(ctx, req)
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("review: notify for business %s", b.ID))
	}

	zap.L().Info("manual review item created",
		zap.String("business_id", b.ID),
		zap.String("run_id", res.RunID),
		zap.String("page_id", string(page.ID)),
	)
	return nil
}

// NopSink discards notifications; used when no review queue is configured.
type NopSink struct{}

func (NopSink) Notify(context.Context, model.Business, *model.CompleteValidationResult) error {
	return nil
}
