package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/models"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	postsSheet   = "Posts"
	summarySheet = "Summary"
	exportLayout = "2006-01-02 15:04:05"
)

var exportHeaders = []string{
	"ID", "Account", "Kind", "Status", "Scheduled (UTC)", "Posted (UTC)",
	"Instagram Post ID", "Caption", "Media", "Error", "Created (UTC)",
}

// Export writes the posts matching q and the matching stats into an xlsx
// workbook. Deleted accounts show up by id.
func (s *PostService) Export(ctx context.Context, q PostQuery) ([]byte, error) {
	const op = "export posts"

	posts, err := s.List(ctx, q)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats(ctx, q.AccountID)
	if err != nil {
		return nil, err
	}

	usernames := make(map[primitive.ObjectID]string)
	for _, p := range posts {
		if _, seen := usernames[p.AccountID]; seen {
			continue
		}
		usernames[p.AccountID] = p.AccountID.Hex()
		if account, err := s.store.GetAccount(ctx, p.AccountID); err == nil {
			usernames[p.AccountID] = "@" + account.Username
		}
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.Warn("Error closing workbook", "error", err)
		}
	}()

	if err := writePostsSheet(f, posts, usernames); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	if err := writeSummarySheet(f, stats, s.now().UTC()); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return buf.Bytes(), nil
}

func writePostsSheet(f *excelize.File, posts []models.Post, usernames map[primitive.ObjectID]string) error {
	// Reuse the default sheet
	if err := f.SetSheetName("Sheet1", postsSheet); err != nil {
		return err
	}

	if err := f.SetSheetRow(postsSheet, "A1", &exportHeaders); err != nil {
		return err
	}
	for i, p := range posts {
		posted := ""
		if p.ActualPostTime != nil {
			posted = p.ActualPostTime.UTC().Format(exportLayout)
		}
		row := []interface{}{
			p.ID.Hex(),
			usernames[p.AccountID],
			string(p.Kind),
			string(p.Status),
			p.ScheduledTime.UTC().Format(exportLayout),
			posted,
			p.InstagramPostID,
			p.Caption,
			len(p.MediaURLs),
			p.ErrorMessage,
			p.CreatedAt.UTC().Format(exportLayout),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(postsSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetPanes(postsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummarySheet(f *excelize.File, stats *models.PostStats, generated time.Time) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Generated (UTC)", generated.Format(exportLayout)},
		{"Total posts", stats.Total},
		{"Posted", stats.Posted},
		{"Failed", stats.Failed},
		{"Pending", stats.Scheduled},
		{"Cancelled", stats.Cancelled},
		{"Success rate (%)", stats.SuccessRate},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}
	return nil
}
