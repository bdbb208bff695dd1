package services

import (
	"bytes"
	"context"
	"testing"

	"instagram-automation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportWorkbook(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)
	ctx := context.Background()

	posted, err := h.posts.Submit(ctx, SubmitRequest{AccountID: a.ID.Hex(), MediaURLs: []string{"https://cdn.example.com/1.jpg"}})
	require.NoError(t, err)
	_, err = h.posts.Submit(ctx, SubmitRequest{
		AccountID: a.ID.Hex(), Mode: models.ScheduleModeNextSlot, MediaURLs: []string{"https://cdn.example.com/2.jpg"},
	})
	require.NoError(t, err)

	data, err := h.posts.Export(ctx, PostQuery{AccountID: a.ID.Hex()})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(postsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeaders, rows[0])

	byID := map[string][]string{rows[1][0]: rows[1], rows[2][0]: rows[2]}
	row, ok := byID[posted.ID.Hex()]
	require.True(t, ok)
	assert.Equal(t, "@test_fitness_1", row[1])
	assert.Equal(t, "posted", row[3])
	assert.Equal(t, posted.InstagramPostID, row[6])

	total, err := f.GetCellValue(summarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "2", total)
}

func TestExportRejectsBadFilter(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.posts.Export(context.Background(), PostQuery{Status: "bogus"})
	assert.Error(t, err)
}
