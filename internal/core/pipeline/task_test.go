package pipeline

import (
	"context"
	"testing"

	"recipe-ingest/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name     string
		task     IngestTask
		wantCode string
	}{
		{"網址模式正常", IngestTask{Mode: ModeURL, Payload: TaskPayload{URL: "https://example.com/r"}}, ""},
		{"網址模式缺網址", IngestTask{Mode: ModeURL}, common.ErrCodeMissingURL},
		{"網址模式空白網址", IngestTask{Mode: ModeURL, Payload: TaskPayload{URL: "   "}}, common.ErrCodeMissingURL},
		{"查詢模式正常", IngestTask{Mode: ModeQuery, Payload: TaskPayload{Query: "牛肉麵"}}, ""},
		{"查詢模式缺關鍵字", IngestTask{Mode: ModeQuery}, common.ErrCodeInvalidPayload},
		{"正規化模式正常", IngestTask{Mode: ModeNormalize, Payload: TaskPayload{RecipeID: "r1"}}, ""},
		{"正規化模式缺編號", IngestTask{Mode: ModeNormalize}, common.ErrCodeMissingRecipeID},
		{"不支援的模式", IngestTask{Mode: "bulk"}, common.ErrCodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.ValidatePayload()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, common.ErrorCode(err))
		})
	}
}

func TestMemoryRecipeStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	recipes := NewMemoryRecipeStore()

	_, err := recipes.Load(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeMissingRecipeID, common.ErrorCode(err))

	original := storedRecipe()
	require.NoError(t, recipes.Save(ctx, "r1", original))

	loaded, err := recipes.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, original.Name, loaded.Name)

	// 讀出的是快照，改動不會寫回儲存
	loaded.Name = "改名"
	again, err := recipes.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, original.Name, again.Name)
}
