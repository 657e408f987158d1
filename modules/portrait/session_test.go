package portrait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitGeneration_Success(t *testing.T) {
	gen := &fakeGenerator{results: [][]byte{[]byte("result-png")}}
	hist := &fakeHistoryStore{}
	store := &fakeStorage{}
	session := newTestSession(gen, &fakeAnimator{}, hist, store)

	session.SetSourceImage([]byte("source-png"))

	outcome, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, []byte("result-png"), outcome.Image)
	assert.True(t, outcome.Saved)
	assert.NotEmpty(t, outcome.Item.HistoryID)
	assert.Equal(t, 1, hist.savedCount())

	state := session.Snapshot()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, []byte("result-png"), state.ResultImage)
	assert.Empty(t, state.LastError)
}

func TestSubmitGeneration_NoSourceIsSilentNoop(t *testing.T) {
	gen := &fakeGenerator{}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})

	outcome, err := session.SubmitGeneration(context.Background(), defaultSettings())

	assert.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, 0, gen.callCount())
	assert.Equal(t, StatusIdle, session.Snapshot().Status)
}

func TestSubmitGeneration_FailureSetsErrorKeepsPreviousResult(t *testing.T) {
	gen := &fakeGenerator{
		results: [][]byte{[]byte("first-result"), nil},
		errs:    []error{nil, errors.New("model overloaded")},
	}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	_, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)

	_, err = session.SubmitGeneration(context.Background(), defaultSettings())
	require.Error(t, err)

	state := session.Snapshot()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, "model overloaded", state.LastError)
	// 실패해도 이전 결과물은 유지
	assert.Equal(t, []byte("first-result"), state.ResultImage)
}

func TestSubmitGeneration_BusyWhileRunning(t *testing.T) {
	gen := &fakeGenerator{delay: 100 * time.Millisecond}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.SubmitGeneration(context.Background(), defaultSettings())
	}()

	// 첫 요청이 게이트를 잡을 때까지 대기
	time.Sleep(20 * time.Millisecond)

	_, err := session.SubmitGeneration(context.Background(), defaultSettings())
	assert.ErrorIs(t, err, ErrBusy)

	<-done
}

func TestSubmitGeneration_PersistenceFailureIsBestEffort(t *testing.T) {
	t.Run("upload failure", func(t *testing.T) {
		gen := &fakeGenerator{results: [][]byte{[]byte("result")}}
		hist := &fakeHistoryStore{}
		store := &fakeStorage{uploadErr: errors.New("storage down")}
		session := newTestSession(gen, &fakeAnimator{}, hist, store)
		session.SetSourceImage([]byte("source"))

		outcome, err := session.SubmitGeneration(context.Background(), defaultSettings())
		require.NoError(t, err)
		require.NotNil(t, outcome)

		// 인메모리 결과는 그대로, Saved만 false
		assert.False(t, outcome.Saved)
		assert.Equal(t, []byte("result"), outcome.Image)
		assert.NotEmpty(t, outcome.Item.HistoryID, "history item is still produced")
		assert.Equal(t, 0, hist.savedCount())
		assert.Equal(t, []byte("result"), session.Snapshot().ResultImage)
	})

	t.Run("save failure", func(t *testing.T) {
		gen := &fakeGenerator{results: [][]byte{[]byte("result")}}
		hist := &fakeHistoryStore{saveErr: errors.New("db down")}
		session := newTestSession(gen, &fakeAnimator{}, hist, &fakeStorage{})
		session.SetSourceImage([]byte("source"))

		outcome, err := session.SubmitGeneration(context.Background(), defaultSettings())
		require.NoError(t, err)
		require.NotNil(t, outcome)

		assert.False(t, outcome.Saved)
		assert.NotEmpty(t, outcome.Item.ImagePath, "upload succeeded before save failed")
		assert.Equal(t, []byte("result"), session.Snapshot().ResultImage)
	})
}

func TestSubmitGeneration_PanicStillClearsLoading(t *testing.T) {
	session := newTestSession(&fakeGenerator{}, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})
	session.deps.Generator = panicGenerator{}
	session.SetSourceImage([]byte("source"))

	assert.Panics(t, func() {
		session.SubmitGeneration(context.Background(), defaultSettings())
	})

	// 패닉이 나도 loading은 풀리고 다음 제출이 가능해야 함
	state := session.Snapshot()
	assert.Equal(t, StatusIdle, state.Status)

	session.deps.Generator = &fakeGenerator{results: [][]byte{[]byte("recovered")}}
	outcome, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, []byte("recovered"), outcome.Image)
}

func TestSubmitBatch_SequentialWithPartialFailure(t *testing.T) {
	gen := &fakeGenerator{
		results: [][]byte{[]byte("r1"), nil, []byte("r3")},
		errs:    []error{nil, errors.New("item failed"), nil},
		delay:   10 * time.Millisecond,
	}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})

	sources := [][]byte{[]byte("s1"), []byte("s2"), []byte("s3")}
	items, err := session.SubmitBatch(context.Background(), sources, defaultSettings())
	require.NoError(t, err)
	require.Len(t, items, 3)

	// 중간 실패가 다음 아이템을 막지 않음
	assert.Equal(t, ItemDone, items[0].Status)
	assert.Equal(t, ItemError, items[1].Status)
	assert.Equal(t, "item failed", items[1].Error)
	assert.Equal(t, ItemDone, items[2].Status)

	assert.Equal(t, []byte("r1"), items[0].ResultImage)
	assert.Equal(t, []byte("r3"), items[2].ResultImage)

	// 엄격한 순차 처리 (동시 실행 없음)
	assert.Equal(t, 1, gen.maxActive)
	assert.Equal(t, 3, gen.callCount())
}

func TestSubmitBatch_EmptyIsNoop(t *testing.T) {
	gen := &fakeGenerator{}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})

	items, err := session.SubmitBatch(context.Background(), nil, defaultSettings())

	assert.NoError(t, err)
	assert.Nil(t, items)
	assert.Equal(t, 0, gen.callCount())
}

func TestSubmitChatEdit_TranscriptOnSuccess(t *testing.T) {
	gen := &fakeGenerator{results: [][]byte{[]byte("base"), []byte("edited")}}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	_, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)

	outcome, err := session.SubmitChatEdit(context.Background(), "add soft smile")
	require.NoError(t, err)
	require.NotNil(t, outcome)

	state := session.Snapshot()
	assert.Equal(t, []byte("edited"), state.ResultImage)

	require.Len(t, state.Chat, 2)
	assert.Equal(t, "user", state.Chat[0].Role)
	assert.Equal(t, "add soft smile", state.Chat[0].Text)
	assert.Equal(t, "model", state.Chat[1].Role)

	// 편집 프롬프트는 축약형: 지시문이 맨 앞
	require.Equal(t, 2, gen.callCount())
	assert.Contains(t, gen.calls[1], "add soft smile")
	assert.NotContains(t, gen.calls[1], skinTexturePhrase)
}

func TestSubmitChatEdit_TranscriptOnFailure(t *testing.T) {
	gen := &fakeGenerator{
		results: [][]byte{[]byte("base"), nil},
		errs:    []error{nil, errors.New("edit refused")},
	}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	_, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)

	_, err = session.SubmitChatEdit(context.Background(), "remove background")
	require.Error(t, err)

	state := session.Snapshot()
	// 실패해도 유저 메시지 + 모델 실패 메시지가 트랜스크립트에 남음
	require.Len(t, state.Chat, 2)
	assert.Equal(t, "user", state.Chat[0].Role)
	assert.Equal(t, "model", state.Chat[1].Role)
	assert.Contains(t, state.Chat[1].Text, "edit refused")

	// 결과물은 마지막 성공 상태 유지
	assert.Equal(t, []byte("base"), state.ResultImage)
}

func TestSubmitChatEdit_NoResultIsSilentNoop(t *testing.T) {
	gen := &fakeGenerator{}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	outcome, err := session.SubmitChatEdit(context.Background(), "add glasses")

	assert.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, 0, gen.callCount())
	assert.Empty(t, session.Snapshot().Chat)
}

func TestSetSourceImage_ClearsResultAndChat(t *testing.T) {
	gen := &fakeGenerator{results: [][]byte{[]byte("base"), []byte("edited")}}
	session := newTestSession(gen, &fakeAnimator{}, &fakeHistoryStore{}, &fakeStorage{})
	session.SetSourceImage([]byte("source-1"))

	_, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)
	_, err = session.SubmitChatEdit(context.Background(), "warmer tone")
	require.NoError(t, err)
	require.NotEmpty(t, session.Snapshot().Chat)

	// 새 원본 장착 → 결과/채팅 초기화
	session.SetSourceImage([]byte("source-2"))

	state := session.Snapshot()
	assert.Equal(t, []byte("source-2"), state.SourceImage)
	assert.Nil(t, state.ResultImage)
	assert.Empty(t, state.Chat)
}

func TestSubmitAnimation_Success(t *testing.T) {
	gen := &fakeGenerator{results: [][]byte{[]byte("still")}}
	anim := &fakeAnimator{video: []byte("video-mp4")}
	session := newTestSession(gen, anim, &fakeHistoryStore{}, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	_, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)

	err = session.SubmitAnimation(context.Background())
	require.NoError(t, err)

	state := session.Snapshot()
	assert.Equal(t, []byte("video-mp4"), state.VideoResult)
	// 정지 이미지도 함께 유지
	assert.Equal(t, []byte("still"), state.ResultImage)
	assert.Equal(t, StatusIdle, state.Status)
}

func TestSubmitAnimation_FailureKeepsStillView(t *testing.T) {
	gen := &fakeGenerator{results: [][]byte{[]byte("still")}}
	anim := &fakeAnimator{err: errors.New("video api down")}
	session := newTestSession(gen, anim, &fakeHistoryStore{}, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	_, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)

	err = session.SubmitAnimation(context.Background())
	require.Error(t, err)

	state := session.Snapshot()
	assert.Nil(t, state.VideoResult)
	assert.Equal(t, []byte("still"), state.ResultImage)
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, "video api down", state.LastError)
}

func TestSubmitAnimation_NoResultIsSilentNoop(t *testing.T) {
	anim := &fakeAnimator{video: []byte("video")}
	session := newTestSession(&fakeGenerator{}, anim, &fakeHistoryStore{}, &fakeStorage{})

	err := session.SubmitAnimation(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 0, anim.calls)
	assert.Nil(t, session.Snapshot().VideoResult)
}

func TestHistory_ReadThroughCache(t *testing.T) {
	hist := &fakeHistoryStore{}
	gen := &fakeGenerator{}
	session := newTestSession(gen, &fakeAnimator{}, hist, &fakeStorage{})

	_, err := session.History(context.Background())
	require.NoError(t, err)
	_, err = session.History(context.Background())
	require.NoError(t, err)

	// 두 번째 호출은 캐시 히트
	assert.Equal(t, 1, hist.listed)
}

func TestHistory_CacheInvalidatedAfterSave(t *testing.T) {
	hist := &fakeHistoryStore{}
	gen := &fakeGenerator{results: [][]byte{[]byte("result")}}
	session := newTestSession(gen, &fakeAnimator{}, hist, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	_, err := session.History(context.Background())
	require.NoError(t, err)

	_, err = session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)

	items, err := session.History(context.Background())
	require.NoError(t, err)

	// 저장 후 캐시 무효화 → 새 항목이 보임
	assert.Len(t, items, 1)
	assert.Equal(t, 2, hist.listed)
}

func TestDeleteHistoryItem_RemovesOnlyThatId(t *testing.T) {
	hist := &fakeHistoryStore{}
	gen := &fakeGenerator{results: [][]byte{[]byte("r1"), []byte("r2"), []byte("r3")}}
	session := newTestSession(gen, &fakeAnimator{}, hist, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	ctx := context.Background()

	first, err := session.SubmitGeneration(ctx, defaultSettings())
	require.NoError(t, err)
	second, err := session.SubmitGeneration(ctx, defaultSettings())
	require.NoError(t, err)
	third, err := session.SubmitGeneration(ctx, defaultSettings())
	require.NoError(t, err)

	items, err := session.History(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// 가운데 항목 삭제 → 그 id만 사라지고 나머지 순서는 그대로
	require.NoError(t, session.DeleteHistoryItem(ctx, second.Item.HistoryID))

	items, err = session.History(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.Item.HistoryID, items[0].HistoryID)
	assert.Equal(t, third.Item.HistoryID, items[1].HistoryID)
}

func TestDeleteHistoryItem_InvalidatesCache(t *testing.T) {
	hist := &fakeHistoryStore{}
	gen := &fakeGenerator{results: [][]byte{[]byte("r1")}}
	session := newTestSession(gen, &fakeAnimator{}, hist, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	ctx := context.Background()

	outcome, err := session.SubmitGeneration(ctx, defaultSettings())
	require.NoError(t, err)

	_, err = session.History(ctx)
	require.NoError(t, err)
	listedBefore := hist.listed

	require.NoError(t, session.DeleteHistoryItem(ctx, outcome.Item.HistoryID))

	items, err := session.History(ctx)
	require.NoError(t, err)

	// 삭제 후 캐시 무효화 → 스토어 재조회
	assert.Empty(t, items)
	assert.Equal(t, listedBefore+1, hist.listed)
}

func TestDeleteHistoryItem_NotFoundSurfacesError(t *testing.T) {
	hist := &fakeHistoryStore{}
	session := newTestSession(&fakeGenerator{}, &fakeAnimator{}, hist, &fakeStorage{})

	err := session.DeleteHistoryItem(context.Background(), "missing-id")

	assert.Error(t, err)
}

func TestClearHistory_RemovesAllForSession(t *testing.T) {
	hist := &fakeHistoryStore{}
	gen := &fakeGenerator{results: [][]byte{[]byte("r1"), []byte("r2")}}
	session := newTestSession(gen, &fakeAnimator{}, hist, &fakeStorage{})
	session.SetSourceImage([]byte("source"))

	ctx := context.Background()

	_, err := session.SubmitGeneration(ctx, defaultSettings())
	require.NoError(t, err)
	_, err = session.SubmitGeneration(ctx, defaultSettings())
	require.NoError(t, err)

	items, err := session.History(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.NoError(t, session.ClearHistory(ctx))

	items, err = session.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, hist.savedCount())
}

func TestManager_GetOrCreate(t *testing.T) {
	manager := NewManager(Deps{
		Generator: &fakeGenerator{},
		Animator:  &fakeAnimator{},
		History:   &fakeHistoryStore{},
		Storage:   &fakeStorage{},
	})

	first := manager.GetOrCreate("session-a")
	second := manager.GetOrCreate("session-a")
	other := manager.GetOrCreate("session-b")

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, manager.Count())
}

func TestNotifyEvents(t *testing.T) {
	var events []StatusEvent
	gen := &fakeGenerator{results: [][]byte{[]byte("result")}}
	session := NewSession("notify-session", Deps{
		Generator: gen,
		Animator:  &fakeAnimator{},
		History:   &fakeHistoryStore{},
		Storage:   &fakeStorage{},
		Notify:    func(e StatusEvent) { events = append(events, e) },
	})
	session.SetSourceImage([]byte("source"))

	_, err := session.SubmitGeneration(context.Background(), defaultSettings())
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, StatusLoading, events[0].Status)
	assert.Equal(t, StatusIdle, events[len(events)-1].Status)
	for _, e := range events {
		assert.Equal(t, "notify-session", e.SessionID)
	}
}
