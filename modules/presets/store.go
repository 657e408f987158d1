package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 저장된 프롬프트 전체를 담는 Redis 키 (슬롯 단위로 통째로 읽고 씀)
const slotKey = "aura:saved_prompts"

// SavedPrompt - 사용자가 저장한 프롬프트
type SavedPrompt struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

// kvSlot - Redis GET/SET 추상화 (테스트에서 인메모리로 교체)
type kvSlot interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

// redisSlot - go-redis 기반 kvSlot 구현체
type redisSlot struct {
	client *redis.Client
}

func (r *redisSlot) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *redisSlot) Set(ctx context.Context, key string, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// Store - 저장된 프롬프트 스토어
type Store struct {
	slot kvSlot
}

// NewStore - Redis 기반 스토어 생성
func NewStore(client *redis.Client) *Store {
	return &Store{slot: &redisSlot{client: client}}
}

// load - 슬롯 전체 읽기
func (s *Store) load(ctx context.Context) ([]SavedPrompt, error) {
	raw, err := s.slot.Get(ctx, slotKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved prompts: %w", err)
	}
	if raw == "" {
		return []SavedPrompt{}, nil
	}

	var prompts []SavedPrompt
	if err := json.Unmarshal([]byte(raw), &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse saved prompts: %w", err)
	}
	return prompts, nil
}

// save - 슬롯 전체 다시 쓰기 (변경은 항상 전체 덮어쓰기)
func (s *Store) save(ctx context.Context, prompts []SavedPrompt) error {
	data, err := json.Marshal(prompts)
	if err != nil {
		return fmt.Errorf("failed to marshal saved prompts: %w", err)
	}
	if err := s.slot.Set(ctx, slotKey, string(data)); err != nil {
		return fmt.Errorf("failed to store saved prompts: %w", err)
	}
	return nil
}

// List - 저장된 프롬프트 목록
func (s *Store) List(ctx context.Context) ([]SavedPrompt, error) {
	return s.load(ctx)
}

// Add - 프롬프트 저장
func (s *Store) Add(ctx context.Context, name, text string) (*SavedPrompt, error) {
	if text == "" {
		return nil, fmt.Errorf("prompt text is required")
	}
	if name == "" {
		name = "Untitled"
	}

	prompts, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	prompt := SavedPrompt{
		ID:        uuid.New().String(),
		Name:      name,
		Text:      text,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	prompts = append(prompts, prompt)

	if err := s.save(ctx, prompts); err != nil {
		return nil, err
	}

	log.Printf("💾 Saved prompt added: %s (%s)", prompt.Name, prompt.ID)
	return &prompt, nil
}

// Rename - 프롬프트 이름 변경
func (s *Store) Rename(ctx context.Context, id, name string) error {
	prompts, err := s.load(ctx)
	if err != nil {
		return err
	}

	for i := range prompts {
		if prompts[i].ID == id {
			prompts[i].Name = name
			return s.save(ctx, prompts)
		}
	}

	return fmt.Errorf("saved prompt not found: %s", id)
}

// Delete - 프롬프트 삭제
func (s *Store) Delete(ctx context.Context, id string) error {
	prompts, err := s.load(ctx)
	if err != nil {
		return err
	}

	filtered := prompts[:0]
	found := false
	for _, p := range prompts {
		if p.ID == id {
			found = true
			continue
		}
		filtered = append(filtered, p)
	}

	if !found {
		return fmt.Errorf("saved prompt not found: %s", id)
	}

	log.Printf("🗑️  Saved prompt deleted: %s", id)
	return s.save(ctx, filtered)
}
