package cancel

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// 취소 플래그 TTL (작업이 끝난 뒤 자동 정리)
const flagTTL = time.Hour

// Registry - Redis 기반 배치 취소 플래그
// 워커는 아이템 처리 전마다 플래그를 확인함
type Registry struct {
	rdb *redis.Client
}

// NewRegistry - 취소 레지스트리 생성
func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{rdb: rdb}
}

func flagKey(jobID string) string {
	return fmt.Sprintf("batch:cancelled:%s", jobID)
}

// MarkCancelled - 배치 작업 취소 요청
func (r *Registry) MarkCancelled(ctx context.Context, jobID string) error {
	if err := r.rdb.Set(ctx, flagKey(jobID), "1", flagTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark job cancelled: %w", err)
	}

	log.Printf("🛑 Batch job marked cancelled: %s", jobID)
	return nil
}

// IsCancelled - 취소 여부 확인 (Redis 에러는 취소 아님으로 처리)
func (r *Registry) IsCancelled(ctx context.Context, jobID string) bool {
	exists, err := r.rdb.Exists(ctx, flagKey(jobID)).Result()
	if err != nil {
		log.Printf("⚠️  Cancel flag check failed for %s: %v", jobID, err)
		return false
	}
	return exists > 0
}

// Clear - 작업 종료 후 플래그 제거
func (r *Registry) Clear(ctx context.Context, jobID string) {
	if err := r.rdb.Del(ctx, flagKey(jobID)).Err(); err != nil {
		log.Printf("⚠️  Failed to clear cancel flag for %s: %v", jobID, err)
	}
}
