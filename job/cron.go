package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"recon-engine/service"
	"recon-engine/storage/postgres"
)

// StartCronJob 定时消费待核对文档
// 没接消息队列，先用轮询顶着，每轮最多处理 10 份
func StartCronJob(repo *postgres.Repo, reconSvc *service.ReconService) {
	c := cron.New()

	_, _ = c.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		docs, err := repo.ListPendingDocuments(ctx, 10)
		if err != nil {
			fmt.Println("[Cron] 查询待核对文档失败:", err)
			return
		}
		if len(docs) == 0 {
			return
		}
		fmt.Printf("[Cron] 发现 %d 份待核对文档\n", len(docs))

		for _, doc := range docs {
			summary, err := reconSvc.PerformReconciliation(ctx, doc.ID)
			if err != nil {
				// 单份失败不影响其他文档，下一轮会重试
				fmt.Printf("[Cron] DocID=%s 核对失败: %v\n", doc.ID, err)
				continue
			}
			if summary.Skipped {
				fmt.Printf("[Cron] DocID=%s 跳过: %s\n", doc.ID, summary.Reason)
			}
		}
	})

	c.Start()
}
