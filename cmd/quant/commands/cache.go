package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "캐시 관리",
	Long: `영속 캐시 저장소(Redis / Badger)를 조회하거나 비웁니다.
CACHE_BACKEND=memory 인 경우 프로세스 종료 시 캐시가 사라지므로 대상이 없습니다.

Subcommands:
  stats  - 저장된 항목 수
  purge  - 전체 삭제

Example:
  CACHE_BACKEND=badger go run ./cmd/quant cache stats
  CACHE_BACKEND=redis REDIS_ENABLED=true go run ./cmd/quant cache purge`,
}

var (
	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "저장된 항목 수",
		RunE:  cacheStats,
	}

	cachePurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "전체 삭제",
		RunE:  cachePurge,
	}
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}

func cacheStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	PrintHeader("Cache")
	PrintKeyValue("Backend", a.cfg.Cache.Backend, 12)
	PrintKeyValue("Ranking TTL", a.cfg.Cache.RankingTTL.String(), 12)
	PrintKeyValue("History TTL", a.cfg.Cache.HistoryTTL.String(), 12)
	PrintKeyValue("Meta TTL", a.cfg.Cache.MetadataTTL.String(), 12)

	if a.store == nil {
		PrintInfo("Memory backend keeps nothing between runs")
		return nil
	}
	n, err := a.store.Count(ctx)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	PrintKeyValue("Entries", fmt.Sprintf("%d", n), 12)
	return nil
}

func cachePurge(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.store == nil {
		PrintInfo("Memory backend keeps nothing between runs")
		return nil
	}
	if err := a.store.Purge(ctx); err != nil {
		PrintError(err.Error())
		return err
	}
	a.log.WithField("backend", a.store.Name()).Info("Cache purged")
	PrintSuccess(fmt.Sprintf("%s cache purged", a.store.Name()))
	return nil
}
