package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"StudioFM/cache"
	"StudioFM/config"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试会话存储使用的Redis连接，并进行一次写入、读取、删除。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if !cfg.RedisEnabled() {
			log.Fatal("REDIS_HOST 为空，服务将使用内存会话存储")
		}
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer func() {
			if err := cache.CloseRedis(); err != nil {
				log.Printf("关闭Redis连接时发生错误: %v", err)
			}
		}()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := cache.CheckRedis(ctx, cache.RedisClient); err != nil {
			log.Fatalf("Redis操作测试失败: %v", err)
		}
		fmt.Printf("Redis读写测试成功，会话歌单存活时间: %s\n", cfg.SessionTTL)
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
