package cmd

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"StudioFM/config"
	"StudioFM/storage"

	"github.com/spf13/cobra"
)

var (
	minioDelete string
	minioKeep   string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO资产缓存管理",
	Long:  `查看和清理MinIO中按版本命名的资产缓存（caches/<名称>/），支持列出版本、统计大小、删除指定版本或只保留一个版本。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		initLogger(cfg)
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.NewMinioClient(cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		caches := storage.NewMinioCacheStorage(client, cfg.MinioBucket)
		ctx := cmd.Context()

		switch {
		case minioDelete != "":
			fmt.Printf("\n删除缓存版本: %s\n", minioDelete)
			if err := caches.Delete(ctx, minioDelete); err != nil {
				log.Fatalf("删除缓存失败: %v", err)
			}

		case minioKeep != "":
			names, err := caches.Keys(ctx)
			if err != nil {
				log.Fatalf("列出缓存失败: %v", err)
			}
			for _, name := range names {
				if name == minioKeep {
					continue
				}
				fmt.Printf("删除缓存版本: %s\n", name)
				if err := caches.Delete(ctx, name); err != nil {
					log.Fatalf("删除缓存失败: %v", err)
				}
			}

		default:
			gens, err := caches.Generations(ctx)
			if err != nil {
				log.Fatalf("列出缓存失败: %v", err)
			}
			if len(gens) == 0 {
				fmt.Println("\n没有资产缓存")
				return
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\n名称\t对象数\t大小\t最后修改")
			var total int64
			for _, g := range gens {
				total += g.Size
				modified := "-"
				if !g.LastModified.IsZero() {
					modified = g.LastModified.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", g.Name, g.Objects, storage.FormatSize(g.Size), modified)
			}
			tw.Flush()
			if minioStats {
				fmt.Printf("\n共 %d 个版本，总大小 %s\n", len(gens), storage.FormatSize(total))
			}
		}

		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioDelete, "delete", "d", "", "删除指定名称的缓存版本")
	minioCmd.Flags().StringVarP(&minioKeep, "keep", "k", "", "只保留指定名称的缓存版本，删除其余版本")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示汇总统计信息")

	minioCmd.Example = `  # 列出所有缓存版本
  studiofm minio

  # 列出并显示汇总
  studiofm minio -s

  # 删除一个版本
  studiofm minio -d studiofm-assets-2024.06.01

  # 只保留当前版本
  studiofm minio -k studiofm-assets-2024.06.02`
}
