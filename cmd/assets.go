package cmd

import (
	"fmt"
	"log"
	"net/url"

	"StudioFM/config"
	"StudioFM/core/assetcache"
	"StudioFM/storage"

	"github.com/spf13/cobra"
)

var assetsManifest string

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "资产缓存管理",
}

var assetsInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "预先安装资产缓存版本",
	Long:  `读取构建清单，从源站下载全部资源写入 MinIO 缓存并激活该版本，旧版本被删除。任何资源下载失败时不做任何改变。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		initLogger(cfg)

		if cfg.AssetCacheBackend != "minio" {
			log.Fatal("离线安装需要 ASSET_CACHE_BACKEND=minio，内存缓存不会在进程间保留")
		}
		origin, err := url.Parse(cfg.OriginURL)
		if err != nil || origin.Host == "" {
			log.Fatalf("ORIGIN_URL 无效: %q", cfg.OriginURL)
		}

		path := assetsManifest
		if path == "" {
			path = cfg.AssetManifest
		}
		m, err := assetcache.LoadManifest(path)
		if err != nil {
			log.Fatalf("读取清单失败: %v", err)
		}

		client, err := storage.NewMinioClient(cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		caches := storage.NewMinioCacheStorage(client, cfg.MinioBucket)

		rt := assetcache.NewRuntime(caches, origin, cfg.AssetCachePrefix)
		if err := rt.Deploy(cmd.Context(), m); err != nil {
			log.Fatalf("安装失败: %v", err)
		}
		fmt.Printf("已安装 %s（%d 个资源）\n", m.CacheName(cfg.AssetCachePrefix), len(m.Assets))
	},
}

func init() {
	assetsInstallCmd.Flags().StringVarP(&assetsManifest, "manifest", "m", "", "清单路径，默认使用 ASSET_MANIFEST")
	assetsCmd.AddCommand(assetsInstallCmd)
	rootCmd.AddCommand(assetsCmd)
}
