package cmd

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"StudioFM/cache"
	"StudioFM/config"
	"StudioFM/core/artwork"
	"StudioFM/core/assetcache"
	"StudioFM/core/content"
	"StudioFM/core/hub"
	"StudioFM/core/player"
	"StudioFM/core/session"
	"StudioFM/core/tab"
	"StudioFM/db"
	"StudioFM/logger"
	"StudioFM/model"
	"StudioFM/repository"
	"StudioFM/server"
	"StudioFM/storage"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 StudioFM 服务",
	Long:  `启动 HTTP 服务：/v1 播放接口、媒体控制面 WebSocket 以及前置于静态站点的资产缓存层`,
	Run: func(cmd *cobra.Command, args []string) {
		runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func initLogger(cfg *config.Config) {
	logger.InitLogger(logger.DefaultConfig(cfg.LogLevel, cfg.LogFile))
}

func runServer(parent context.Context) {
	cfg := config.Load()
	initLogger(cfg)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("配置无效", logger.ErrorField(err))
	}
	if cfg.DefaultSecret() {
		logger.Warn("SESSION_SECRET 未设置，正在使用开发用签名密钥，会话可被伪造")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	origin, err := url.Parse(cfg.OriginURL)
	if err != nil || origin.Host == "" {
		logger.Fatal("ORIGIN_URL 无效", logger.String("origin", cfg.OriginURL))
	}

	store := newSessionStore(cfg)
	defer cache.CloseRedis()

	subscribers, tracks := newContentStore(cfg)
	defer db.CloseGormDB()

	extractor := artwork.NewExtractor(artwork.NewCache(),
		artwork.WithMaxBytes(cfg.ArtworkMaxBytes),
		artwork.WithTimeout(cfg.ArtworkTimeout),
		artwork.WithConcurrency(cfg.ArtworkConcurrency))

	h := hub.NewHub()
	go h.Run()
	defer h.Stop()

	tabs := tab.NewManager(store, extractor,
		tab.WithIdleTimeout(cfg.TabIdleTimeout),
		tab.WithMediaSession(func(id string) player.MediaSession { return h.Publisher(id) }))
	go tabs.Run(ctx)
	defer tabs.Close()

	assets := assetcache.NewRuntime(newAssetStorage(cfg), origin, cfg.AssetCachePrefix)
	if err := assets.DeployFile(ctx, cfg.AssetManifest); err != nil {
		// 没有可用清单时退化为直接回源
		logger.Warn("资产缓存未部署，请求将直接转发到源站",
			logger.String("manifest", cfg.AssetManifest),
			logger.ErrorField(err))
	}
	go func() {
		if err := assets.Watch(ctx, cfg.AssetManifest); err != nil {
			logger.Warn("无法监听资产清单", logger.ErrorField(err))
		}
	}()

	srv := server.New(server.Deps{
		Tabs:          tabs,
		Content:       content.NewService(tracks),
		Artwork:       extractor,
		Hub:           h,
		Subscribers:   subscribers,
		Assets:        assets,
		SessionSecret: []byte(cfg.SessionSecret),
		SessionTTL:    cfg.SessionTTL,
		SecureCookie:  origin.Scheme == "https",
	})
	if err := srv.Run(ctx, cfg.HTTPAddr); err != nil {
		logger.Fatal("HTTP 服务异常退出", logger.ErrorField(err))
	}
}

// newSessionStore Redis 不可用时退化为进程内存储
func newSessionStore(cfg *config.Config) session.Store {
	if !cfg.RedisEnabled() {
		logger.Info("未配置 Redis，会话歌单保存在内存中")
		return session.NewMemoryStore()
	}
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis 连接失败，会话歌单保存在内存中", logger.ErrorField(err))
		return session.NewMemoryStore()
	}
	logger.Info("Redis 连接成功",
		logger.String("addr", cfg.RedisHost+":"+cfg.RedisPort),
		logger.Duration("ttl", cfg.SessionTTL))
	return cache.NewSessionStore(cache.RedisClient, cfg.SessionTTL)
}

// newContentStore 数据库不可用时内容服务只提供内置曲目，订阅被忽略
func newContentStore(cfg *config.Config) (repository.SubscriberRepository, repository.TrackRepository) {
	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		logger.Warn("数据库连接失败，使用内置曲目", logger.ErrorField(err))
		return nil, nil
	}
	if err := db.AutoMigrateModels(gdb, &model.TrackRecord{}, &model.Subscriber{}); err != nil {
		logger.Warn("数据库迁移失败", logger.ErrorField(err))
	}
	return repository.NewGormSubscriberRepository(gdb), repository.NewGormTrackRepository(gdb)
}

func newAssetStorage(cfg *config.Config) assetcache.Storage {
	if cfg.AssetCacheBackend != "minio" {
		return assetcache.NewMemoryStorage()
	}
	client, err := storage.NewMinioClient(cfg)
	if err != nil {
		logger.Warn("MinIO 不可用，资产缓存使用内存存储", logger.ErrorField(err))
		return assetcache.NewMemoryStorage()
	}
	return storage.NewMinioCacheStorage(client, cfg.MinioBucket)
}
