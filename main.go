package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/tinyimg/tinyimg/internal/cache"
	"github.com/tinyimg/tinyimg/internal/config"
	"github.com/tinyimg/tinyimg/internal/httpclient"
	"github.com/tinyimg/tinyimg/internal/logging"
	"github.com/tinyimg/tinyimg/internal/metrics"
	"github.com/tinyimg/tinyimg/internal/pipeline"
	"github.com/tinyimg/tinyimg/internal/report"
	"github.com/tinyimg/tinyimg/internal/tinify"
	"github.com/tinyimg/tinyimg/internal/walker"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	overrides   config.Overrides
	clearCache  bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const usageExample = `
Example call:
  $ tinyimg -f ./src/assets -d -v`

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts)
	stop()
	os.Exit(code)
}

// run 根据解析到的 CLI 选项执行“扫描 → 并发压缩 → 汇总”流程，并返回退出码。
// 单个文件失败不影响退出码，只有配置、缓存初始化或目录扫描失败才返回非零。
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath, opts.overrides)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	store, err := cache.NewStore(cfg.CacheFile, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}
	defer store.Close()

	if opts.clearCache {
		if err := store.Clear(ctx); err != nil {
			fmt.Fprintf(stdErr, "清除缓存失败: %v\n", err)
			return 1
		}
		fields := logging.BaseFields("clear_cache", opts.configPath)
		fields["cache_file"] = cfg.CacheFile
		logger.WithFields(fields).Info("缓存已清除")
		fmt.Fprintf(stdOut, "cache cleared: %s\n", cfg.CacheFile)
		return 0
	}

	runID := uuid.NewString()
	fields := logging.BaseFields("startup", opts.configPath)
	fields["run_id"] = runID
	fields["folder"] = cfg.Folder
	fields["recursive"] = cfg.Recursive
	fields["cache_file"] = cfg.CacheFile
	fields["version"] = versionString()
	logger.WithFields(fields).Info("配置加载完成")

	w := walker.New(walker.Options{
		MaxFileSize: cfg.MaxFileSize,
		Extensions:  cfg.ExtensionSet(),
		IgnoreCase:  cfg.ExtensionsIgnoreCase,
		Store:       store,
		Logger:      logger,
	})
	candidates, err := w.Walk(ctx, cfg.Folder, cfg.Recursive)
	if err != nil {
		fmt.Fprintf(stdErr, "扫描目录失败: %v\n", err)
		return 1
	}
	if len(candidates) == 0 {
		_ = report.Empty(stdOut)
		return 0
	}

	client := tinify.New(tinify.Options{
		HTTPClient: httpclient.New(cfg),
		Endpoint:   cfg.Endpoint,
		Headers: tinify.AnonymousHeaders{
			UserAgent:         cfg.UserAgent,
			SpoofForwardedFor: cfg.SpoofForwardedFor,
		},
		Store:    store,
		MinRatio: cfg.MinRatio,
		Logger:   logger,
		RunID:    runID,
	})

	recorder := metrics.NewRecorder()
	runner := pipeline.NewRunner(pipeline.Options{
		Compressor:     client,
		MaxConcurrency: cfg.MaxConcurrency,
		BaseDir:        cfg.Folder,
		Logger:         logger,
		Metrics:        recorder,
		RunID:          runID,
	})
	result := runner.Run(ctx, walker.Paths(candidates))

	if cfg.Verbose && len(result.Records) > 0 {
		_ = report.Table(stdOut, result.Records)
	}
	_ = report.Summary(stdOut, result)

	if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.WithFields(logging.BaseFields("metrics", opts.configPath)).Warn(err.Error())
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
// 短标志与长标志共用同一变量，未显式出现的标志不会覆盖配置文件。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tinyimg", flag.ContinueOnError)
	fs.SetOutput(stdErr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage of tinyimg:")
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), usageExample)
	}

	var (
		configFlag string
		folder     string
		recursive  bool
		verbose    bool
		clearCache bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./tinyimg.toml，可被 TINYIMG_CONFIG 覆盖）")
	fs.StringVar(&folder, "folder", "./", "文件夹路径")
	fs.StringVar(&folder, "f", "./", "文件夹路径（-folder 的简写）")
	fs.BoolVar(&recursive, "deep", false, "递归文件夹")
	fs.BoolVar(&recursive, "d", false, "递归文件夹（-deep 的简写）")
	fs.BoolVar(&verbose, "verbose", false, "显示压缩文件信息")
	fs.BoolVar(&verbose, "v", false, "显示压缩文件信息（-verbose 的简写）")
	fs.BoolVar(&clearCache, "clear-cache", false, "清空跳过列表后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cliOptions{}, err
		}
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	var overrides config.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "folder", "f":
			overrides.Folder = &folder
		case "deep", "d":
			overrides.Recursive = &recursive
		case "verbose", "v":
			overrides.Verbose = &verbose
		}
	})

	path := os.Getenv("TINYIMG_CONFIG")
	if configFlag != "" {
		path = configFlag
	}

	return cliOptions{
		configPath:  path,
		overrides:   overrides,
		clearCache:  clearCache,
		showVersion: showVer,
	}, nil
}
