package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/config"
	"github.com/oceanmonitor/dashboard/internal/model/ocean"
	"github.com/oceanmonitor/dashboard/internal/service/ai"
	"github.com/oceanmonitor/dashboard/internal/service/chat"
	"github.com/oceanmonitor/dashboard/internal/service/identify"
	"github.com/oceanmonitor/dashboard/internal/service/predict"
	"github.com/oceanmonitor/dashboard/internal/service/users"
	"github.com/oceanmonitor/dashboard/internal/service/view"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand shares once configuration is loaded.
type env struct {
	cfg      *config.Config
	upstream *client.Client
}

func rootCmd() *cobra.Command {
	var (
		timeout time.Duration
		e       env
	)

	cmd := &cobra.Command{
		Use:   "oceanctl",
		Short: "Drive the Ocean Monitor dashboard flows from the terminal",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("配置加载失败: %w", err)
			}
			e.cfg = cfg
			e.upstream = client.New(cfg.Upstream.BaseURL, client.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			cobra.OnFinalize(cancel)
			cmd.SetContext(ctx)
			return nil
		},
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 45*time.Second, "请求超时时间")

	cmd.AddCommand(
		viewCmd("fish", "鱼类统计数据", func(ctx context.Context) error {
			return loadView(ctx, view.New(view.FishStatistics(e.upstream)))
		}),
		viewCmd("market", "在线市场行情", func(ctx context.Context) error {
			return loadView(ctx, view.New(view.Market(e.upstream)))
		}),
		viewCmd("weather", "天气预报", func(ctx context.Context) error {
			return loadView(ctx, view.New(view.Weather(e.upstream)))
		}),
		viewCmd("air", "空气质量", func(ctx context.Context) error {
			return loadView(ctx, view.New(view.AirQuality(e.upstream)))
		}),
		waterCmd(&e),
		usersCmd(&e),
		predictCmd(&e),
		identifyCmd(&e),
		chatCmd(&e),
	)
	return cmd
}

func viewCmd(name, short string, run func(ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func loadView[T any](ctx context.Context, v *view.View[T]) error {
	snap, err := v.Load(ctx)
	if err != nil {
		log.Printf("加载失败: %v", err)
	}
	return printJSON(snap)
}

func waterCmd(e *env) *cobra.Command {
	var filter ocean.WaterQualityFilter

	cmd := &cobra.Command{
		Use:   "water",
		Short: "水质数据与统计",
		RunE: func(cmd *cobra.Command, args []string) error {
			return loadView(cmd.Context(), view.New(view.WaterQuality(e.upstream, filter)))
		},
	}
	cmd.Flags().StringVar(&filter.Year, "year", "", "年份")
	cmd.Flags().StringVar(&filter.Month, "month", "", "月份")
	cmd.Flags().StringVar(&filter.Province, "province", "", "省份")
	cmd.Flags().StringVar(&filter.Basin, "basin", "", "流域")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func usersCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "用户列表",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := users.NewDirectory(e.upstream)
			if _, err := dir.Fetch(cmd.Context()); err != nil {
				log.Printf("获取用户列表失败: %v", err)
			}
			return printJSON(dir.Snapshot())
		},
	}
}

func predictCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "predict <period1> <period2> <period3>",
		Short: "预测第四个周期的体长",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow := predict.NewFlow(e.upstream)
			inputs := predict.Inputs{Period1: args[0], Period2: args[1], Period3: args[2]}
			if _, err := flow.Predict(cmd.Context(), inputs); err != nil {
				log.Printf("预测失败: %v", err)
			}
			return printJSON(flow.Snapshot())
		},
	}
}

func identifyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "identify <image>",
		Short: "识别图片中的海洋生物",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imagePath := args[0]
			data, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("读取图片失败: %w", err)
			}

			// 与浏览器一致，按扩展名声明类型
			contentType := mime.TypeByExtension(filepath.Ext(imagePath))

			flow := identify.NewFlow(e.upstream, identify.NewLimiter(e.cfg.Identify.RatePerMinute))
			if err := flow.Select(client.Upload{Name: filepath.Base(imagePath), ContentType: contentType, Data: data}); err != nil {
				return err
			}
			if _, err := flow.Upload(cmd.Context()); err != nil {
				log.Printf("识别失败: %v", err)
			}
			return printJSON(flow.Snapshot())
		},
	}
}

func chatCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <question>",
		Short: "向智能问答提问",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.cfg.AI.Enabled() {
				return errors.New("AI 服务未启用，请先在环境变量中配置 ARK_* 凭证")
			}

			svc, err := ai.NewService(cmd.Context(), e.cfg.AI)
			if err != nil {
				return fmt.Errorf("AI 服务初始化失败: %w", err)
			}

			flow := chat.NewFlow(svc)
			if _, err := flow.Submit(cmd.Context(), args[0]); err != nil {
				log.Printf("问答失败: %v", err)
			}
			return printJSON(flow.Snapshot())
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
