package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// 命令行参数定义
var (
	configPath  = pflag.StringP("config", "c", "", "配置文件路径")
	command     = pflag.String("cmd", "extract", "执行的命令: extract=仅提取文本, parse=结构化解析, score=按岗位评分, embed=生成简历向量")
	inputFile   = pflag.StringP("file", "f", "", "简历文件路径，支持 PDF/DOCX/DOC (必填)")
	jobFile     = pflag.String("job", "", "职位描述文件路径 (score 命令使用)")
	jobTitle    = pflag.String("title", "", "岗位名称 (score 命令使用)")
	mustSkills  = pflag.StringSlice("must", nil, "必备技能，逗号分隔；为空且提供了职位描述时由模型抽取")
	niceSkills  = pflag.StringSlice("nice", nil, "加分技能，逗号分隔")
	minExp      = pflag.Int("min-exp", 0, "最低工作年限")
	maxLen      = pflag.Int("maxlen", 1000, "extract 命令显示的文本最大长度，设为-1显示全部")
	timeout     = pflag.Duration("timeout", 3*time.Minute, "整个命令的超时时间")
	verboseFlag = pflag.BoolP("verbose", "v", false, "输出调试日志")
)

func main() {
	pflag.Parse()
	_ = godotenv.Load()

	level := "warn"
	if *verboseFlag {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Level: level, Format: "pretty", TimeFormat: "15:04:05"}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "错误: 必须通过 --file 指定简历文件")
		pflag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, cfg, *command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "执行 %s 失败: %v\n", *command, err)
		os.Exit(1)
	}
	printJSON(out)
}

func run(ctx context.Context, cfg *config.Config, cmd string) (any, error) {
	content, err := os.ReadFile(*inputFile)
	if err != nil {
		return nil, fmt.Errorf("读取简历文件失败: %w", err)
	}
	t := newToolkit(cfg)

	switch cmd {
	case "extract":
		return t.extract(ctx, *inputFile, content, *maxLen)
	case "parse":
		return t.parse(ctx, *inputFile, content)
	case "score":
		job, err := loadJob(ctx, t)
		if err != nil {
			return nil, err
		}
		return t.score(ctx, *inputFile, content, job)
	case "embed":
		return t.embed(ctx, *inputFile, content)
	default:
		return nil, fmt.Errorf("未知命令 '%s'，支持的命令: extract, parse, score, embed", cmd)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "输出结果失败: %v\n", err)
		os.Exit(1)
	}
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
