package logger

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 全局日志实例，InitLogger 之前为 no-op
var Log = zap.NewNop()

// InitLogger 初始化 zap 日志
// env 为 "prod" 时使用 JSON 格式，否则使用开发模式（彩色、人类可读）
func InitLogger(env string) {
	var (
		l   *zap.Logger
		err error
	)

	if env == "prod" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err = cfg.Build(zap.AddCaller())
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	Log = l
}

// Sync 刷新缓冲区，进程退出前调用
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
