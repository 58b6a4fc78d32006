package config

import (
	"context"
	"os"
	"strings"

	"bountyhub.com/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LoadAndWatch 读取 config/{service}.yaml 并监听变更
// onChange 在每次热更新成功后调用；只有声明可热更新的字段才应该在回调里生效
func LoadAndWatch(service string, out interface{}, onChange ...func()) (*viper.Viper, error) {
	v, err := load(service, out)
	if err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		logger.Info(ctx, "config file changed", zap.String("service", service), zap.String("file", e.Name))

		if err := v.Unmarshal(out); err != nil {
			logger.Error(ctx, "reload config failed", zap.String("service", service), zap.Error(err))
			return
		}
		for _, fn := range onChange {
			fn()
		}
		logger.Info(ctx, "config reloaded", zap.String("service", service))
	})

	return v, nil
}

// Load 只读一次，不监听（测试、一次性命令用）
func Load(service string, out interface{}) error {
	_, err := load(service, out)
	return err
}

func load(service string, out interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".") // 兜底，直接放当前目录也行

	// 环境变量覆盖，例如：
	//   SETTLEMENT_SERVICE_HTTP_ADDR 覆盖 http.addr
	//   SETTLEMENT_SERVICE_DB_DSN 覆盖 db.dsn
	v.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(service, "-", "_")))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "config loaded", zap.String("service", service), zap.String("file", v.ConfigFileUsed()))
	return v, nil
}
