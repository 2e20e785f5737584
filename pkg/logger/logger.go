package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	mu          sync.RWMutex
	base        *zap.Logger
	serviceName = "default"
)

// SetServiceName задаёт метку сервиса в логах, возвращает старую.
func SetServiceName(newName string) string {
	mu.Lock()
	defer mu.Unlock()
	oldName := serviceName
	serviceName = newName
	return oldName
}

// Init собирает продакшен-логгер. Зовётся один раз из main.
func Init(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	mu.Lock()
	base = l
	mu.Unlock()
	return nil
}

func get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		// до Init (и в тестах) ничего не пишем
		return zap.NewNop()
	}
	return base
}

func Info(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Error(fmt.Sprintf(format, args...))
}

func Debug(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Debug(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Fatal(fmt.Sprintf(format, args...))
}

// Sync сбрасывает буферы перед выходом.
func Sync() {
	if l := get(); l != nil {
		_ = l.Sync()
	}
}
