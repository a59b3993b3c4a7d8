package logger

import (
	"os"

	"go.uber.org/zap"
)

var Log *zap.Logger

// InitLogger sets up the global logger. LOG_MODE=production switches to
// JSON output for log shippers; anything else gets the console encoder.
func InitLogger() {
	var (
		base *zap.Logger
		err  error
	)
	if os.Getenv("LOG_MODE") == "production" {
		base, err = zap.NewProduction()
	} else {
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	Log = base.Named("campusgrid")
}

func SyncLogger() {
	_ = Log.Sync()
}
