package pkg

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelErrOnly
	LogLevelDebug
)

// zap has no "off" level; anything above fatal disables output
const levelOff = zapcore.FatalLevel + 1

var (
	log_level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	logger    = newLogger()
)

func newLogger() *zap.SugaredLogger {
	enc_config := zap.NewDevelopmentEncoderConfig()
	enc_config.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc_config),
		zapcore.Lock(os.Stderr),
		log_level,
	)
	return zap.New(core, zap.AddCaller()).Sugar()
}

func SetLogLevel(level LogLevel) {
	switch level {
	case LogLevelNone:
		log_level.SetLevel(levelOff)
	case LogLevelErrOnly:
		log_level.SetLevel(zapcore.ErrorLevel)
	case LogLevelDebug:
		log_level.SetLevel(zapcore.DebugLevel)
	}
	logger.Debugln("log level set to", level)
}

// Logger exposes the underlying sugared logger for callers that want
// structured key/value pairs.
func Logger() *zap.SugaredLogger { return logger }

var (
	InfoLog  = logger.Infoln
	ErrorLog = logger.Errorln
	FatalLog = logger.Fatalln
	WarnLog  = logger.Warnln
	DebugLog = logger.Debugln
)
